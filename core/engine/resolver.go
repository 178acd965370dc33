package engine

import (
	"SceneCast/model"
)

// ResolveStrategy 决定一个段的播放策略，对任意段形状都有定义，不产生错误
// 判定顺序（首个命中生效）：
//  1. 演示文稿带 singleMediaUrl → 整体按 single-video 播放，段级策略无意义
//  2. 段有 videoUrl → scene-video
//  3. 段有 audioUrl 且图片非空 → image-carousel-with-audio
//  4. 图片非空（无音频）→ image-carousel-silent
//  5. 什么都没有 → empty，占位并按声明时长自动推进
func ResolveStrategy(p *model.Presentation, seg *model.Segment) model.Strategy {
	if p != nil && p.SingleMediaURL != "" {
		return model.StrategySingleVideo
	}
	return resolveSegment(seg.VideoURL != "", seg.AudioURL != "", len(seg.ImageURLs) > 0)
}

func resolveSegment(hasVideo, hasAudio, hasImages bool) model.Strategy {
	switch {
	case hasVideo:
		return model.StrategySceneVideo
	case hasAudio && hasImages:
		return model.StrategyCarouselAudio
	case hasImages:
		return model.StrategyCarouselSilent
	default:
		return model.StrategyEmpty
	}
}

// PlanSegment 时间线上的一个可播放单元：段加上它已解析出的策略
// 媒体加载失败时按同一条判定链降级（视频失败→尝试图片→占位），
// 失败标记只在本次播放会话内有效
type PlanSegment struct {
	Strategy    model.Strategy
	VideoURL    string
	AudioURL    string
	ImageURLs   []string
	Fallback    float64 // 兜底时长（秒）
	CaptionText string

	single       bool
	videoFailed  bool
	audioFailed  bool
	imagesFailed bool
}

// ImageCount 可用图片数
func (ps *PlanSegment) ImageCount() int {
	if ps.imagesFailed {
		return 0
	}
	return len(ps.ImageURLs)
}

// MarkVideoFailed 标记视频加载失败并重新解析策略
func (ps *PlanSegment) MarkVideoFailed() {
	ps.videoFailed = true
	ps.reresolve()
}

// MarkAudioFailed 标记音频加载失败并重新解析策略
func (ps *PlanSegment) MarkAudioFailed() {
	ps.audioFailed = true
	ps.reresolve()
}

// MarkImagesFailed 标记图片加载失败并重新解析策略
func (ps *PlanSegment) MarkImagesFailed() {
	ps.imagesFailed = true
	ps.reresolve()
}

// reresolve 按失败掩码重走判定链
// single-video 的视频失败没有可降级的媒体，直接落到占位
func (ps *PlanSegment) reresolve() {
	if ps.single {
		if ps.videoFailed {
			ps.Strategy = model.StrategyEmpty
		}
		return
	}
	ps.Strategy = resolveSegment(
		ps.VideoURL != "" && !ps.videoFailed,
		ps.AudioURL != "" && !ps.audioFailed,
		len(ps.ImageURLs) > 0 && !ps.imagesFailed,
	)
}

// BuildPlan 把演示文稿展开为播放计划
// singleMediaUrl 存在时整个演示文稿折叠为一个 single-video 单元，
// 其兜底时长取各段声明时长之和（元数据加载后会被实测值替换）
func BuildPlan(p *model.Presentation) []*PlanSegment {
	if p == nil {
		return nil
	}

	if p.SingleMediaURL != "" {
		fallback := 0.0
		for i := range p.Segments {
			fallback += p.Segments[i].FallbackDuration()
		}
		if fallback <= 0 {
			fallback = model.DefaultSegmentDuration
		}
		return []*PlanSegment{{
			Strategy: model.StrategySingleVideo,
			VideoURL: p.SingleMediaURL,
			Fallback: fallback,
			single:   true,
		}}
	}

	plan := make([]*PlanSegment, 0, len(p.Segments))
	for i := range p.Segments {
		seg := &p.Segments[i]
		plan = append(plan, &PlanSegment{
			Strategy:    ResolveStrategy(p, seg),
			VideoURL:    seg.VideoURL,
			AudioURL:    seg.AudioURL,
			ImageURLs:   seg.ImageURLs,
			Fallback:    seg.FallbackDuration(),
			CaptionText: seg.CaptionText,
		})
	}
	return plan
}

// FallbackDurations 返回计划中各单元的兜底时长
func FallbackDurations(plan []*PlanSegment) []float64 {
	out := make([]float64, len(plan))
	for i, ps := range plan {
		out[i] = ps.Fallback
	}
	return out
}
