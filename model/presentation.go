package model

import "errors"

// Strategy 段的播放策略
type Strategy string

const (
	// StrategySingleVideo 整个演示文稿就是一个完整视频
	StrategySingleVideo Strategy = "single-video"
	// StrategySceneVideo 该段拥有自己的视频片段
	StrategySceneVideo Strategy = "scene-video"
	// StrategyCarouselAudio 图片轮播 + 旁白音频，音频时钟为权威时钟
	StrategyCarouselAudio Strategy = "image-carousel-with-audio"
	// StrategyCarouselSilent 无声图片轮播，走墙钟
	StrategyCarouselSilent Strategy = "image-carousel-silent"
	// StrategyEmpty 无可播放媒体，占位并按声明时长自动推进
	StrategyEmpty Strategy = "empty"
)

// DefaultSegmentDuration 段未声明时长时的兜底时长（秒）
const DefaultSegmentDuration = 3.0

// ErrEmptyPresentation 既无 singleMediaUrl 也无任何段，唯一的致命初始化错误
var ErrEmptyPresentation = errors.New("presentation has neither single media url nor segments")

// Segment 演示文稿中的一个场景
type Segment struct {
	VideoURL         string   `json:"videoUrl,omitempty" yaml:"videoUrl,omitempty"`
	ImageURLs        []string `json:"imageUrls,omitempty" yaml:"imageUrls,omitempty"`
	AudioURL         string   `json:"audioUrl,omitempty" yaml:"audioUrl,omitempty"`
	DeclaredDuration float64  `json:"declaredDuration,omitempty" yaml:"declaredDuration,omitempty"` // 秒
	CaptionText      string   `json:"captionText,omitempty" yaml:"captionText,omitempty"`
}

// FallbackDuration 返回声明时长，未声明时返回默认 3 秒
func (s *Segment) FallbackDuration() float64 {
	if s.DeclaredDuration > 0 {
		return s.DeclaredDuration
	}
	return DefaultSegmentDuration
}

// Presentation 一次播放会话的输入：有序段序列，或单个完整视频
// 对引擎而言只读，媒体地址已由上游解析/签名完毕
type Presentation struct {
	SingleMediaURL string    `json:"singleMediaUrl,omitempty" yaml:"singleMediaUrl,omitempty"`
	Segments       []Segment `json:"segments,omitempty" yaml:"segments,omitempty"`
}

// Validate 检查不变量：要么有段序列，要么有 singleMediaUrl，绝不能两者皆无
func (p *Presentation) Validate() error {
	if p == nil || (p.SingleMediaURL == "" && len(p.Segments) == 0) {
		return ErrEmptyPresentation
	}
	return nil
}

// PlaybackState 引擎对外可观测的播放快照
// 仅由 TimelineController 修改，其余组件只读
type PlaybackState struct {
	CurrentSegmentIndex   int     `json:"currentSegmentIndex"`
	IsPlaying             bool    `json:"isPlaying"`
	IsMuted               bool    `json:"isMuted"`
	GlobalProgressPercent float64 `json:"globalProgressPercent"` // 0-100
	CurrentImageIndex     int     `json:"currentImageIndex"`
	IsFullscreen          bool    `json:"isFullscreen"`
	NeedsGesture          bool    `json:"needsGesture,omitempty"` // 自动播放被拒，需要用户手势
	EndedPass             bool    `json:"endedPass,omitempty"`    // 刚完成一次完整播放
	StateVersion          int64   `json:"stateVersion"`           // 单调递增，解决乱序快照
	UpdatedAt             int64   `json:"updatedAt"`              // 时间戳毫秒
}
