package engine

import (
	"testing"

	"SceneCast/model"
)

func TestResolveStrategy(t *testing.T) {
	tests := []struct {
		name string
		p    model.Presentation
		seg  model.Segment
		want model.Strategy
	}{
		{
			name: "single media url overrides segment contents",
			p:    model.Presentation{SingleMediaURL: "http://cdn/full.mp4"},
			seg:  model.Segment{VideoURL: "http://cdn/clip.mp4"},
			want: model.StrategySingleVideo,
		},
		{
			name: "video url wins",
			seg:  model.Segment{VideoURL: "http://cdn/clip.mp4", AudioURL: "http://cdn/a.mp3", ImageURLs: []string{"i1"}},
			want: model.StrategySceneVideo,
		},
		{
			name: "audio with images",
			seg:  model.Segment{AudioURL: "http://cdn/a.mp3", ImageURLs: []string{"i1", "i2"}},
			want: model.StrategyCarouselAudio,
		},
		{
			name: "images only",
			seg:  model.Segment{ImageURLs: []string{"i1"}},
			want: model.StrategyCarouselSilent,
		},
		{
			name: "audio without images is not playable",
			seg:  model.Segment{AudioURL: "http://cdn/a.mp3"},
			want: model.StrategyEmpty,
		},
		{
			name: "nothing at all",
			seg:  model.Segment{},
			want: model.StrategyEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveStrategy(&tt.p, &tt.seg)
			if got != tt.want {
				t.Errorf("ResolveStrategy() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlanSegmentDegradation(t *testing.T) {
	ps := &PlanSegment{
		Strategy:  model.StrategySceneVideo,
		VideoURL:  "http://cdn/clip.mp4",
		AudioURL:  "http://cdn/a.mp3",
		ImageURLs: []string{"i1", "i2"},
	}

	// 视频失败 → 沿判定链落到音频轮播
	ps.MarkVideoFailed()
	if ps.Strategy != model.StrategyCarouselAudio {
		t.Fatalf("after video failure got %s, want %s", ps.Strategy, model.StrategyCarouselAudio)
	}

	// 音频再失败 → 无声轮播
	ps.MarkAudioFailed()
	if ps.Strategy != model.StrategyCarouselSilent {
		t.Fatalf("after audio failure got %s, want %s", ps.Strategy, model.StrategyCarouselSilent)
	}

	// 图片也失败 → 占位
	ps.MarkImagesFailed()
	if ps.Strategy != model.StrategyEmpty {
		t.Fatalf("after image failure got %s, want %s", ps.Strategy, model.StrategyEmpty)
	}
	if ps.ImageCount() != 0 {
		t.Errorf("failed images should not count, got %d", ps.ImageCount())
	}
}

func TestBuildPlanSingleVideo(t *testing.T) {
	p := &model.Presentation{
		SingleMediaURL: "http://cdn/full.mp4",
		Segments: []model.Segment{
			{DeclaredDuration: 5},
			{DeclaredDuration: 7},
			{}, // 未声明，兜底 3 秒
		},
	}

	plan := BuildPlan(p)
	if len(plan) != 1 {
		t.Fatalf("single video plan should collapse to one unit, got %d", len(plan))
	}
	if plan[0].Strategy != model.StrategySingleVideo {
		t.Errorf("strategy = %s, want %s", plan[0].Strategy, model.StrategySingleVideo)
	}
	if plan[0].Fallback != 15 {
		t.Errorf("fallback = %v, want 15 (5+7+3)", plan[0].Fallback)
	}
}

func TestBuildPlanPerSegment(t *testing.T) {
	p := &model.Presentation{
		Segments: []model.Segment{
			{VideoURL: "v1", DeclaredDuration: 10},
			{AudioURL: "a1", ImageURLs: []string{"i1", "i2", "i3"}},
		},
	}

	plan := BuildPlan(p)
	if len(plan) != 2 {
		t.Fatalf("plan length = %d, want 2", len(plan))
	}
	if plan[0].Strategy != model.StrategySceneVideo || plan[1].Strategy != model.StrategyCarouselAudio {
		t.Errorf("strategies = %s/%s", plan[0].Strategy, plan[1].Strategy)
	}
	if plan[0].Fallback != 10 || plan[1].Fallback != model.DefaultSegmentDuration {
		t.Errorf("fallbacks = %v/%v", plan[0].Fallback, plan[1].Fallback)
	}
}
