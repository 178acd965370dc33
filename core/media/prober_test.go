package media

import (
	"context"
	"errors"
	"sync"
	"testing"

	"SceneCast/core/engine"
	"SceneCast/model"
)

func TestProbeReportsAuthoritativeMediaOnly(t *testing.T) {
	p := &model.Presentation{Segments: []model.Segment{
		{VideoURL: "v1.mp4", DeclaredDuration: 5},
		{AudioURL: "a1.mp3", ImageURLs: []string{"i1.png"}, DeclaredDuration: 7},
		{ImageURLs: []string{"i2.png"}, DeclaredDuration: 3}, // 无声轮播，走声明时长
		{DeclaredDuration: 2}, // 占位段
	}}
	plan := engine.BuildPlan(p)

	durations := map[string]float64{
		"v1.mp4": 5.4,
		"a1.mp3": 7.2,
		"i1.png": 99, // 图片不是权威媒体，不应被探测
	}
	var mu sync.Mutex
	probed := make(map[string]bool)

	prober := NewProberWithStat(2, func(ctx context.Context, ref string) (float64, error) {
		mu.Lock()
		probed[ref] = true
		mu.Unlock()
		return durations[ref], nil
	})

	reported := make(map[int]float64)
	prober.Probe(context.Background(), plan, func(i int, d float64) {
		mu.Lock()
		reported[i] = d
		mu.Unlock()
	})

	if len(reported) != 2 {
		t.Fatalf("reported %d segments, want 2: %v", len(reported), reported)
	}
	if reported[0] != 5.4 {
		t.Errorf("segment 0 duration = %v, want 5.4", reported[0])
	}
	if reported[1] != 7.2 {
		t.Errorf("segment 1 duration = %v, want 7.2", reported[1])
	}
	if probed["i1.png"] || probed["i2.png"] {
		t.Error("image refs should not be probed")
	}
}

func TestProbeToleratesFailures(t *testing.T) {
	p := &model.Presentation{Segments: []model.Segment{
		{VideoURL: "broken.mp4"},
		{VideoURL: "ok.mp4"},
	}}
	plan := engine.BuildPlan(p)

	prober := NewProberWithStat(1, func(ctx context.Context, ref string) (float64, error) {
		if ref == "broken.mp4" {
			return 0, errors.New("stat failed")
		}
		return 11, nil
	})

	var mu sync.Mutex
	reported := make(map[int]float64)
	prober.Probe(context.Background(), plan, func(i int, d float64) {
		mu.Lock()
		reported[i] = d
		mu.Unlock()
	})

	if len(reported) != 1 || reported[1] != 11 {
		t.Errorf("reported = %v, want only segment 1 with 11", reported)
	}
}

func TestProbeSkipsZeroDurations(t *testing.T) {
	p := &model.Presentation{Segments: []model.Segment{{VideoURL: "nodur.mp4"}}}
	plan := engine.BuildPlan(p)

	prober := NewProberWithStat(1, func(ctx context.Context, ref string) (float64, error) {
		return 0, nil // 对象没有时长元数据
	})

	called := false
	prober.Probe(context.Background(), plan, func(i int, d float64) { called = true })
	if called {
		t.Error("zero duration must not be reported")
	}
}

func TestProbeSingleMediaUsesCollapsedUnit(t *testing.T) {
	p := &model.Presentation{
		SingleMediaURL: "full.mp4",
		Segments: []model.Segment{
			{DeclaredDuration: 5},
			{DeclaredDuration: 7},
		},
	}
	plan := engine.BuildPlan(p)

	prober := NewProberWithStat(1, func(ctx context.Context, ref string) (float64, error) {
		if ref != "full.mp4" {
			t.Errorf("unexpected probe ref %q", ref)
		}
		return 13.5, nil
	})

	var got float64
	prober.Probe(context.Background(), plan, func(i int, d float64) {
		if i != 0 {
			t.Errorf("single media must report unit 0, got %d", i)
		}
		got = d
	})
	if got != 13.5 {
		t.Errorf("duration = %v, want 13.5", got)
	}
}
