package engine

import (
	"testing"
	"time"

	"SceneCast/model"
)

func newTestBinder() (*MediaBinder, *SimElement, *SimElement) {
	video := NewSimElement("video", 0)
	audio := NewSimElement("audio", 0)
	return NewMediaBinder(video, audio, 10*time.Millisecond), video, audio
}

func TestBindSetsSourcesByStrategy(t *testing.T) {
	b, video, audio := newTestBinder()
	defer video.Close()
	defer audio.Close()

	gen, err := b.Bind(BindRequest{
		Index:   0,
		Segment: &PlanSegment{Strategy: model.StrategySceneVideo, VideoURL: "http://cdn/v.mp4"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if video.Source() != "http://cdn/v.mp4" || audio.Source() != "" {
		t.Errorf("scene-video sources: video=%q audio=%q", video.Source(), audio.Source())
	}
	if !b.IsCurrent(gen) {
		t.Error("fresh bind should be current")
	}

	gen2, err := b.Bind(BindRequest{
		Index:   1,
		Segment: &PlanSegment{Strategy: model.StrategyCarouselAudio, AudioURL: "http://cdn/a.mp3", ImageURLs: []string{"i1"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if audio.Source() != "http://cdn/a.mp3" || video.Source() != "" {
		t.Errorf("carousel sources: video=%q audio=%q", video.Source(), audio.Source())
	}

	// 重绑后旧代数必须失效
	if b.IsCurrent(gen) {
		t.Error("previous generation still current after rebind")
	}
	if idx, ok := b.BoundIndex(); !ok || idx != 1 {
		t.Errorf("BoundIndex = (%d, %v), want (1, true)", idx, ok)
	}
	_ = gen2
}

func TestUnbindClearsEverything(t *testing.T) {
	b, video, audio := newTestBinder()
	defer video.Close()
	defer audio.Close()

	gen, _ := b.Bind(BindRequest{
		Index:   0,
		Segment: &PlanSegment{Strategy: model.StrategySceneVideo, VideoURL: "http://cdn/v.mp4"},
	})

	b.Unbind()
	if video.Source() != "" || audio.Source() != "" {
		t.Errorf("sources not cleared: video=%q audio=%q", video.Source(), audio.Source())
	}
	if b.IsCurrent(gen) {
		t.Error("generation survived unbind")
	}
	if _, ok := b.BoundIndex(); ok {
		t.Error("binder still reports a bound segment")
	}
}

func TestStaleGenerationCallbacksAreInert(t *testing.T) {
	b, video, audio := newTestBinder()
	defer video.Close()
	defer audio.Close()

	var got []int64
	cb := BoundCallbacks{
		OnTick: func(gen int64, _ float64) { got = append(got, gen) },
	}

	genA, _ := b.Bind(BindRequest{
		Index:     0,
		Segment:   &PlanSegment{Strategy: model.StrategySceneVideo, VideoURL: "http://cdn/a.mp4"},
		Playing:   true,
		Callbacks: cb,
	})
	b.Bind(BindRequest{
		Index:     1,
		Segment:   &PlanSegment{Strategy: model.StrategySceneVideo, VideoURL: "http://cdn/b.mp4"},
		Callbacks: cb,
	})

	// 段 A 已被替换：排队迟到的 A 代事件不允许改任何状态
	if b.IsCurrent(genA) {
		t.Fatal("stale generation reported current")
	}
	if len(got) != 0 {
		t.Errorf("stale callbacks leaked through: %v", got)
	}
}

func TestStartReportsAutoplayRejection(t *testing.T) {
	b, video, audio := newTestBinder()
	defer video.Close()
	defer audio.Close()

	video.SetRejectPlayFunc(func(_ string, muted bool) bool { return !muted })

	_, err := b.Bind(BindRequest{
		Index:     0,
		Segment:   &PlanSegment{Strategy: model.StrategySceneVideo, VideoURL: "http://cdn/v.mp4"},
		Playing:   true,
		Muted:     false,
		Callbacks: BoundCallbacks{},
	})
	if err != ErrAutoplayBlocked {
		t.Fatalf("err = %v, want ErrAutoplayBlocked", err)
	}

	// 静音后重试应当成功
	gen, err := b.Bind(BindRequest{
		Index:   0,
		Segment: &PlanSegment{Strategy: model.StrategySceneVideo, VideoURL: "http://cdn/v.mp4"},
		Playing: true,
		Muted:   true,
	})
	if err != nil {
		t.Fatalf("muted retry failed: %v", err)
	}
	if !b.IsCurrent(gen) {
		t.Error("bind not current after successful start")
	}
}

func TestMutePropagatesToBothElements(t *testing.T) {
	b, video, audio := newTestBinder()
	defer video.Close()
	defer audio.Close()

	b.Bind(BindRequest{
		Index:   0,
		Segment: &PlanSegment{Strategy: model.StrategySceneVideo, VideoURL: "http://cdn/v.mp4"},
	})

	b.SetMuted(true)
	if !video.Muted() || !audio.Muted() {
		t.Error("mute flag must reach both shared elements")
	}
	b.SetMuted(false)
	if video.Muted() || audio.Muted() {
		t.Error("unmute flag must reach both shared elements")
	}
}

func TestMetadataEventCarriesGeneration(t *testing.T) {
	b, video, audio := newTestBinder()
	defer video.Close()
	defer audio.Close()

	video.SetMetadataFunc(func(string) (float64, error) { return 12.5, nil })

	type meta struct {
		gen int64
		dur float64
	}
	metaCh := make(chan meta, 1)
	gen, _ := b.Bind(BindRequest{
		Index:   0,
		Segment: &PlanSegment{Strategy: model.StrategySceneVideo, VideoURL: "http://cdn/v.mp4"},
		Callbacks: BoundCallbacks{
			OnMetadata: func(g int64, d float64) {
				metaCh <- meta{gen: g, dur: d}
			},
		},
	})

	select {
	case m := <-metaCh:
		if m.dur != 12.5 {
			t.Errorf("measured duration = %v, want 12.5", m.dur)
		}
		if m.gen != gen {
			t.Errorf("callback generation = %d, want %d", m.gen, gen)
		}
	case <-time.After(time.Second):
		t.Fatal("metadata callback never fired")
	}
}
