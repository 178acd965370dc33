package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"SceneCast/config"
	"SceneCast/core/engine"
	"SceneCast/model"
)

func testConfig() *config.Config {
	return &config.Config{
		// tick 为 0：元素不自走，状态迁移全部同步可断言
		ClockTick:          0,
		ProbeWorkers:       2,
		PresignExpiry:      time.Minute,
		SessionTokenExpiry: time.Hour,
	}
}

func testRecord() *model.PresentationRecord {
	return &model.PresentationRecord{
		ID:        1,
		Title:     "双段样例",
		ShareSlug: "two-scenes",
		Segments: model.SegmentList{
			{VideoURL: "https://cdn.example.com/a.mp4", DeclaredDuration: 10},
			{VideoURL: "https://cdn.example.com/b.mp4", DeclaredDuration: 10},
		},
	}
}

func TestCreateSessionStartsReady(t *testing.T) {
	m := NewManager(nil, nil, nil, testConfig())
	defer m.CloseAll()

	s, err := m.CreateSession(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if s.ID == "" {
		t.Error("session id must be assigned")
	}
	if s.ShareSlug != "two-scenes" {
		t.Errorf("slug = %q", s.ShareSlug)
	}
	if got := s.Controller().State(); got != engine.StateReady {
		t.Errorf("state = %v, want ready", got)
	}
	if total := s.Controller().TotalDuration(); total != 20 {
		t.Errorf("total = %v, want 20", total)
	}
	if m.SessionCount() != 1 {
		t.Errorf("session count = %d", m.SessionCount())
	}
}

func TestCreateSessionRejectsEmptyRecord(t *testing.T) {
	m := NewManager(nil, nil, nil, testConfig())
	defer m.CloseAll()

	_, err := m.CreateSession(context.Background(), &model.PresentationRecord{ShareSlug: "void"})
	if err == nil {
		t.Fatal("expected error for empty presentation")
	}
	if m.SessionCount() != 0 {
		t.Error("failed session must not be registered")
	}
}

func TestHandleCommandDrivesPlayback(t *testing.T) {
	m := NewManager(nil, nil, nil, testConfig())
	defer m.CloseAll()

	s, err := m.CreateSession(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := m.HandleCommand(s.ID, &WSMessage{Type: MsgTypePlay}); err != nil {
		t.Fatalf("play: %v", err)
	}
	if snap := s.Controller().Snapshot(); !snap.IsPlaying {
		t.Error("expected playing after play command")
	}

	seek, _ := json.Marshal(SeekData{Percent: 75})
	if err := m.HandleCommand(s.ID, &WSMessage{Type: MsgTypeSeek, Data: seek}); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if snap := s.Controller().Snapshot(); snap.CurrentSegmentIndex != 1 {
		t.Errorf("segment after 75%% seek = %d, want 1", snap.CurrentSegmentIndex)
	}

	if err := m.HandleCommand(s.ID, &WSMessage{Type: MsgTypePause}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if snap := s.Controller().Snapshot(); snap.IsPlaying {
		t.Error("expected paused")
	}

	if err := m.HandleCommand(s.ID, &WSMessage{Type: MsgTypeToggleMute}); err != nil {
		t.Fatalf("toggle mute: %v", err)
	}
	if snap := s.Controller().Snapshot(); !snap.IsMuted {
		t.Error("expected muted")
	}

	if err := m.HandleCommand(s.ID, &WSMessage{Type: MsgTypeFullscreen}); err != nil {
		t.Fatalf("fullscreen: %v", err)
	}
	if snap := s.Controller().Snapshot(); !snap.IsFullscreen {
		t.Error("expected fullscreen flag set")
	}
}

func TestCreateSessionFeedsMeasuredDurations(t *testing.T) {
	m := NewManager(nil, nil, nil, testConfig())
	defer m.CloseAll()

	// 对象存储引用的实测时长必须能穿过真实的创建流程修正时间轴
	statRefs := make(chan string, 4)
	m.stat = func(ctx context.Context, ref string) (float64, error) {
		statRefs <- ref
		if ref == "minio://media/a.mp4" {
			return 12.5, nil
		}
		return 0, nil
	}

	rec := &model.PresentationRecord{
		ID:        3,
		Title:     "对象存储样例",
		ShareSlug: "stored",
		Segments: model.SegmentList{
			{VideoURL: "minio://media/a.mp4", DeclaredDuration: 10},
			{ImageURLs: []string{"minio://media/p.png"}, DeclaredDuration: 6},
		},
	}
	s, err := m.CreateSession(context.Background(), rec)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for s.Controller().TotalDuration() != 18.5 {
		select {
		case <-deadline:
			t.Fatalf("total = %v, want 18.5 after measurement", s.Controller().TotalDuration())
		case <-time.After(5 * time.Millisecond):
		}
	}

	select {
	case ref := <-statRefs:
		if ref != "minio://media/a.mp4" {
			t.Errorf("stat ref = %q, want the original storage ref", ref)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("duration stat never invoked")
	}
}

func TestOriginalRefsMapsResolvedURLsBack(t *testing.T) {
	orig := &model.Presentation{
		Segments: []model.Segment{
			{VideoURL: "minio://media/a.mp4", DeclaredDuration: 10},
			{AudioURL: "minio://media/b.mp3", ImageURLs: []string{"p.png"}, DeclaredDuration: 6},
			{VideoURL: "https://cdn.example.com/c.mp4", DeclaredDuration: 5},
		},
	}
	resolved := &model.Presentation{
		Segments: []model.Segment{
			{VideoURL: "https://minio.local/media/a.mp4?sig=1", DeclaredDuration: 10},
			{AudioURL: "https://minio.local/media/b.mp3?sig=2", ImageURLs: []string{"p.png"}, DeclaredDuration: 6},
			{VideoURL: "https://cdn.example.com/c.mp4", DeclaredDuration: 5},
		},
	}

	s := &Session{}
	s.setRefs(originalRefs(orig, resolved))

	if got := s.originalRef("https://minio.local/media/a.mp4?sig=1"); got != "minio://media/a.mp4" {
		t.Errorf("video ref = %q", got)
	}
	if got := s.originalRef("https://minio.local/media/b.mp3?sig=2"); got != "minio://media/b.mp3" {
		t.Errorf("audio ref = %q", got)
	}
	// 未经改写的 URL 原样返回
	if got := s.originalRef("https://cdn.example.com/c.mp4"); got != "https://cdn.example.com/c.mp4" {
		t.Errorf("passthrough ref = %q", got)
	}
}

func TestHandleCommandUnknownSessionOrType(t *testing.T) {
	m := NewManager(nil, nil, nil, testConfig())
	defer m.CloseAll()

	if err := m.HandleCommand("nope", &WSMessage{Type: MsgTypePlay}); err == nil {
		t.Error("expected error for unknown session")
	}

	s, _ := m.CreateSession(context.Background(), testRecord())
	if err := m.HandleCommand(s.ID, &WSMessage{Type: "dance"}); err == nil {
		t.Error("expected error for unknown command")
	}
}

// memRepo 内存仓库，换片命令测试用
type memRepo struct {
	bySlug map[string]*model.PresentationRecord
}

func (r *memRepo) Create(ctx context.Context, rec *model.PresentationRecord) error {
	r.bySlug[rec.ShareSlug] = rec
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id int64) (*model.PresentationRecord, error) {
	return nil, nil
}

func (r *memRepo) GetByShareSlug(ctx context.Context, slug string) (*model.PresentationRecord, error) {
	return r.bySlug[slug], nil
}

func (r *memRepo) UpsertBySlug(ctx context.Context, rec *model.PresentationRecord) error {
	r.bySlug[rec.ShareSlug] = rec
	return nil
}

func (r *memRepo) List(ctx context.Context, limit, offset int) ([]*model.PresentationRecord, error) {
	return nil, nil
}

func (r *memRepo) Delete(ctx context.Context, id int64) error { return nil }

func TestSetPresentationCommandSwapsTimeline(t *testing.T) {
	other := &model.PresentationRecord{
		ID:        2,
		Title:     "三段样例",
		ShareSlug: "three-scenes",
		Segments: model.SegmentList{
			{ImageURLs: []string{"x.png"}, DeclaredDuration: 4},
			{ImageURLs: []string{"y.png"}, DeclaredDuration: 4},
			{ImageURLs: []string{"z.png"}, DeclaredDuration: 4},
		},
	}
	repo := &memRepo{bySlug: map[string]*model.PresentationRecord{"three-scenes": other}}

	m := NewManager(nil, nil, repo, testConfig())
	defer m.CloseAll()

	s, err := m.CreateSession(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	data, _ := json.Marshal(SetPresentationData{ShareSlug: "three-scenes"})
	if err := m.HandleCommand(s.ID, &WSMessage{Type: MsgTypeSetPresentation, Data: data}); err != nil {
		t.Fatalf("set_presentation: %v", err)
	}

	if s.ShareSlug != "three-scenes" {
		t.Errorf("slug = %q, want three-scenes", s.ShareSlug)
	}
	if total := s.Controller().TotalDuration(); total != 12 {
		t.Errorf("total after swap = %v, want 12", total)
	}
	if snap := s.Controller().Snapshot(); snap.CurrentSegmentIndex != 0 || snap.GlobalProgressPercent != 0 {
		t.Errorf("timeline not reset: %+v", snap)
	}

	// 未知的分享标识报错，时间线保持原样
	data, _ = json.Marshal(SetPresentationData{ShareSlug: "missing"})
	if err := m.HandleCommand(s.ID, &WSMessage{Type: MsgTypeSetPresentation, Data: data}); err == nil {
		t.Error("expected error for unknown share slug")
	}
	if total := s.Controller().TotalDuration(); total != 12 {
		t.Errorf("timeline changed after failed swap: %v", total)
	}
}

func TestCloseSessionReleasesResources(t *testing.T) {
	m := NewManager(nil, nil, nil, testConfig())

	s, err := m.CreateSession(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	m.CloseSession(s.ID)

	if _, ok := m.GetSession(s.ID); ok {
		t.Error("session still registered after close")
	}
	if m.SessionCount() != 0 {
		t.Errorf("session count = %d", m.SessionCount())
	}

	// 重复关闭是安全的
	m.CloseSession(s.ID)
}

func TestSnapshotListenerBroadcastsThroughHub(t *testing.T) {
	hub := NewSessionHub()
	go hub.Run()
	defer hub.Stop()

	m := NewManager(hub, nil, nil, testConfig())
	defer m.CloseAll()

	s, err := m.CreateSession(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	client := &Client{
		Hub:       hub,
		Send:      make(chan []byte, 16),
		SessionID: s.ID,
		ViewerID:  "viewer-1",
	}
	hub.Register(client)

	// 等注册完成
	deadline := time.After(2 * time.Second)
	for hub.SessionClientCount(s.ID) == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := m.HandleCommand(s.ID, &WSMessage{Type: MsgTypePlay}); err != nil {
		t.Fatalf("play: %v", err)
	}

	select {
	case raw := <-client.Send:
		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if msg.Type != MsgTypeState {
			t.Errorf("message type = %q, want state", msg.Type)
		}
		var snap model.PlaybackState
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
		if !snap.IsPlaying {
			t.Error("broadcast snapshot should show playing")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state broadcast received")
	}
}
