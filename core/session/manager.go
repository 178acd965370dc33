package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"SceneCast/cache"
	"SceneCast/config"
	"SceneCast/core/auth"
	"SceneCast/core/engine"
	"SceneCast/core/media"
	"SceneCast/logger"
	"SceneCast/model"
	"SceneCast/repository"
	"SceneCast/storage"

	"github.com/google/uuid"
)

// Session 一次观看会话：一条时间线加上承载它的一对媒体元素
type Session struct {
	ID        string
	ShareSlug string
	Title     string

	controller *engine.TimelineController
	video      *engine.SimElement
	audio      *engine.SimElement

	// 解析后 URL 到原始引用的映射，时长探测要用原始引用
	refsMu sync.Mutex
	refs   map[string]string

	CreatedAt time.Time
}

// Controller 返回会话的时间线控制器
func (s *Session) Controller() *engine.TimelineController {
	return s.controller
}

// setRefs 换片时整体替换引用映射
func (s *Session) setRefs(refs map[string]string) {
	s.refsMu.Lock()
	s.refs = refs
	s.refsMu.Unlock()
}

// originalRef 把元素看到的解析后 URL 还原成原始媒体引用
func (s *Session) originalRef(url string) string {
	s.refsMu.Lock()
	defer s.refsMu.Unlock()
	if ref, ok := s.refs[url]; ok {
		return ref
	}
	return url
}

// Manager 管理全部观看会话的生命周期
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	hub   *SessionHub
	cache *cache.SessionCache
	repo  repository.PresentationRepository
	stat  media.DurationFunc
	cfg   *config.Config
}

// NewManager 创建会话管理器
// cache 传 nil 表示不落快照缓存（纯内存运行）；repo 传 nil 则禁用换片命令
func NewManager(hub *SessionHub, sessionCache *cache.SessionCache, repo repository.PresentationRepository, cfg *config.Config) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		hub:      hub,
		cache:    sessionCache,
		repo:     repo,
		stat:     storage.StatMediaDuration,
		cfg:      cfg,
	}
}

// CreateSession 为一条演示文稿记录开一个观看会话
// 流程：解析媒体引用 -> 建元素与时间线 -> 装载 -> 后台探测实测时长
// 探测必须拿原始引用（如 minio://），解析后的预签名 URL 查不到对象元数据
func (m *Manager) CreateSession(ctx context.Context, rec *model.PresentationRecord) (*Session, error) {
	orig := rec.ToPresentation()
	p := rec.ToPresentation()
	storage.ResolvePresentation(ctx, p, m.cfg.PresignExpiry)

	video := engine.NewSimElement("video", m.cfg.ClockTick)
	audio := engine.NewSimElement("audio", m.cfg.ClockTick)

	ctrl := engine.NewTimelineController(video, audio, m.cfg.ClockTick)

	s := &Session{
		ID:         uuid.NewString(),
		ShareSlug:  rec.ShareSlug,
		Title:      rec.Title,
		controller: ctrl,
		video:      video,
		audio:      audio,
		CreatedAt:  time.Now(),
	}
	s.setRefs(originalRefs(orig, p))

	metadata := func(url string) (float64, error) {
		return m.stat(context.Background(), s.originalRef(url))
	}
	video.SetMetadataFunc(metadata)
	audio.SetMetadataFunc(metadata)

	// 每次状态变化都推给全部观看端，并写进快照缓存
	ctrl.SetSnapshotListener(func(snap model.PlaybackState) {
		m.publishSnapshot(s.ID, snap)
	})

	if err := ctrl.SetPresentation(p); err != nil {
		video.Close()
		audio.Close()
		return nil, fmt.Errorf("装载演示文稿失败: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.SetSessionInfo(ctx, s.ID, rec.ID, rec.ShareSlug); err != nil {
			logger.Warn("会话信息写缓存失败",
				logger.String("session", s.ID),
				logger.ErrorField(err))
		}
	}

	// 时长探测不阻塞会话创建，结果到达后逐段修正时间轴
	// 探测计划用原始引用构建，解析只影响播放用的副本
	prober := media.NewProberWithStat(m.cfg.ProbeWorkers, m.stat)
	go prober.Probe(context.Background(), engine.BuildPlan(orig), func(i int, d float64) {
		ctrl.SetMeasuredDuration(i, d)
	})

	logger.Info("观看会话已创建",
		logger.String("session", s.ID),
		logger.String("slug", rec.ShareSlug),
		logger.Float64("total", ctrl.TotalDuration()))
	return s, nil
}

// GetSession 按 ID 取会话
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// HandleCommand 执行观看端下发的播放控制命令
func (m *Manager) HandleCommand(sessionID string, msg *WSMessage) error {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("会话不存在: %s", sessionID)
	}

	switch msg.Type {
	case MsgTypePlay:
		return s.controller.Play()
	case MsgTypePause:
		s.controller.Pause()
		return nil
	case MsgTypeSeek:
		var data SeekData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("非法的跳转命令: %w", err)
		}
		return s.controller.Seek(data.Percent)
	case MsgTypeToggleMute:
		s.controller.ToggleMute()
		return nil
	case MsgTypeFullscreen:
		s.controller.RequestFullscreen()
		return nil
	case MsgTypeSetPresentation:
		var data SetPresentationData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("非法的换片命令: %w", err)
		}
		return m.setPresentation(s, &data)
	default:
		return fmt.Errorf("未知的控制命令: %s", msg.Type)
	}
}

// setPresentation 在现有会话上换一份演示文稿
// 时间线完全复位（丢弃实测时长、回到 0），静音偏好由控制器保留
func (m *Manager) setPresentation(s *Session, data *SetPresentationData) error {
	if m.repo == nil {
		return fmt.Errorf("换片命令不可用")
	}

	ctx := context.Background()
	rec, err := m.repo.GetByShareSlug(ctx, data.ShareSlug)
	if err != nil {
		return fmt.Errorf("查询演示文稿失败: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("演示文稿不存在: %s", data.ShareSlug)
	}
	if rec.HasPasscode() && !auth.CheckPasscodeHash(data.Passcode, rec.PasscodeHash) {
		return fmt.Errorf("口令错误")
	}

	orig := rec.ToPresentation()
	p := rec.ToPresentation()
	storage.ResolvePresentation(ctx, p, m.cfg.PresignExpiry)

	s.setRefs(originalRefs(orig, p))
	if err := s.controller.SetPresentation(p); err != nil {
		return fmt.Errorf("装载演示文稿失败: %w", err)
	}
	s.ShareSlug = rec.ShareSlug
	s.Title = rec.Title

	prober := media.NewProberWithStat(m.cfg.ProbeWorkers, m.stat)
	go prober.Probe(context.Background(), engine.BuildPlan(orig), func(i int, d float64) {
		s.controller.SetMeasuredDuration(i, d)
	})

	logger.Info("会话已换片",
		logger.String("session", s.ID),
		logger.String("slug", rec.ShareSlug))
	return nil
}

// CloseSession 结束会话并释放资源
func (m *Manager) CloseSession(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.controller.Close()
	s.video.Close()
	s.audio.Close()

	if m.cache != nil {
		if err := m.cache.ClearSession(context.Background(), id); err != nil {
			logger.Warn("清理会话缓存失败",
				logger.String("session", id),
				logger.ErrorField(err))
		}
	}

	logger.Info("观看会话已关闭", logger.String("session", id))
}

// CloseAll 关闭全部会话（服务停机时调用）
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.CloseSession(id)
	}
}

// SessionCount 当前活跃会话数
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// publishSnapshot 把状态快照广播给观看端并写缓存
func (m *Manager) publishSnapshot(sessionID string, snap model.PlaybackState) {
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Error("状态快照序列化失败", logger.ErrorField(err))
		return
	}

	if m.hub != nil {
		if err := m.hub.BroadcastWSMessage(sessionID, &WSMessage{
			Type:      MsgTypeState,
			SessionID: sessionID,
			Data:      data,
		}); err != nil {
			logger.Warn("状态广播失败",
				logger.String("session", sessionID),
				logger.ErrorField(err))
		}
	}

	if m.cache != nil {
		if err := m.cache.SetSnapshot(context.Background(), sessionID, &snap); err != nil {
			logger.Warn("状态写缓存失败",
				logger.String("session", sessionID),
				logger.ErrorField(err))
		}
	}
}

// originalRefs 对照解析前后的两份演示文稿，建立解析后 URL 到原始引用的映射
// 两份必须来自同一条记录，段序一致
func originalRefs(orig, resolved *model.Presentation) map[string]string {
	refs := make(map[string]string)
	add := func(before, after string) {
		if before != "" && after != "" && before != after {
			refs[after] = before
		}
	}
	add(orig.SingleMediaURL, resolved.SingleMediaURL)
	for i := range resolved.Segments {
		if i >= len(orig.Segments) {
			break
		}
		add(orig.Segments[i].VideoURL, resolved.Segments[i].VideoURL)
		add(orig.Segments[i].AudioURL, resolved.Segments[i].AudioURL)
	}
	return refs
}
