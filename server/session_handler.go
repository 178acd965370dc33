package server

import (
	"context"
	"encoding/json"
	"net/http"

	"SceneCast/cache"
	"SceneCast/config"
	"SceneCast/core/auth"
	"SceneCast/core/session"
	"SceneCast/logger"
	"SceneCast/repository"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// SessionHandler 观看会话相关的 HTTP / WebSocket 处理器
type SessionHandler struct {
	manager      *session.Manager
	hub          *session.SessionHub
	repo         repository.PresentationRepository
	sessionCache *cache.SessionCache
	cfg          *config.Config
	upgrader     websocket.Upgrader
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(manager *session.Manager, hub *session.SessionHub, repo repository.PresentationRepository, sessionCache *cache.SessionCache, cfg *config.Config) *SessionHandler {
	return &SessionHandler{
		manager:      manager,
		hub:          hub,
		repo:         repo,
		sessionCache: sessionCache,
		cfg:          cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ========== HTTP 处理器 ==========

// WatchRequest 开始观看请求
type WatchRequest struct {
	Passcode string `json:"passcode,omitempty"`
}

// WatchResponse 开始观看响应
type WatchResponse struct {
	SessionID string  `json:"sessionId"`
	Token     string  `json:"token"`
	Title     string  `json:"title"`
	Total     float64 `json:"totalDuration"`
}

// WatchHandler 用分享标识开一个观看会话
// 受口令保护的演示文稿要求请求体携带正确口令
func (h *SessionHandler) WatchHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	slug := vars["slug"]

	rec, err := h.repo.GetByShareSlug(ctx, slug)
	if err != nil {
		logger.Error("查询演示文稿失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "Presentation not found", http.StatusNotFound)
		return
	}

	var req WatchRequest
	if r.Body != nil {
		// 无口令的演示文稿允许空请求体
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if rec.HasPasscode() && !auth.CheckPasscodeHash(req.Passcode, rec.PasscodeHash) {
		logger.Warn("口令校验失败", logger.String("slug", slug))
		http.Error(w, "Invalid passcode", http.StatusUnauthorized)
		return
	}

	s, err := h.manager.CreateSession(ctx, rec)
	if err != nil {
		logger.Error("创建观看会话失败", logger.ErrorField(err))
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateSessionToken(s.ID, slug, h.cfg.SessionTokenExpiry)
	if err != nil {
		logger.Error("签发会话令牌失败", logger.ErrorField(err))
		h.manager.CloseSession(s.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&WatchResponse{
		SessionID: s.ID,
		Token:     token,
		Title:     s.Title,
		Total:     s.Controller().TotalDuration(),
	})
}

// GetSessionStateHandler 拉取会话当前状态快照
// 活跃会话直接读控制器，已漂移到其它实例的会话回退读缓存
func (h *SessionHandler) GetSessionStateHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["session_id"]

	if s, ok := h.manager.GetSession(sessionID); ok {
		snap := s.Controller().Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
		return
	}

	if h.sessionCache != nil {
		snap, err := h.sessionCache.GetSnapshot(r.Context(), sessionID)
		if err != nil {
			logger.Warn("读取会话快照失败", logger.ErrorField(err))
		} else if snap != nil {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(snap)
			return
		}
	}

	http.Error(w, "Session not found", http.StatusNotFound)
}

// CloseSessionHandler 主动结束会话
func (h *SessionHandler) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["session_id"]

	if _, ok := h.manager.GetSession(sessionID); !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	h.manager.CloseSession(sessionID)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "closed"})
}

// ========== WebSocket 处理器 ==========

// WebSocketHandler 观看端接入
// 令牌通过查询参数传递（WebSocket 无法自定义 header）
func (h *SessionHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["session_id"]

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "缺少认证信息", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ParseSessionToken(token)
	if err != nil || claims.SessionID != sessionID {
		http.Error(w, "无效的会话令牌", http.StatusUnauthorized)
		return
	}

	s, ok := h.manager.GetSession(sessionID)
	if !ok {
		http.Error(w, "会话不存在", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := &session.Client{
		Hub:       h.hub,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		SessionID: sessionID,
		ViewerID:  uuid.NewString(),
	}

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(context.Background(), h.handleMessage)

	// 接入即推一份当前状态，观看端无需等下一次变化
	snap := s.Controller().Snapshot()
	if data, err := json.Marshal(snap); err == nil {
		client.SendMessage(&session.WSMessage{
			Type:      session.MsgTypeState,
			SessionID: sessionID,
			Data:      data,
		})
	}

	logger.Info("WebSocket 连接建立",
		logger.String("session", sessionID),
		logger.String("viewer", client.ViewerID))
}

// handleMessage 把观看端命令转交给会话管理器
func (h *SessionHandler) handleMessage(ctx context.Context, client *session.Client, msg *session.WSMessage) {
	if err := h.manager.HandleCommand(client.SessionID, msg); err != nil {
		logger.Warn("控制命令执行失败",
			logger.String("session", client.SessionID),
			logger.String("type", string(msg.Type)),
			logger.ErrorField(err))

		data, _ := json.Marshal(session.ErrorData{Message: err.Error()})
		client.SendMessage(&session.WSMessage{
			Type:      session.MsgTypeError,
			SessionID: client.SessionID,
			Data:      data,
		})
	}
}
