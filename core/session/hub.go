package session

import (
	"encoding/json"
	"sync"
	"time"

	"SceneCast/logger"

	"github.com/gorilla/websocket"
)

// MessageType 消息类型
type MessageType string

const (
	// 系统消息
	MsgTypeError MessageType = "error" // 错误消息
	MsgTypePing  MessageType = "ping"  // 心跳
	MsgTypePong  MessageType = "pong"  // 心跳响应
	MsgTypeState MessageType = "state" // 播放状态快照（服务端 -> 观看端）

	// 播放控制消息（观看端 -> 服务端）
	MsgTypePlay            MessageType = "play"             // 播放（用户手势）
	MsgTypePause           MessageType = "pause"            // 暂停
	MsgTypeSeek            MessageType = "seek"             // 按全局百分比跳转
	MsgTypeToggleMute      MessageType = "toggle_mute"      // 切换静音
	MsgTypeFullscreen      MessageType = "fullscreen"       // 切换全屏标记
	MsgTypeSetPresentation MessageType = "set_presentation" // 换一份演示文稿
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SeekData 跳转命令数据
type SeekData struct {
	Percent float64 `json:"percent"`
}

// SetPresentationData 换片命令数据
type SetPresentationData struct {
	ShareSlug string `json:"shareSlug"`
	Passcode  string `json:"passcode,omitempty"`
}

// ErrorData 错误消息数据
type ErrorData struct {
	Message string `json:"message"`
}

// Client 观看端 WebSocket 客户端
type Client struct {
	Hub       *SessionHub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string
	ViewerID  string
}

// SessionHub 观看会话 WebSocket 管理中心
// 一个会话可以挂多个观看端，全部收到同一份状态快照
type SessionHub struct {
	// 会话 -> 客户端集合
	sessions map[string]map[*Client]bool

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 广播通道
	broadcast chan *BroadcastMessage

	mu sync.RWMutex

	// 关闭信号
	done chan struct{}
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	SessionID string
	Message   []byte
}

// NewSessionHub 创建会话 Hub
func NewSessionHub() *SessionHub {
	return &SessionHub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *SessionHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToSession(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *SessionHub) Stop() {
	close(h.done)
}

// registerClient 注册客户端
func (h *SessionHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[*Client]bool)
	}
	h.sessions[client.SessionID][client] = true

	logger.Info("观看端接入",
		logger.String("session", client.SessionID),
		logger.String("viewer", client.ViewerID))
}

// unregisterClient 注销客户端
func (h *SessionHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeClient(client)
}

// removeClient 移除客户端（内部方法，需要持有锁）
func (h *SessionHub) removeClient(client *Client) {
	if clients, ok := h.sessions[client.SessionID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)

			if len(clients) == 0 {
				delete(h.sessions, client.SessionID)
			}
		}
	}

	logger.Info("观看端断开",
		logger.String("session", client.SessionID),
		logger.String("viewer", client.ViewerID))
}

// broadcastToSession 向会话广播消息
func (h *SessionHub) broadcastToSession(msg *BroadcastMessage) {
	h.mu.RLock()
	clients, ok := h.sessions[msg.SessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// 复制客户端列表以避免长时间持有锁
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		select {
		case client.Send <- msg.Message:
		default:
			// 发送缓冲区满，移除客户端
			h.unregister <- client
		}
	}
}

// cleanup 清理所有连接
func (h *SessionHub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.sessions {
		for client := range clients {
			close(client.Send)
		}
	}
	h.sessions = make(map[string]map[*Client]bool)
}

// Register 注册客户端
func (h *SessionHub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *SessionHub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast 广播消息到会话
func (h *SessionHub) Broadcast(sessionID string, message []byte) {
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Message:   message,
	}
}

// BroadcastWSMessage 广播 WSMessage
func (h *SessionHub) BroadcastWSMessage(sessionID string, msg *WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(sessionID, data)
	return nil
}

// SessionClientCount 会话当前观看端数量
func (h *SessionHub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
