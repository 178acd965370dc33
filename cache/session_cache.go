package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SceneCast/logger"
	"SceneCast/model"

	"github.com/redis/go-redis/v9"
)

const (
	sessionStateKey = "session:%s:state" // String: PlaybackState JSON
	sessionInfoKey  = "session:%s:info"  // Hash: 会话元信息
)

// SessionCache 观看会话的快照缓存
// 宿主 UI 重连时先读这里，不必等下一个 tick
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache 创建会话缓存
func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{client: RedisClient, ttl: ttl}
}

// SetSnapshot 写入最新播放快照，旧版本号的快照直接丢弃
func (c *SessionCache) SetSnapshot(ctx context.Context, sessionID string, state *model.PlaybackState) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionStateKey, sessionID)

	// 乱序保护：只允许版本号前进
	if prev, err := c.GetSnapshot(ctx, sessionID); err == nil && prev != nil && prev.StateVersion >= state.StateVersion {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal playback state: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("写入会话快照失败",
			logger.String("sessionId", sessionID),
			logger.ErrorField(err))
		return err
	}
	return nil
}

// GetSnapshot 读取最新播放快照，缓存未命中返回 (nil, nil)
func (c *SessionCache) GetSnapshot(ctx context.Context, sessionID string) (*model.PlaybackState, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionStateKey, sessionID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session snapshot: %w", err)
	}

	var state model.PlaybackState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playback state: %w", err)
	}
	return &state, nil
}

// SetSessionInfo 记录会话与演示文稿的关联
func (c *SessionCache) SetSessionInfo(ctx context.Context, sessionID string, presentationID int64, shareSlug string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionInfoKey, sessionID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key,
		"presentationId", presentationID,
		"shareSlug", shareSlug,
		"createdAt", time.Now().UnixMilli())
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set session info: %w", err)
	}
	return nil
}

// ClearSession 会话结束时清理
func (c *SessionCache) ClearSession(ctx context.Context, sessionID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	pipe := c.client.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(sessionStateKey, sessionID))
	pipe.Del(ctx, fmt.Sprintf(sessionInfoKey, sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("清理会话缓存失败",
			logger.String("sessionId", sessionID),
			logger.ErrorField(err))
		return err
	}
	return nil
}
