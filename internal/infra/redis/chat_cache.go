package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"rag-chat/internal/domain/model"
	"rag-chat/internal/domain/ports/repository"
	"rag-chat/internal/infra/metrics"
)

var _ repository.ChatSessionRepository = (*chatSessionCache)(nil)

// chatSessionCache keeps session rows in redis in front of the store.
// Messages are not cached; any write touching a session drops its key.
type chatSessionCache struct {
	inner  repository.ChatSessionRepository
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewChatSessionCache(inner repository.ChatSessionRepository, client RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.ChatSessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "session_cache").Logger()
	return &chatSessionCache{inner: inner, client: client, ttl: ttl, log: &l}
}

func sessionKey(id string) string { return "chat_session:" + id }

func (c *chatSessionCache) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	key := sessionKey(id)
	val, err := c.client.Get(ctx, key)
	if err == nil {
		var s model.ChatSession
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncCacheRequest("chat_session", "hit")
			return &s, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}

	metrics.IncCacheRequest("chat_session", "miss")
	s, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(s); err == nil {
		if err := c.client.Set(ctx, key, b, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
		}
	}
	return s, nil
}

func (c *chatSessionCache) Create(ctx context.Context, s *model.ChatSession) error {
	return c.inner.Create(ctx, s)
}

func (c *chatSessionCache) List(ctx context.Context, limit, offset int) ([]*model.ChatSession, error) {
	return c.inner.List(ctx, limit, offset)
}

func (c *chatSessionCache) UpdateTitle(ctx context.Context, id, title string) error {
	err := c.inner.UpdateTitle(ctx, id, title)
	c.invalidate(ctx, id)
	return err
}

func (c *chatSessionCache) Delete(ctx context.Context, id string) error {
	err := c.inner.Delete(ctx, id)
	c.invalidate(ctx, id)
	return err
}

func (c *chatSessionCache) AppendMessage(ctx context.Context, m *model.ChatMessage) error {
	err := c.inner.AppendMessage(ctx, m)
	// updated_at moved
	c.invalidate(ctx, m.SessionID)
	return err
}

func (c *chatSessionCache) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return c.inner.ListMessages(ctx, sessionID)
}

func (c *chatSessionCache) invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, sessionKey(id)); err != nil {
		c.log.Warn().Err(err).Str("session_id", id).Msg("cache invalidate failed")
	}
}
