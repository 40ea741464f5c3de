//go:build !integration

package redis

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chat/internal/domain"
	"rag-chat/internal/domain/model"
)

// fakeRedis is an in-memory RedisClient; expirations are recorded, not enforced.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	expires map[string]time.Duration
	getErr  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedis) Ping(context.Context) error { return nil }

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	default:
		return errors.New("unsupported value")
	}
	f.expires[key] = exp
	return nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeRedis) Expire(_ context.Context, key string, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = exp
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

// countingRepo serves one session and counts FindByID calls.
type countingRepo struct {
	session *model.ChatSession
	finds   int
}

func (r *countingRepo) Create(context.Context, *model.ChatSession) error { return nil }

func (r *countingRepo) FindByID(_ context.Context, id string) (*model.ChatSession, error) {
	r.finds++
	if r.session == nil || r.session.ID != id {
		return nil, domain.ErrNotFound
	}
	cp := *r.session
	return &cp, nil
}

func (r *countingRepo) List(context.Context, int, int) ([]*model.ChatSession, error) {
	return nil, nil
}

func (r *countingRepo) UpdateTitle(_ context.Context, id, title string) error {
	r.session.Title = title
	return nil
}

func (r *countingRepo) Delete(context.Context, string) error {
	r.session = nil
	return nil
}

func (r *countingRepo) AppendMessage(context.Context, *model.ChatMessage) error { return nil }

func (r *countingRepo) ListMessages(context.Context, string) ([]model.ChatMessage, error) {
	return nil, nil
}

func discardLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestChatSessionCache_FindByID(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	inner := &countingRepo{session: model.NewChatSession("s1", "Trip")}
	cache := NewChatSessionCache(inner, rdb, 10*time.Minute, discardLogger())

	first, err := cache.FindByID(ctx, "s1")
	require.NoError(t, err)
	second, err := cache.FindByID(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.finds, "second lookup is served from redis")
	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, 10*time.Minute, rdb.expires[sessionKey("s1")])

	_, err = cache.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, rdb.has(sessionKey("missing")), "misses are not cached")
}

func TestChatSessionCache_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	inner := &countingRepo{session: model.NewChatSession("s1", "")}
	cache := NewChatSessionCache(inner, rdb, time.Hour, discardLogger())

	_, _ = cache.FindByID(ctx, "s1")
	require.True(t, rdb.has(sessionKey("s1")))

	require.NoError(t, cache.UpdateTitle(ctx, "s1", "Renamed"))
	assert.False(t, rdb.has(sessionKey("s1")))
	got, _ := cache.FindByID(ctx, "s1")
	assert.Equal(t, "Renamed", got.Title)

	require.NoError(t, cache.AppendMessage(ctx, model.NewChatMessage("s1", model.RoleUser, "hi")))
	assert.False(t, rdb.has(sessionKey("s1")))

	_, _ = cache.FindByID(ctx, "s1")
	require.NoError(t, cache.Delete(ctx, "s1"))
	_, err := cache.FindByID(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChatSessionCache_RedisDownFallsThrough(t *testing.T) {
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	inner := &countingRepo{session: model.NewChatSession("s1", "")}
	cache := NewChatSessionCache(inner, rdb, time.Hour, discardLogger())

	s, err := cache.FindByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	rl := NewRateLimiter(rdb, 2, time.Minute)
	key := StreamKey("10.0.0.1", "stream")

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "stream", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "stream", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "third request in the window is rejected")
	assert.Equal(t, time.Minute, rdb.expires[key])

	ok, _ = rl.Allow(ctx, "stream", "10.0.0.2")
	assert.True(t, ok, "clients are counted separately")

	ok, _ = rl.Allow(ctx, "ws", "10.0.0.1")
	assert.True(t, ok, "routes have separate quotas")
	assert.Equal(t, time.Minute, rdb.expires[StreamKey("10.0.0.1", "ws")])
}
