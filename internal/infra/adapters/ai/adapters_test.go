//go:build !integration

package ai

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chat/internal/domain/ports/adapter"
)

func TestNoopEmbedDeterministic(t *testing.T) {
	a := NewNoopAIAdapter()
	v1, err := a.Embed(context.Background(), "Capital of France")
	require.NoError(t, err)
	v2, _ := a.Embed(context.Background(), "capital of france")
	assert.Len(t, v1, NoopDimensions)
	assert.Equal(t, v1, v2, "embedding is case-insensitive and deterministic")
}

func TestNoopStreamEchoesQuery(t *testing.T) {
	a := NewNoopAIAdapter()
	msgs := []adapter.Message{{Role: adapter.RoleSystem, Content: "ctx"}, {Role: adapter.RoleUser, Content: "hello there"}}
	var out string
	for frag, err := range a.StreamCompletion(context.Background(), "noop", msgs, 100) {
		require.NoError(t, err)
		out += frag
	}
	assert.Equal(t, "You asked: hello there", out)
}

func TestGenAIContentsSplitSystem(t *testing.T) {
	system, contents := toGenAIContents([]adapter.Message{
		{Role: adapter.RoleSystem, Content: "You are a helpful assistant. Context: x"},
		{Role: adapter.RoleUser, Content: "q"},
	})
	require.NotNil(t, system)
	assert.Equal(t, "You are a helpful assistant. Context: x", system.Parts[0].Text)
	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].Role)
}

type slowBackend struct {
	active, peak atomic.Int32
}

func (s *slowBackend) StreamCompletion(ctx context.Context, model string, messages []adapter.Message, maxOut int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		n := s.active.Add(1)
		defer s.active.Add(-1)
		for {
			p := s.peak.Load()
			if n <= p || s.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		yield("x", nil)
	}
}

func TestLimitedAIBoundsConcurrentStreams(t *testing.T) {
	inner := &slowBackend{}
	limited := NewLimitedAI(inner, NewLimiter(2))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range limited.StreamCompletion(context.Background(), "m", nil, 1) {
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.peak.Load(), int32(2))
}

func TestLimitedAIRespectsContext(t *testing.T) {
	lim := NewLimiter(1)
	require.NoError(t, lim.acquire(context.Background()))
	defer lim.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var gotErr error
	for _, err := range NewLimitedAI(&slowBackend{}, lim).StreamCompletion(ctx, "m", nil, 1) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestNilLimiterPassThrough(t *testing.T) {
	inner := NewNoopAIAdapter()
	assert.Same(t, adapter.CompletionBackend(inner), NewLimitedAI(inner, NewLimiter(0)))
}

func TestTiktokenCounter(t *testing.T) {
	c := NewTiktokenCounter()
	msgs := []adapter.Message{{Role: "user", Content: "What is the capital of France?"}}
	n := c.CountTokens("gpt-4o-mini", msgs)
	assert.Greater(t, n, 5)
	// unknown model falls back to cl100k_base instead of failing
	assert.Greater(t, c.CountTokens("gemini-2.0-flash", msgs), 5)
	assert.Zero(t, c.CountTokens("gpt-4o-mini", nil))
}
