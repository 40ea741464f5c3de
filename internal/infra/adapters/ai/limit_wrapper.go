package ai

import (
	"context"
	"iter"
	"time"

	"rag-chat/internal/domain/ports/adapter"
	"rag-chat/internal/infra/metrics"
)

// Compile-time check
var (
	_ adapter.CompletionBackend = (*limitedAI)(nil)
	_ adapter.Embedder          = (*limitedEmbedder)(nil)
)

// Limiter bounds concurrent AI calls across embedders and completion streams.
type Limiter struct {
	sem chan struct{}
}

func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		return nil
	}
	return &Limiter{sem: make(chan struct{}, maxConcurrent)}
}

func (l *Limiter) acquire(ctx context.Context) error {
	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		metrics.ObserveLimiterWait(float64(time.Since(start).Milliseconds()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) release() { <-l.sem }

type limitedAI struct {
	inner adapter.CompletionBackend
	lim   *Limiter
}

// NewLimitedAI holds a slot for the whole life of each stream. A nil
// limiter returns inner unchanged.
func NewLimitedAI(inner adapter.CompletionBackend, lim *Limiter) adapter.CompletionBackend {
	if lim == nil {
		return inner
	}
	return &limitedAI{inner: inner, lim: lim}
}

func (l *limitedAI) StreamCompletion(ctx context.Context, model string, messages []adapter.Message, maxOutputTokens int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := l.lim.acquire(ctx); err != nil {
			yield("", err)
			return
		}
		defer l.lim.release()
		for frag, err := range l.inner.StreamCompletion(ctx, model, messages, maxOutputTokens) {
			if !yield(frag, err) {
				return
			}
		}
	}
}

type limitedEmbedder struct {
	inner adapter.Embedder
	lim   *Limiter
}

func NewLimitedEmbedder(inner adapter.Embedder, lim *Limiter) adapter.Embedder {
	if lim == nil {
		return inner
	}
	return &limitedEmbedder{inner: inner, lim: lim}
}

func (l *limitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.lim.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.lim.release()
	return l.inner.Embed(ctx, text)
}
