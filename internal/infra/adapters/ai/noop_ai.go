package ai

import (
	"context"
	"hash/fnv"
	"iter"
	"math"
	"strings"

	"rag-chat/internal/domain/ports/adapter"
)

var (
	_ adapter.Embedder          = (*NoopAIAdapter)(nil)
	_ adapter.CompletionBackend = (*NoopAIAdapter)(nil)
)

// NoopDimensions is the vector size produced by NoopAIAdapter.Embed.
const NoopDimensions = 64

// NoopAIAdapter is a local/dev backend: embeddings are deterministic
// hashed bag-of-words vectors and completions echo the query word by word.
// No network access.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{}
}

func (a *NoopAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, NoopDimensions)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%NoopDimensions]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func (a *NoopAIAdapter) StreamCompletion(ctx context.Context, model string, messages []adapter.Message, maxOutputTokens int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var query string
		for _, m := range messages {
			if m.Role == adapter.RoleUser {
				query = m.Content
			}
		}
		words := strings.Fields("You asked: " + query)
		if maxOutputTokens > 0 && len(words) > maxOutputTokens {
			words = words[:maxOutputTokens]
		}
		for i, w := range words {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if i > 0 {
				w = " " + w
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}
