// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"

	"rag-chat/internal/domain/ports/adapter"
)

var _ adapter.CompletionBackend = (*MultiAIAdapter)(nil)

// Provider is one configured AI backend.
type Provider interface {
	adapter.Embedder
	adapter.CompletionBackend
}

var errNoProvider = errors.New("ai: no provider configured")

type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]Provider
	modelToProvider map[string]string // model -> provider ("openai" | "gemini")
}

// NewMultiAIAdapter routes by model name; it only knows a default provider.
func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]Provider,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

// ResolveProvider names the provider a model is routed to: explicit map
// first, then name prefix, then the default provider.
func (m *MultiAIAdapter) ResolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"), strings.HasPrefix(l, "text-embedding-004"), strings.HasPrefix(l, "embedding-"):
		return providerGemini
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"),
		strings.HasPrefix(l, "text-embedding-3"), strings.HasPrefix(l, "text-embedding-ada"):
		return providerOpenAI
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) Provider {
	prov := m.ResolveProvider(model)
	if a := m.byProvider[prov]; a != nil {
		return a
	}
	if a := m.byProvider[m.defaultProvider]; a != nil {
		return a
	}
	// last resort: first available, in name order so routing is stable
	names := make([]string, 0, len(m.byProvider))
	for name, a := range m.byProvider {
		if a != nil {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return m.byProvider[names[0]]
}

// EmbedderFor returns the provider serving the given embedding model.
func (m *MultiAIAdapter) EmbedderFor(model string) (adapter.Embedder, error) {
	p := m.pick(model)
	if p == nil {
		return nil, errNoProvider
	}
	return p, nil
}

func (m *MultiAIAdapter) StreamCompletion(ctx context.Context, model string, messages []adapter.Message, maxOutputTokens int) iter.Seq2[string, error] {
	p := m.pick(model)
	if p == nil {
		return func(yield func(string, error) bool) { yield("", errNoProvider) }
	}
	return p.StreamCompletion(ctx, model, messages, maxOutputTokens)
}
