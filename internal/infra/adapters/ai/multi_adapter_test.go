//go:build !integration

package ai_test

import (
	"context"
	"iter"
	"testing"

	"rag-chat/internal/domain/ports/adapter"
	ai "rag-chat/internal/infra/adapters/ai"
)

type stubAI struct {
	name      string
	streamN   int
	embedN    int
	lastModel string
}

func (s *stubAI) Embed(ctx context.Context, text string) ([]float32, error) {
	s.embedN++
	return []float32{1}, nil
}

func (s *stubAI) StreamCompletion(ctx context.Context, model string, messages []adapter.Message, maxOut int) iter.Seq2[string, error] {
	s.streamN++
	s.lastModel = model
	return func(yield func(string, error) bool) { yield(s.name, nil) }
}

func drain(seq iter.Seq2[string, error]) (string, error) {
	var out string
	for frag, err := range seq {
		if err != nil {
			return out, err
		}
		out += frag
	}
	return out, nil
}

func TestRouting_ExplicitMap_Heuristics_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai"}
	gem := &stubAI{name: "gemini"}

	m := ai.NewMultiAIAdapter(
		"openai",
		map[string]ai.Provider{"openai": open, "gemini": gem},
		map[string]string{"custom-x": "gemini"},
	)

	// explicit map wins
	if got, _ := drain(m.StreamCompletion(ctx, "custom-x", nil, 10)); got != "gemini" {
		t.Fatalf("explicit map should route to gemini, got %q", got)
	}

	// gpt-* -> openai
	if got, _ := drain(m.StreamCompletion(ctx, "gpt-4o-mini", nil, 10)); got != "openai" {
		t.Fatalf("heuristic gpt-* should go openai, got %q", got)
	}

	// gemini-* -> gemini
	if got, _ := drain(m.StreamCompletion(ctx, "gemini-1.5-flash", nil, 10)); got != "gemini" {
		t.Fatalf("heuristic gemini-* should go gemini, got %q", got)
	}

	// unknown -> default provider (openai)
	if got, _ := drain(m.StreamCompletion(ctx, "unknown", nil, 10)); got != "openai" {
		t.Fatalf("unknown model should go to default provider (openai), got %q", got)
	}
	if gem.lastModel != "gemini-1.5-flash" {
		t.Errorf("model name must be passed through, got %q", gem.lastModel)
	}
}

func TestEmbedderFor(t *testing.T) {
	open := &stubAI{name: "openai"}
	gem := &stubAI{name: "gemini"}
	m := ai.NewMultiAIAdapter("gemini", map[string]ai.Provider{"openai": open, "gemini": gem}, nil)

	e, err := m.EmbedderFor("text-embedding-3-small")
	if err != nil {
		t.Fatalf("EmbedderFor: %v", err)
	}
	_, _ = e.Embed(context.Background(), "hello")
	if open.embedN != 1 || gem.embedN != 0 {
		t.Fatalf("text-embedding-3 should route to openai, got open:%d gem:%d", open.embedN, gem.embedN)
	}
}

func TestNoProviders(t *testing.T) {
	m := ai.NewMultiAIAdapter("openai", map[string]ai.Provider{}, nil)
	if _, err := drain(m.StreamCompletion(context.Background(), "gpt-4o", nil, 1)); err == nil {
		t.Fatal("expected error without providers")
	}
	if _, err := m.EmbedderFor("x"); err == nil {
		t.Fatal("expected error without providers")
	}
}
