// File: .\internal\infra\adapters\ai\gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"google.golang.org/genai"

	"rag-chat/internal/domain/ports/adapter"
	"rag-chat/internal/infra/metrics"
)

var (
	_ adapter.Embedder          = (*GeminiAdapter)(nil)
	_ adapter.CompletionBackend = (*GeminiAdapter)(nil)
)

const providerGemini = "gemini"

type GeminiAdapter struct {
	client     *genai.Client
	embedModel string
	counter    adapter.TokenCounter
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, embeddingModel string, counter adapter.TokenCounter) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, embedModel: embeddingModel, counter: counter}, nil
}

func (g *GeminiAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	metrics.ObserveEmbedding(providerGemini, g.embedModel, int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini embed: empty response")
	}
	return resp.Embeddings[0].Values, nil
}

func (g *GeminiAdapter) StreamCompletion(ctx context.Context, model string, messages []adapter.Message, maxOutputTokens int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		fragments, success := 0, true
		defer func() {
			promptTokens := 0
			if g.counter != nil {
				promptTokens = g.counter.CountTokens(model, messages)
			}
			metrics.ObserveCompletion(providerGemini, model, promptTokens, fragments, int(time.Since(start).Milliseconds()), success)
		}()

		system, contents := toGenAIContents(messages)
		if len(contents) == 0 {
			success = false
			yield("", errors.New("gemini: no user content"))
			return
		}
		cfg := &genai.GenerateContentConfig{SystemInstruction: system}
		if maxOutputTokens > 0 {
			cfg.MaxOutputTokens = int32(maxOutputTokens)
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				success = false
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			fragments++
			if !yield(text, nil) {
				return
			}
		}
	}
}

// toGenAIContents moves system messages into a single system instruction;
// the rest become conversation turns.
func toGenAIContents(msgs []adapter.Message) (*genai.Content, []*genai.Content) {
	var system []*genai.Part
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case adapter.RoleSystem:
			system = append(system, &genai.Part{Text: m.Content})
		case adapter.RoleAssistant, "model":
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) == 0 {
		return nil, out
	}
	return &genai.Content{Parts: system}, out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
