package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"rag-chat/internal/domain/ports/adapter"
	"rag-chat/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the ports
var (
	_ adapter.Embedder          = (*OpenAIAdapter)(nil)
	_ adapter.CompletionBackend = (*OpenAIAdapter)(nil)
)

const providerOpenAI = "openai"

// OpenAIAdapter implements embeddings and streamed Chat Completions.
type OpenAIAdapter struct {
	client     openai.Client
	embedModel string
	counter    adapter.TokenCounter
}

// NewOpenAIAdapter builds the adapter; baseURL may be empty for the public
// API or point at any OpenAI-compatible endpoint.
func NewOpenAIAdapter(apiKey, baseURL, embeddingModel string, counter adapter.TokenCounter, opts ...option.RequestOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIAdapter{
		client:     openai.NewClient(reqOpts...),
		embedModel: embeddingModel,
		counter:    counter,
	}, nil
}

func (o *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	metrics.ObserveEmbedding(providerOpenAI, o.embedModel, int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: empty response")
	}
	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OpenAIAdapter) StreamCompletion(ctx context.Context, model string, messages []adapter.Message, maxOutputTokens int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		fragments, success := 0, true
		defer func() {
			promptTokens := 0
			if o.counter != nil {
				promptTokens = o.counter.CountTokens(model, messages)
			}
			metrics.ObserveCompletion(providerOpenAI, model, promptTokens, fragments, int(time.Since(start).Milliseconds()), success)
		}()

		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(model),
			Messages: toOpenAIMessages(messages),
		}
		if maxOutputTokens > 0 {
			params.MaxTokens = openai.Int(int64(maxOutputTokens))
		}

		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			for _, c := range chunk.Choices {
				if c.Delta.Content == "" {
					continue
				}
				fragments++
				if !yield(c.Delta.Content, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			success = false
			yield("", fmt.Errorf("openai stream: %w", err))
		}
	}
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case adapter.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case adapter.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
