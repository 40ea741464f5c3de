package usecase

import (
	"context"
	"fmt"
	"iter"

	"rag-chat/internal/domain"
	"rag-chat/internal/domain/ports/adapter"
)

var _ CompletionStreamer = (*completionStreamer)(nil)

const systemPromptPrefix = "You are a helpful assistant. Context: "

// CompletionStreamer turns retrieved context plus the user's query into a
// lazy sequence of answer fragments.
type CompletionStreamer interface {
	Stream(ctx context.Context, retrievedContext, query string) iter.Seq2[string, error]
}

type completionStreamer struct {
	backend   adapter.CompletionBackend
	model     string
	maxTokens int
}

func NewCompletionStreamer(backend adapter.CompletionBackend, chatModel string, maxOutputTokens int) *completionStreamer {
	return &completionStreamer{backend: backend, model: chatModel, maxTokens: maxOutputTokens}
}

// SystemPrompt embeds retrieved context in the system instruction.
func SystemPrompt(retrievedContext string) string {
	return systemPromptPrefix + retrievedContext
}

// Stream yields non-empty fragments in backend order. A backend failure
// ends the sequence with one error wrapping domain.ErrStream; fragments
// already yielded stay valid.
func (s *completionStreamer) Stream(ctx context.Context, retrievedContext, query string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := []adapter.Message{
			{Role: adapter.RoleSystem, Content: SystemPrompt(retrievedContext)},
			{Role: adapter.RoleUser, Content: query},
		}
		for frag, err := range s.backend.StreamCompletion(ctx, s.model, msgs, s.maxTokens) {
			if err != nil {
				yield("", fmt.Errorf("%w: %w", domain.ErrStream, err))
				return
			}
			if frag == "" {
				continue
			}
			if !yield(frag, nil) {
				return
			}
		}
	}
}
