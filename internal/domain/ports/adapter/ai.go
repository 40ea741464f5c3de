package adapter

import (
	"context"
	"iter"
)

// Message represents a chat message sent to a completion backend.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionBackend is the port for streamed LLM chat.
//
// StreamCompletion returns a lazy sequence of text fragments in backend
// order. A failure is reported as the final element with a non-nil error;
// fragments already yielded stay valid. Stopping the iteration early must
// release the underlying stream.
type CompletionBackend interface {
	StreamCompletion(ctx context.Context, model string, messages []Message, maxOutputTokens int) iter.Seq2[string, error]
}

// TokenCounter estimates prompt size for a model (best-effort).
type TokenCounter interface {
	CountTokens(model string, messages []Message) int
}
