package repository

import (
	"context"

	"rag-chat/internal/domain/model"
)

// -----------------------------
// Chat Sessions
// -----------------------------

// ChatSessionRepository persists sessions and their append-only messages.
// FindByID, UpdateTitle and Delete return domain.ErrNotFound for unknown ids;
// AppendMessage returns domain.ErrNotFound when the session does not exist.
type ChatSessionRepository interface {
	Create(ctx context.Context, session *model.ChatSession) error
	FindByID(ctx context.Context, id string) (*model.ChatSession, error)
	// List returns sessions ordered by updated_at, newest first.
	List(ctx context.Context, limit, offset int) ([]*model.ChatSession, error)
	UpdateTitle(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error

	// AppendMessage stores msg atomically, sets msg.ID and bumps the session's updated_at.
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
	// ListMessages returns the session's messages in creation order.
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}
