// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"rag-chat/internal/domain"
	"rag-chat/internal/domain/model"
	"rag-chat/internal/domain/ports/repository"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ChatUseCase manages chat sessions and their history. Exchanges
// themselves go through RAGChatUseCase.
type ChatUseCase interface {
	CreateSession(ctx context.Context, title string) (*model.ChatSession, error)
	GetSession(ctx context.Context, id string) (*model.ChatSession, error)
	ListSessions(ctx context.Context, limit, offset int) ([]*model.ChatSession, error)
	RenameSession(ctx context.Context, id, title string) (*model.ChatSession, error)
	DeleteSession(ctx context.Context, id string) error
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

type chatUC struct {
	sessions repository.ChatSessionRepository
	log      *zerolog.Logger
}

func NewChatUseCase(sessions repository.ChatSessionRepository, logger *zerolog.Logger) *chatUC {
	return &chatUC{sessions: sessions, log: logger}
}

// NewSessionID returns a lexicographically sortable session id.
func NewSessionID() string {
	return ulid.Make().String()
}

func (c *chatUC) CreateSession(ctx context.Context, title string) (*model.ChatSession, error) {
	s := model.NewChatSession(NewSessionID(), title)
	if err := c.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	c.log.Info().Str("session_id", s.ID).Bool("titled", s.HasTitle()).Msg("chat session created")
	return s, nil
}

func (c *chatUC) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrInvalidArgument)
	}
	return c.sessions.FindByID(ctx, id)
}

func (c *chatUC) ListSessions(ctx context.Context, limit, offset int) ([]*model.ChatSession, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return c.sessions.List(ctx, limit, offset)
}

func (c *chatUC) RenameSession(ctx context.Context, id, title string) (*model.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidArgument)
	}
	if err := c.sessions.UpdateTitle(ctx, id, title); err != nil {
		return nil, err
	}
	return c.sessions.FindByID(ctx, id)
}

func (c *chatUC) DeleteSession(ctx context.Context, id string) error {
	if err := c.sessions.Delete(ctx, id); err != nil {
		return err
	}
	c.log.Info().Str("session_id", id).Msg("chat session deleted")
	return nil
}

func (c *chatUC) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if _, err := c.sessions.FindByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.sessions.ListMessages(ctx, sessionID)
}
