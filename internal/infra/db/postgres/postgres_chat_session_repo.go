// File: internal/infra/db/postgres/postgres_chat_session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"rag-chat/internal/domain"
	"rag-chat/internal/domain/model"
	"rag-chat/internal/domain/ports/repository"
)

var _ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)

type ChatSessionRepo struct {
	pool *pgxpool.Pool
}

func NewChatSessionRepo(pool *pgxpool.Pool) *ChatSessionRepo {
	return &ChatSessionRepo{pool: pool}
}

func (r *ChatSessionRepo) Create(ctx context.Context, s *model.ChatSession) error {
	const q = `
INSERT INTO chat_sessions (id, title, created_at, updated_at)
VALUES ($1, $2, $3, $4);`
	if _, err := r.pool.Exec(ctx, q, s.ID, s.Title, s.CreatedAt, s.UpdatedAt); err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *ChatSessionRepo) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	const q = `SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = $1;`
	var s model.ChatSession
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &s, nil
}

func (r *ChatSessionRepo) List(ctx context.Context, limit, offset int) ([]*model.ChatSession, error) {
	const q = `
SELECT id, title, created_at, updated_at
FROM chat_sessions
ORDER BY updated_at DESC, id DESC
LIMIT $1 OFFSET $2;`
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.ChatSession
	for rows.Next() {
		var s model.ChatSession
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *ChatSessionRepo) UpdateTitle(ctx context.Context, id, title string) error {
	const q = `UPDATE chat_sessions SET title = $2, updated_at = NOW() WHERE id = $1;`
	tag, err := r.pool.Exec(ctx, q, id, title)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the session; messages go with it through ON DELETE CASCADE.
func (r *ChatSessionRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM chat_sessions WHERE id = $1;`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ChatSessionRepo) AppendMessage(ctx context.Context, m *model.ChatMessage) error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: message role %q", domain.ErrInvalidArgument, m.Role)
	}
	const qInsert = `
INSERT INTO chat_messages (session_id, role, content, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id;`
	const qTouch = `UPDATE chat_sessions SET updated_at = $2 WHERE id = $1;`

	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, qInsert, m.SessionID, string(m.Role), m.Content, m.CreatedAt).Scan(&m.ID); err != nil {
			if isPgCode(err, pgForeignKeyViolation) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("insert message: %w", err)
		}
		if _, err := tx.Exec(ctx, qTouch, m.SessionID, m.CreatedAt); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	})
}

func (r *ChatSessionRepo) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	const q = `
SELECT id, session_id, role, content, created_at
FROM chat_messages
WHERE session_id = $1
ORDER BY created_at ASC, id ASC;`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = model.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}
