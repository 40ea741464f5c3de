//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"rag-chat/internal/domain"
	"rag-chat/internal/domain/model"
)

func TestChatSessionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewChatSessionRepo(testPool)

	t.Run("should create, append and list messages in order", func(t *testing.T) {
		cleanup(t)
		session := model.NewChatSession(ulid.Make().String(), "")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := repo.Create(ctx, session); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists on duplicate, got %v", err)
		}

		before := session.UpdatedAt
		user := model.NewChatMessage(session.ID, model.RoleUser, "What is the capital of France?")
		bot := model.NewChatMessage(session.ID, model.RoleBot, "Paris.")
		bot.CreatedAt = user.CreatedAt.Add(time.Millisecond)
		if err := repo.AppendMessage(ctx, user); err != nil {
			t.Fatalf("append user: %v", err)
		}
		if err := repo.AppendMessage(ctx, bot); err != nil {
			t.Fatalf("append bot: %v", err)
		}
		if user.ID == 0 || bot.ID <= user.ID {
			t.Fatalf("ids not assigned in order: %d %d", user.ID, bot.ID)
		}

		msgs, err := repo.ListMessages(ctx, session.ID)
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		if len(msgs) != 2 || msgs[0].Role != model.RoleUser || msgs[1].Content != "Paris." {
			t.Fatalf("unexpected messages: %+v", msgs)
		}

		found, err := repo.FindByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if !found.UpdatedAt.After(before) {
			t.Errorf("updated_at not bumped by append")
		}
	})

	t.Run("should reject messages for unknown sessions", func(t *testing.T) {
		cleanup(t)
		err := repo.AppendMessage(ctx, model.NewChatMessage("missing", model.RoleUser, "hi"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := repo.UpdateTitle(ctx, "missing", "x"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should list newest first and update titles", func(t *testing.T) {
		cleanup(t)
		older := model.NewChatSession(ulid.Make().String(), "older")
		older.UpdatedAt = older.UpdatedAt.Add(-time.Hour)
		newer := model.NewChatSession(ulid.Make().String(), "")
		_ = repo.Create(ctx, older)
		_ = repo.Create(ctx, newer)

		list, err := repo.List(ctx, 10, 0)
		if err != nil || len(list) != 2 || list[0].ID != newer.ID {
			t.Fatalf("unexpected list: %+v %v", list, err)
		}

		if err := repo.UpdateTitle(ctx, newer.ID, "Capital of France"); err != nil {
			t.Fatalf("UpdateTitle failed: %v", err)
		}
		got, _ := repo.FindByID(ctx, newer.ID)
		if got.Title != "Capital of France" {
			t.Errorf("title = %q", got.Title)
		}
	})

	t.Run("should delete a session and its messages via cascade", func(t *testing.T) {
		cleanup(t)
		session := model.NewChatSession(ulid.Make().String(), "")
		_ = repo.Create(ctx, session)
		_ = repo.AppendMessage(ctx, model.NewChatMessage(session.ID, model.RoleUser, "to be deleted"))

		if err := repo.Delete(ctx, session.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(ctx, session.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("second delete: expected ErrNotFound, got %v", err)
		}

		var messageCount int
		err := testPool.QueryRow(ctx, "SELECT COUNT(*) FROM chat_messages WHERE session_id = $1", session.ID).Scan(&messageCount)
		if err != nil {
			t.Fatalf("failed to count messages: %v", err)
		}
		if messageCount != 0 {
			t.Errorf("expected messages to be cascade deleted, but %d were found", messageCount)
		}
	})
}
