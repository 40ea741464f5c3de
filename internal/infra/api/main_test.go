//go:build !integration

package api

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rag-chat/internal/domain/model"
	"rag-chat/internal/domain/ports/repository"
	"rag-chat/internal/infra/adapters/ai"
	"rag-chat/internal/infra/db/sqlite"
	"rag-chat/internal/infra/worker"
	"rag-chat/internal/usecase"
)

type stubRetriever struct{ text string }

func (s stubRetriever) Retrieve(context.Context, string, int) (string, error) { return s.text, nil }

// countingLimiter allows the first n calls and records the routes asked for.
type countingLimiter struct {
	mu     sync.Mutex
	n      int
	calls  int
	routes []string
}

func (l *countingLimiter) Allow(_ context.Context, route, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.routes = append(l.routes, route)
	return l.calls <= l.n, nil
}

func (l *countingLimiter) Routes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.routes...)
}

type testEnv struct {
	srv  *httptest.Server
	repo repository.ChatSessionRepository
	auth *AuthManager
}

// newTestEnv serves the real use cases over SQLite with the noop model.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	return newTestEnvWithOptions(t, usecase.RAGOptions{TopK: 3, HeartbeatInterval: 10 * time.Millisecond}, mutate)
}

func newTestEnvWithOptions(t *testing.T, opts usecase.RAGOptions, mutate func(*Deps)) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := sqlite.NewChatSessionRepo(db)

	pool := worker.NewPool(2, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})

	rag := usecase.NewRAGChatUseCase(
		repo,
		pool,
		stubRetriever{text: "Paris is the capital of France."},
		usecase.NewCompletionStreamer(ai.NewNoopAIAdapter(), "noop", 100),
		opts,
		&logger,
		true,
	)

	deps := Deps{
		Chat:   usecase.NewChatUseCase(repo, &logger),
		RAG:    rag,
		Logger: &logger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := httptest.NewServer(NewServer(deps).Routes())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, repo: repo, auth: deps.Auth}
}

// waitForMessages polls until the session holds n messages; the bot turn is
// written after the stream closes.
func waitForMessages(t *testing.T, repo repository.ChatSessionRepository, sessionID string, n int) []model.ChatMessage {
	t.Helper()
	var msgs []model.ChatMessage
	require.Eventually(t, func() bool {
		var err error
		msgs, err = repo.ListMessages(context.Background(), sessionID)
		return err == nil && len(msgs) == n
	}, 2*time.Second, 10*time.Millisecond)
	return msgs
}
