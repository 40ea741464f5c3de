package usecase_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rag-chat/internal/domain"
	"rag-chat/internal/domain/model"
	"rag-chat/internal/domain/ports/adapter"
	"rag-chat/internal/domain/ports/repository"
)

// --- Mock ChatSessionRepo

// MockChatSessionRepo is an in-memory store that also records the order of
// writes so tests can assert on it.
type MockChatSessionRepo struct {
	mu       sync.Mutex
	byID     map[string]*model.ChatSession
	msgByID  map[string][]model.ChatMessage
	nextID   int64
	calls    []string
	failBot  bool
	failUser bool
}

var _ repository.ChatSessionRepository = (*MockChatSessionRepo)(nil)

func NewMockChatSessionRepo() *MockChatSessionRepo {
	return &MockChatSessionRepo{
		byID:    map[string]*model.ChatSession{},
		msgByID: map[string][]model.ChatMessage{},
	}
}

func (r *MockChatSessionRepo) record(call string) { r.calls = append(r.calls, call) }

func (r *MockChatSessionRepo) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *MockChatSessionRepo) Create(ctx context.Context, s *model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.record("create")
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *MockChatSessionRepo) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockChatSessionRepo) List(ctx context.Context, limit, offset int) ([]*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.ChatSession, 0, len(r.byID))
	for _, s := range r.byID {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockChatSessionRepo) UpdateTitle(ctx context.Context, id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.record("title")
	s.Title = title
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MockChatSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.msgByID, id)
	return nil
}

func (r *MockChatSessionRepo) AppendMessage(ctx context.Context, m *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if (m.Role == model.RoleBot && r.failBot) || (m.Role == model.RoleUser && r.failUser) {
		return errors.New("db unavailable")
	}
	s, ok := r.byID[m.SessionID]
	if !ok {
		return domain.ErrNotFound
	}
	r.record("append:" + string(m.Role))
	r.nextID++
	m.ID = r.nextID
	r.msgByID[m.SessionID] = append(r.msgByID[m.SessionID], *m)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MockChatSessionRepo) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ChatMessage(nil), r.msgByID[sessionID]...), nil
}

func (r *MockChatSessionRepo) MessagesByRole(sessionID string, role model.Role) []model.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range r.msgByID[sessionID] {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

func (r *MockChatSessionRepo) MessageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ms := range r.msgByID {
		n += len(ms)
	}
	return n
}

// --- Task runner fakes

type fakeHandle struct {
	done   chan struct{}
	result string
	err    error
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Ready() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *fakeHandle) Result() (string, error) {
	if !h.Ready() {
		return "", domain.ErrTaskNotReady
	}
	return h.result, h.err
}

// goRunner runs each job on its own goroutine.
type goRunner struct{}

func (goRunner) Submit(job adapter.Job) (adapter.TaskHandle, error) {
	h := &fakeHandle{done: make(chan struct{})}
	go func() {
		h.result, h.err = job(context.Background())
		close(h.done)
	}()
	return h, nil
}

type fullRunner struct{}

func (fullRunner) Submit(adapter.Job) (adapter.TaskHandle, error) { return nil, domain.ErrQueueFull }

// --- Retriever / streamer fakes

type fakeRetriever struct {
	mu      sync.Mutex
	result  string
	err     error
	delay   time.Duration
	onCall  func()
	queries []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.result, f.err
}

type fakeStreamer struct {
	mu        sync.Mutex
	fragments []string
	err       error
	gap       time.Duration
	contexts  []string
}

func (f *fakeStreamer) Stream(ctx context.Context, retrievedContext, query string) iter.Seq2[string, error] {
	f.mu.Lock()
	f.contexts = append(f.contexts, retrievedContext)
	f.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, frag := range f.fragments {
			if f.gap > 0 {
				select {
				case <-time.After(f.gap):
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				}
			}
			if !yield(frag, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

func (f *fakeStreamer) Contexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contexts...)
}

// --- Embedder / vector / backend fakes

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSearcher struct {
	matches []adapter.VectorMatch
	err     error
	gotK    int
}

func (f *fakeSearcher) Query(ctx context.Context, vector []float32, topK int) ([]adapter.VectorMatch, error) {
	f.gotK = topK
	if f.err != nil {
		return nil, f.err
	}
	if len(f.matches) > topK {
		return f.matches[:topK], nil
	}
	return f.matches, nil
}

type fakeBackend struct {
	fragments []string
	err       error
	gotModel  string
	gotMax    int
	gotMsgs   []adapter.Message
}

func (f *fakeBackend) StreamCompletion(ctx context.Context, model string, messages []adapter.Message, maxOut int) iter.Seq2[string, error] {
	f.gotModel, f.gotMax, f.gotMsgs = model, maxOut, messages
	return func(yield func(string, error) bool) {
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
