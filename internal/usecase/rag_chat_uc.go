package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rag-chat/internal/domain"
	"rag-chat/internal/domain/model"
	"rag-chat/internal/domain/ports/adapter"
	"rag-chat/internal/domain/ports/repository"
	"rag-chat/internal/infra/logging"
	"rag-chat/internal/infra/metrics"
)

var _ RAGChatUseCase = (*ragChatUC)(nil)

// StatusRetrieving is the heartbeat message sent while context is fetched.
const StatusRetrieving = "Retrieving relevant context..."

const (
	outcomeCompleted    = "completed"
	outcomeStreamError  = "stream_error"
	outcomeTimeout      = "timeout"
	outcomeDisconnected = "disconnected"
)

type RAGOptions struct {
	TopK              int
	HeartbeatInterval time.Duration
	TokenPacing       time.Duration
	RetrievalTimeout  time.Duration // 0 waits for retrieval indefinitely
	StreamTimeout     time.Duration // 0 lets the completion run until it ends
	PersistTimeout    time.Duration
}

func (o *RAGOptions) normalize() {
	if o.TopK <= 0 {
		o.TopK = 3
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 500 * time.Millisecond
	}
	if o.TokenPacing < 0 {
		o.TokenPacing = 0
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
}

type AskRequest struct {
	Query     string
	SessionID string // empty starts a new session
	Transport string // sse|ws, metrics label only
}

// Exchange is an accepted query. Events yields status* token* done and is
// closed afterwards. When the caller's context is cancelled events stop,
// but the exchange is still persisted.
type Exchange struct {
	SessionID string
	Created   bool
	Events    <-chan model.StreamEvent
}

// RAGChatUseCase runs one retrieval-augmented exchange per Ask.
type RAGChatUseCase interface {
	Ask(ctx context.Context, req AskRequest) (*Exchange, error)
}

type ragChatUC struct {
	sessions  repository.ChatSessionRepository
	runner    adapter.TaskRunner
	retriever ContextRetriever
	streamer  CompletionStreamer
	opts      RAGOptions
	log       *zerolog.Logger
	devMode   bool
}

func NewRAGChatUseCase(
	sessions repository.ChatSessionRepository,
	runner adapter.TaskRunner,
	retriever ContextRetriever,
	streamer CompletionStreamer,
	opts RAGOptions,
	logger *zerolog.Logger,
	devMode bool,
) *ragChatUC {
	opts.normalize()
	l := logger.With().Str("component", "rag_chat").Logger()
	return &ragChatUC{
		sessions:  sessions,
		runner:    runner,
		retriever: retriever,
		streamer:  streamer,
		opts:      opts,
		log:       &l,
		devMode:   devMode,
	}
}

// exchange is the per-request state shared by the phases of run.
type exchange struct {
	session   *model.ChatSession
	query     string
	transport string
	handle    adapter.TaskHandle
	cancel    context.CancelFunc // stops an in-flight retrieval
	events    chan model.StreamEvent
}

// Ask validates the request, persists the user's turn and submits context
// retrieval before returning. Rejections (ErrInvalidArgument, ErrNotFound)
// happen before any write. Everything after acceptance is reported through
// the event channel and never as an error.
func (r *ragChatUC) Ask(ctx context.Context, req AskRequest) (*Exchange, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidArgument)
	}

	var (
		session *model.ChatSession
		created bool
		err     error
	)
	if req.SessionID != "" {
		session, err = r.sessions.FindByID(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
	} else {
		session = model.NewChatSession(NewSessionID(), "")
		if err := r.sessions.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		created = true
	}

	ctx = logging.WithSessID(ctx, session.ID)
	log := logging.With(ctx, r.log)

	// the user's turn is durable before any background work starts
	if err := r.sessions.AppendMessage(ctx, model.NewChatMessage(session.ID, model.RoleUser, req.Query)); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	var (
		rctx   context.Context
		cancel context.CancelFunc
	)
	if r.opts.RetrievalTimeout > 0 {
		rctx, cancel = context.WithTimeout(ctx, r.opts.RetrievalTimeout)
	} else {
		rctx, cancel = context.WithCancel(ctx)
	}
	query, topK := req.Query, r.opts.TopK
	handle, err := r.runner.Submit(func(context.Context) (string, error) {
		return r.retriever.Retrieve(rctx, query, topK)
	})
	if err != nil {
		log.Warn().Err(err).Msg("retrieval not submitted, answering without context")
		handle = nil
	}

	log.Info().
		Bool("new_session", created).
		Str("transport", req.Transport).
		Str("query", logging.Redact(req.Query, r.devMode)).
		Msg("exchange accepted")

	ex := &exchange{
		session:   session,
		query:     req.Query,
		transport: req.Transport,
		handle:    handle,
		cancel:    cancel,
		events:    make(chan model.StreamEvent, 8),
	}
	go r.run(ctx, ex)

	return &Exchange{SessionID: session.ID, Created: created, Events: ex.events}, nil
}

// run drives AwaitingRetrieval -> Streaming -> Finalizing -> Closed.
// Finalizing runs on every path.
func (r *ragChatUC) run(ctx context.Context, ex *exchange) {
	defer close(ex.events)
	defer ex.cancel()

	metrics.StreamStarted()
	defer metrics.StreamFinished()
	start := time.Now()
	log := logging.With(ctx, r.log)
	defer logging.TraceDuration(log, "RAGChatUseCase.run")()

	var answer strings.Builder
	outcome := outcomeDisconnected
	if retrieved, connected := r.awaitRetrieval(ctx, ex, log); connected {
		ex.cancel()
		outcome = r.streamAnswer(ctx, ex, retrieved, &answer, log)
	}

	r.finalize(ctx, ex, answer.String(), log)
	metrics.ObserveExchange(ex.transport, outcome, time.Since(start).Seconds())
	log.Info().
		Str("outcome", outcome).
		Int("answer_len", answer.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("exchange finished")
}

// awaitRetrieval emits heartbeats until the retrieval job finishes, the
// retrieval timeout fires or the client goes away. A failed, missing or
// timed-out retrieval yields empty context. connected is false only when
// the client disconnected.
func (r *ragChatUC) awaitRetrieval(ctx context.Context, ex *exchange, log *zerolog.Logger) (retrieved string, connected bool) {
	if ex.handle == nil {
		return "", ctx.Err() == nil
	}

	ticker := time.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()
	var timeout <-chan time.Time
	if r.opts.RetrievalTimeout > 0 {
		t := time.NewTimer(r.opts.RetrievalTimeout)
		defer t.Stop()
		timeout = t.C
	}

	for !ex.handle.Ready() {
		if !r.emit(ctx, ex.events, model.StatusEvent(StatusRetrieving)) {
			return "", false
		}
		metrics.IncHeartbeat()
		select {
		case <-ex.handle.Done():
		case <-ticker.C:
		case <-timeout:
			log.Warn().Dur("timeout", r.opts.RetrievalTimeout).Msg("retrieval timed out, answering without context")
			return "", true
		case <-ctx.Done():
			return "", false
		}
	}

	res, err := ex.handle.Result()
	if err != nil {
		log.Warn().Err(err).Msg("retrieval failed, answering without context")
		return "", true
	}
	return res, true
}

// streamAnswer forwards completion fragments as token events and collects
// them into answer. It returns the exchange outcome.
func (r *ragChatUC) streamAnswer(ctx context.Context, ex *exchange, retrieved string, answer *strings.Builder, log *zerolog.Logger) string {
	sctx := ctx
	if r.opts.StreamTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, r.opts.StreamTimeout)
		defer cancel()
	}

	tokens := 0
	defer func() { metrics.AddTokensStreamed(tokens) }()

	for frag, err := range r.streamer.Stream(sctx, retrieved, ex.query) {
		if err != nil {
			if o := interrupted(ctx, sctx); o != "" {
				return o
			}
			log.Warn().Err(err).Int("tokens", tokens).Msg("completion stream failed, keeping partial answer")
			return outcomeStreamError
		}
		answer.WriteString(frag)
		if !r.emit(ctx, ex.events, model.TokenEvent(frag)) {
			return outcomeDisconnected
		}
		tokens++
		if r.opts.TokenPacing > 0 && !pause(sctx, r.opts.TokenPacing) {
			return interrupted(ctx, sctx)
		}
	}
	if o := interrupted(ctx, sctx); o != "" {
		return o
	}
	return outcomeCompleted
}

// finalize stores the bot turn, derives a missing title and emits done.
// Writes use a context detached from the client so a disconnect cannot
// lose the exchange.
func (r *ragChatUC) finalize(ctx context.Context, ex *exchange, answer string, log *zerolog.Logger) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.PersistTimeout)
	defer cancel()

	if err := r.sessions.AppendMessage(pctx, model.NewChatMessage(ex.session.ID, model.RoleBot, answer)); err != nil {
		log.Error().Err(err).Msg("failed to store bot message")
	}
	if !ex.session.HasTitle() {
		if err := r.deriveTitle(pctx, ex.session.ID); err != nil {
			log.Error().Err(err).Msg("failed to derive session title")
		}
	}
	r.emit(ctx, ex.events, model.DoneEvent())
}

// deriveTitle sets the title from the first user message unless the
// session got one meanwhile.
func (r *ragChatUC) deriveTitle(ctx context.Context, sessionID string) error {
	s, err := r.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.HasTitle() {
		return nil
	}
	msgs, err := r.sessions.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	first, ok := model.FirstUserMessage(msgs)
	if !ok {
		return nil
	}
	title := model.DeriveTitle(first.Content)
	if title == "" {
		return nil
	}
	return r.sessions.UpdateTitle(ctx, sessionID, title)
}

// emit delivers ev unless the client is gone.
func (r *ragChatUC) emit(ctx context.Context, events chan<- model.StreamEvent, ev model.StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// interrupted names why a stream stopped early: client disconnect wins
// over the stream timeout. Empty means neither happened.
func interrupted(ctx, sctx context.Context) string {
	switch {
	case ctx.Err() != nil:
		return outcomeDisconnected
	case sctx.Err() != nil:
		return outcomeTimeout
	default:
		return ""
	}
}

func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
