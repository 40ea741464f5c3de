package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rag-chat/internal/domain"
	"rag-chat/internal/domain/ports/adapter"
	"rag-chat/internal/infra/logging"
	"rag-chat/internal/infra/metrics"
)

var _ ContextRetriever = (*contextRetriever)(nil)

// ContextRetriever fetches passages relevant to a query and joins them
// into a single context string.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) (string, error)
}

type contextRetriever struct {
	embedder  adapter.Embedder
	searcher  adapter.VectorSearcher
	textField string
	log       *zerolog.Logger
}

// NewContextRetriever reads passage text from textField in each match's
// metadata.
func NewContextRetriever(embedder adapter.Embedder, searcher adapter.VectorSearcher, textField string, logger *zerolog.Logger) *contextRetriever {
	if textField == "" {
		textField = "original_text"
	}
	l := logger.With().Str("component", "retriever").Logger()
	return &contextRetriever{embedder: embedder, searcher: searcher, textField: textField, log: &l}
}

// Retrieve embeds query, asks the vector index for topK matches and joins
// their text with single spaces in ranking order. Matches without text are
// skipped. Failures wrap domain.ErrRetrieval.
func (r *contextRetriever) Retrieve(ctx context.Context, query string, topK int) (string, error) {
	if topK < 1 {
		return "", fmt.Errorf("%w: top_k must be >= 1, got %d", domain.ErrInvalidArgument, topK)
	}
	log := logging.With(ctx, r.log)
	defer logging.TraceDuration(log, "ContextRetriever.Retrieve")()
	start := time.Now()

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		metrics.ObserveRetrieval("error", time.Since(start).Seconds())
		return "", fmt.Errorf("%w: embed query: %w", domain.ErrRetrieval, err)
	}
	matches, err := r.searcher.Query(ctx, vec, topK)
	if err != nil {
		metrics.ObserveRetrieval("error", time.Since(start).Seconds())
		return "", fmt.Errorf("%w: vector search: %w", domain.ErrRetrieval, err)
	}

	passages := make([]string, 0, len(matches))
	for _, m := range matches {
		text, ok := m.Metadata[r.textField]
		if !ok {
			log.Debug().Str("match_id", m.ID).Msg("match has no text field, skipped")
			continue
		}
		passages = append(passages, text)
	}

	outcome := "ok"
	if len(passages) == 0 {
		outcome = "empty"
	}
	metrics.ObserveRetrieval(outcome, time.Since(start).Seconds())
	log.Debug().Int("matches", len(matches)).Int("passages", len(passages)).Msg("context retrieved")
	return strings.Join(passages, " "), nil
}
