// Package qdrant implements the vector search port on a Qdrant collection
// over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"rag-chat/internal/domain/ports/adapter"
)

var _ adapter.VectorSearcher = (*Searcher)(nil)

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// Searcher queries one collection. Only string, integer, double and bool
// payload values are carried into match metadata.
type Searcher struct {
	client     *qdrant.Client
	collection string
}

func NewSearcher(cfg Config) (*Searcher, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &Searcher{client: client, collection: cfg.Collection}, nil
}

// Ping checks the collection exists. cmd/app calls it once at startup.
func (s *Searcher) Ping(ctx context.Context) error {
	ok, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if !ok {
		return fmt.Errorf("qdrant collection %q does not exist", s.collection)
	}
	return nil
}

func (s *Searcher) Query(ctx context.Context, vector []float32, topK int) ([]adapter.VectorMatch, error) {
	limit := uint64(topK)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query qdrant: %w", err)
	}
	out := make([]adapter.VectorMatch, 0, len(hits))
	for _, hit := range hits {
		out = append(out, toMatch(hit))
	}
	return out, nil
}

func (s *Searcher) Close() error {
	return s.client.Close()
}

func toMatch(hit *qdrant.ScoredPoint) adapter.VectorMatch {
	m := adapter.VectorMatch{
		ID:       pointID(hit.GetId()),
		Score:    hit.GetScore(),
		Metadata: make(map[string]string, len(hit.GetPayload())),
	}
	for k, v := range hit.GetPayload() {
		if s, ok := valueString(v); ok {
			m.Metadata[k] = s
		}
	}
	return m
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func valueString(v *qdrant.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue, true
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(k.IntegerValue, 10), true
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(k.DoubleValue, 'g', -1, 64), true
	case *qdrant.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue), true
	default:
		return "", false
	}
}
