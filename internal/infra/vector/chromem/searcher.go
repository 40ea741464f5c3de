// Package chromem implements the vector search port on an embedded
// chromem-go database, optionally persisted to disk.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"rag-chat/internal/domain/ports/adapter"
)

var _ adapter.VectorSearcher = (*Searcher)(nil)

// errTextEmbedding guards against chromem's default embedding function,
// which would call a remote API. Documents and queries always carry vectors.
var errTextEmbedding = errors.New("chromem: text embedding disabled, supply vectors")

func noEmbed(context.Context, string) ([]float32, error) { return nil, errTextEmbedding }

// Searcher serves queries from one collection. A document's content is
// exposed under textField when its metadata does not already carry it.
type Searcher struct {
	mu        sync.RWMutex
	col       *chromem.Collection
	textField string
}

// NewSearcher opens the collection; an empty path keeps everything in memory.
func NewSearcher(path, collection, textField string) (*Searcher, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	col, err := db.GetOrCreateCollection(collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open chromem collection: %w", err)
	}
	return &Searcher{col: col, textField: textField}, nil
}

// Upsert stores one passage with its precomputed vector.
func (s *Searcher) Upsert(ctx context.Context, id, text string, vector []float32, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: vector,
		Metadata:  metadata,
	})
}

func (s *Searcher) Count() int {
	return s.col.Count()
}

func (s *Searcher) Query(ctx context.Context, vector []float32, topK int) ([]adapter.VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := topK
	if c := s.col.Count(); n > c {
		n = c
	}
	if n <= 0 {
		return nil, nil
	}
	results, err := s.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query chromem: %w", err)
	}
	out := make([]adapter.VectorMatch, 0, len(results))
	for _, r := range results {
		md := make(map[string]string, len(r.Metadata)+1)
		maps.Copy(md, r.Metadata)
		if _, ok := md[s.textField]; !ok && r.Content != "" {
			md[s.textField] = r.Content
		}
		out = append(out, adapter.VectorMatch{ID: r.ID, Score: r.Similarity, Metadata: md})
	}
	return out, nil
}
