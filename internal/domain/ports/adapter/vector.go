package adapter

import "context"

// VectorMatch is one nearest-neighbour hit with its stored metadata.
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// VectorSearcher is the port for the vector index. Matches are returned in
// the backend's ranking order, at most topK of them.
type VectorSearcher interface {
	Query(ctx context.Context, vector []float32, topK int) ([]VectorMatch, error)
}
