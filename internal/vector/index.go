// Package vector provides the in-memory vector index behind the local similarity index.
package vector

import "context"

// AllowFunc reports whether the vector with the given ID may be returned.
// A nil AllowFunc allows every ID.
type AllowFunc func(id string) bool

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	// Upsert adds vectors, replacing any existing vector with the same ID.
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int, allow AllowFunc) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single vector search hit keyed by passage ID.
type VectorResult struct {
	ID string
	// Score is the inner product, equal to cosine similarity for normalized vectors.
	Score float64
}

// Distance is the cosine distance of the hit, 1 - Score.
func (r *VectorResult) Distance() float64 {
	return 1 - r.Score
}
