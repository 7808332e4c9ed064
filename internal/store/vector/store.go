// Package vector defines the Vector Store contract (spec.md §4.9) shared by
// the Qdrant and Pinecone adapters: upsert, similarity search with payload,
// delete, and collection info.
package vector

import "context"

// Vector is one dense-vector record to upsert, keyed by VectorID with a
// payload that must include a "database_id" back-reference to its Exercise.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Hit is one similarity-search result, payload intact for diverse-search
// categorization and post-join enrichment.
type Hit struct {
	VectorID string
	Score    float64
	Payload  map[string]any
}

// Info reports the backing collection's size and configured dimension.
type Info struct {
	Size      int
	Dimension int
}

type Store interface {
	Upsert(ctx context.Context, vectors []Vector) error
	Search(ctx context.Context, query []float32, k int, scoreThreshold float64, filter map[string]any) ([]Hit, error)
	Delete(ctx context.Context, vectorIDs []string) error
	Info(ctx context.Context) (Info, error)

	// Scroll pages through every entry in the collection without a query
	// vector, for the reconciliation sweep. cursor is "" on the first call;
	// a non-empty returned cursor means more pages remain.
	Scroll(ctx context.Context, cursor string, limit int) (hits []Hit, nextCursor string, err error)
}
