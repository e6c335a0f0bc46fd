// Package store provides the shared persistent vector store: an exact
// cosine-similarity index plus a BM25 keyword index over the same corpus,
// backed by a gob blob and a JSON metadata sidecar on disk. Concurrent
// processes sharing one storage directory serialize load/save through an
// advisory lock file.
package store

import (
	"context"
	"fmt"
)

// MetadataKeyDocumentID is the metadata key carrying the parent document id.
const MetadataKeyDocumentID = "document_id"

// Chunk is the unit of ingestion and retrieval: a piece of text with its
// id, parent document, metadata, and (optionally precomputed) embedding.
type Chunk struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	DocumentID string         `json:"document_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Score      float64        `json:"score,omitempty"`
}

// SearchResult pairs a reconstructed chunk with its relevance score.
type SearchResult struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}

// VectorStore is the capability surface of the persistent store.
// Implementations provide every method; callers never probe for support.
type VectorStore interface {
	// AddChunks ingests chunks, batch-embedding the ones without a
	// precomputed embedding, and persists the result.
	AddChunks(ctx context.Context, chunks []*Chunk) error

	// SearchSimilarChunks returns the top limit chunks by cosine
	// similarity to query, in descending score order.
	SearchSimilarChunks(ctx context.Context, query []float32, limit int) ([]*SearchResult, error)

	// SearchSimilarChunksWithThreshold is SearchSimilarChunks restricted
	// to results scoring at least threshold.
	SearchSimilarChunksWithThreshold(ctx context.Context, query []float32, limit int, threshold float64) ([]*SearchResult, error)

	// KeywordSearch returns the top k chunks by BM25 score. Documents
	// scoring zero are excluded.
	KeywordSearch(ctx context.Context, query string, k int) ([]*SearchResult, error)

	// DeleteChunks removes chunks by id and persists. Unknown ids are
	// skipped silently.
	DeleteChunks(ctx context.Context, ids []string) error

	// GetChunkByID returns the chunk with the given id, or (nil, nil)
	// when it does not exist.
	GetChunkByID(ctx context.Context, id string) (*Chunk, error)

	// Size returns the number of stored chunks, loading persisted state
	// first so a fresh process reports the true count.
	Size(ctx context.Context) (int, error)

	// Clear empties the store and persists the empty state.
	Clear(ctx context.Context) error

	// DeleteStore empties the store and removes the on-disk files.
	DeleteStore(ctx context.Context) error
}

// ErrDimensionMismatch indicates an embedding whose dimension does not
// match the store's.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
