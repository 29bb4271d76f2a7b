// Package vectorstore defines the persistent chunk index shared by the
// ingestion pipeline and the answerer, and provides the in-process flat
// backend.
package vectorstore

import (
	"context"
	"fmt"
)

// ErrNoIndex is reported by Search when nothing has been stored.
const ErrNoIndex = "no index exists"

// Store keeps chunk vectors with their chunk text and source text. Store and
// Clear report failure through their flag instead of an error.
type Store interface {
	Store(ctx context.Context, vectors [][]float32, chunks, texts []string) bool
	Search(ctx context.Context, query []float32, k int) SearchResult
	Clear(ctx context.Context) bool
	Len() int
	FullText() string
	SetFullText(text string)
	Close() error
}

// Match is one ranked hit. Distance is smaller for closer vectors.
type Match struct {
	Chunk      string
	SourceText string
	Distance   float32
}

type SearchResult struct {
	Success bool
	Error   string
	Matches []Match
}

func Failed(format string, args ...any) SearchResult {
	return SearchResult{Error: fmt.Sprintf(format, args...)}
}

// Chunks returns the chunk texts of the matches in rank order.
func (r SearchResult) Chunks() []string {
	out := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		out = append(out, m.Chunk)
	}
	return out
}

// ValidateBatch checks that the parallel slices line up and that every vector
// has dimension dim. A dim of zero takes the dimension of the first vector.
// It returns the batch dimension.
func ValidateBatch(vectors [][]float32, chunks, texts []string, dim int) (int, error) {
	if len(vectors) != len(chunks) || len(vectors) != len(texts) {
		return 0, fmt.Errorf("length mismatch: %d vectors, %d chunks, %d texts", len(vectors), len(chunks), len(texts))
	}
	if len(vectors) == 0 {
		return 0, fmt.Errorf("no vectors to store")
	}
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return 0, fmt.Errorf("empty vector")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return dim, nil
}

// CapK bounds k to the number of stored items.
func CapK(k, n int) int {
	if k > n {
		return n
	}
	return k
}
