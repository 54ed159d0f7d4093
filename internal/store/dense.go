package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/docdex/docdex/internal/embed"
)

// DenseBackend scores queries by inner product over L2-normalized embedding
// vectors, which equals cosine similarity. The index is exact: every stored
// vector is compared against the query.
type DenseBackend struct {
	provider embed.Provider
	dims     int
	vectors  [][]float32
}

// NewDenseBackend creates a dense backend around an embedding provider. The
// vector dimension is fixed at the provider's for the lifetime of the backend.
func NewDenseBackend(provider embed.Provider) *DenseBackend {
	return &DenseBackend{
		provider: provider,
		dims:     provider.Dimensions(),
	}
}

// Add embeds all texts, normalizes them, and appends the vectors. Nothing is
// appended unless every text embeds successfully.
func (b *DenseBackend) Add(ctx context.Context, texts []string) error {
	vectors, err := b.encode(ctx, texts)
	if err != nil {
		return err
	}
	b.vectors = append(b.vectors, vectors...)
	return nil
}

// Score embeds the query and ranks every stored vector by inner product,
// descending, ties in insertion order.
func (b *DenseBackend) Score(ctx context.Context, query string) ([]Scored, error) {
	vec, err := b.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != b.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d: %w",
			len(vec), b.dims, embed.ErrDimensionMismatch)
	}
	vec = normalized(vec)

	scored := make([]Scored, len(b.vectors))
	for i, stored := range b.vectors {
		scored[i] = Scored{Index: i, Score: dot(vec, stored)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

// Rebuild re-embeds texts from scratch. The exact index has no point
// deletion, so removal works by re-encoding the survivors; the previous
// vectors stay in place if any embedding fails.
func (b *DenseBackend) Rebuild(ctx context.Context, texts []string) error {
	vectors, err := b.encode(ctx, texts)
	if err != nil {
		return err
	}
	b.vectors = vectors
	return nil
}

// Len reports the number of stored vectors.
func (b *DenseBackend) Len() int {
	return len(b.vectors)
}

// Name identifies this backend in snapshots and stats.
func (b *DenseBackend) Name() string {
	return "dense"
}

// Dimensions returns the fixed vector dimension.
func (b *DenseBackend) Dimensions() int {
	return b.dims
}

// Vectors returns the stored vectors for snapshotting. The slice is shared;
// callers must not mutate it.
func (b *DenseBackend) Vectors() [][]float32 {
	return b.vectors
}

// SetVectors restores vectors from a snapshot, replacing any current state.
func (b *DenseBackend) SetVectors(vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != b.dims {
			return fmt.Errorf("vector %d has %d dimensions, want %d: %w",
				i, len(vec), b.dims, embed.ErrDimensionMismatch)
		}
	}
	b.vectors = vectors
	return nil
}

func (b *DenseBackend) encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := b.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	for i, vec := range vectors {
		if len(vec) != b.dims {
			return nil, fmt.Errorf("chunk %d embedded to %d dimensions, want %d: %w",
				i, len(vec), b.dims, embed.ErrDimensionMismatch)
		}
		vectors[i] = normalized(vec)
	}
	return vectors, nil
}

// normalized returns a unit-length copy of vec; a zero vector copies as-is.
// The input is never written to: the embedding cache hands out slices it
// retains, and those must stay raw provider output.
func normalized(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)

	var sum float64
	for _, v := range out {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
