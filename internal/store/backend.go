// Package store implements the document retrieval index: chunked document
// text, per-chunk metadata, a pluggable similarity backend, and snapshot
// persistence.
package store

import "context"

// Metadata is the caller-supplied document metadata attached to each chunk.
type Metadata map[string]any

// Metadata keys managed by the index itself.
const (
	// MetaDocumentID identifies which document a chunk belongs to.
	MetaDocumentID = "document_id"
	// MetaChunkID is the 0-based position of a chunk within its document.
	MetaChunkID = "chunk_id"
	// MetaChunkText carries the chunk text inside the metadata record.
	MetaChunkText = "chunk_text"
)

// Scored pairs a chunk position with its similarity score for a query.
type Scored struct {
	Index int
	Score float64
}

// Backend turns chunk texts into comparable representations and scores a
// query against all of them. Implementations keep exactly one representation
// per stored chunk, in insertion order.
type Backend interface {
	// Add encodes and retains representations for texts, appending them after
	// the existing entries. Either all texts are added or none are.
	Add(ctx context.Context, texts []string) error

	// Score ranks every stored representation against query, descending by
	// score with ties in insertion order. Implementations may omit entries
	// they consider complete misses.
	Score(ctx context.Context, query string) ([]Scored, error)

	// Rebuild discards all representations and re-encodes texts from scratch.
	// On failure the previous representations are left in place.
	Rebuild(ctx context.Context, texts []string) error

	// Len reports the number of stored representations.
	Len() int

	// Name identifies the backend in snapshots and stats.
	Name() string
}
