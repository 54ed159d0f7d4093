package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/docdex/docdex/internal/chunker"
)

// Result is a single search hit: the stored metadata plus the chunk text and
// its similarity score.
type Result struct {
	Metadata Metadata `json:"metadata"`
	Text     string   `json:"text"`
	Score    float64  `json:"similarity_score"`
}

// Stats summarizes the index contents. IndexSize always equals TotalChunks;
// the pair exists so the invariant is observable.
type Stats struct {
	TotalChunks    int `json:"total_chunks"`
	TotalDocuments int `json:"total_documents"`
	IndexSize      int `json:"index_size"`
}

// Options configures an Index.
type Options struct {
	// Path is the snapshot file location. Empty disables persistence.
	Path string
	// Backend scores queries against chunk representations. Required.
	Backend Backend
	// Chunker splits document text. Defaults to chunker defaults (512/50).
	Chunker *chunker.Chunker
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Index is the retrieval store over a document corpus. It owns two parallel
// sequences, chunks and metadata, which are always the same length as the
// backend's representation count, and it persists a snapshot after every
// mutation. A single mutex serializes operations so one Index can sit behind
// a concurrent front end.
type Index struct {
	mu       sync.Mutex
	chunker  *chunker.Chunker
	backend  Backend
	path     string
	logger   *zap.Logger
	chunks   []string
	metadata []Metadata
}

// Open creates an Index and loads the snapshot at opts.Path if one exists.
// A missing snapshot starts the index empty; an unreadable or inconsistent
// one is logged and likewise discarded, never fatal.
func Open(opts Options) (*Index, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("store: backend is required")
	}
	if opts.Chunker == nil {
		c, err := chunker.New(chunker.DefaultConfig())
		if err != nil {
			return nil, err
		}
		opts.Chunker = c
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	idx := &Index{
		chunker: opts.Chunker,
		backend: opts.Backend,
		path:    opts.Path,
		logger:  opts.Logger,
	}
	idx.load()
	return idx, nil
}

// AddDocument chunks text, encodes every chunk, appends chunk+metadata pairs,
// and persists. The in-memory state is untouched when chunking or encoding
// fails; a persist failure leaves the new state in memory and is returned so
// the caller knows durability is at risk.
func (idx *Index) AddDocument(ctx context.Context, text string, meta Metadata) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	chunks, err := idx.chunker.Chunk(text)
	if err != nil {
		return fmt.Errorf("chunk document: %w", err)
	}

	if err := idx.backend.Add(ctx, chunks); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	for i, chunk := range chunks {
		chunkMeta := make(Metadata, len(meta)+2)
		for k, v := range meta {
			chunkMeta[k] = v
		}
		chunkMeta[MetaChunkID] = i
		chunkMeta[MetaChunkText] = chunk

		idx.chunks = append(idx.chunks, chunk)
		idx.metadata = append(idx.metadata, chunkMeta)
	}

	if err := idx.persist(); err != nil {
		idx.logger.Warn("snapshot write failed after add", zap.Error(err))
		return err
	}
	return nil
}

// Search ranks stored chunks against query and returns up to k results in
// descending score order. An empty index or non-positive k yields an empty
// result set; k larger than the chunk count is clamped.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if k <= 0 || len(idx.chunks) == 0 {
		return []Result{}, nil
	}
	if k > len(idx.chunks) {
		k = len(idx.chunks)
	}

	scored, err := idx.backend.Score(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("score query: %w", err)
	}

	results := make([]Result, 0, k)
	for _, s := range scored {
		if len(results) == k {
			break
		}
		if s.Index < 0 || s.Index >= len(idx.chunks) {
			continue
		}
		results = append(results, Result{
			Metadata: copyMetadata(idx.metadata[s.Index]),
			Text:     idx.chunks[s.Index],
			Score:    s.Score,
		})
	}
	return results, nil
}

// RemoveDocument deletes every chunk whose metadata document id equals id and
// returns how many were removed. The dense backend cannot delete points, so
// the surviving chunks are re-encoded first; only when that succeeds is the
// removal committed and persisted. Removing an unknown id is not an error.
func (idx *Index) RemoveDocument(ctx context.Context, id string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var positions []int
	for i, meta := range idx.metadata {
		if documentID(meta) == id {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return 0, nil
	}

	remove := make(map[int]bool, len(positions))
	for _, p := range positions {
		remove[p] = true
	}
	survivorChunks := make([]string, 0, len(idx.chunks)-len(positions))
	survivorMeta := make([]Metadata, 0, len(idx.metadata)-len(positions))
	for i := range idx.chunks {
		if remove[i] {
			continue
		}
		survivorChunks = append(survivorChunks, idx.chunks[i])
		survivorMeta = append(survivorMeta, idx.metadata[i])
	}

	if err := idx.backend.Rebuild(ctx, survivorChunks); err != nil {
		return 0, fmt.Errorf("rebuild after remove: %w", err)
	}

	idx.chunks = survivorChunks
	idx.metadata = survivorMeta

	if err := idx.persist(); err != nil {
		idx.logger.Warn("snapshot write failed after remove", zap.Error(err))
		return len(positions), err
	}
	return len(positions), nil
}

// SimilarChunks returns the first k chunks belonging to documentID in storage
// order. This is a positional lookup, not a similarity ranking.
func (idx *Index) SimilarChunks(docID string, k int) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var chunks []string
	for i, meta := range idx.metadata {
		if documentID(meta) != docID {
			continue
		}
		chunks = append(chunks, idx.chunks[i])
		if k > 0 && len(chunks) == k {
			break
		}
	}
	return chunks
}

// Stats reports chunk, document, and backend representation counts.
func (idx *Index) Stats() Stats {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	docs := make(map[string]struct{})
	for _, meta := range idx.metadata {
		docs[documentID(meta)] = struct{}{}
	}
	return Stats{
		TotalChunks:    len(idx.chunks),
		TotalDocuments: len(docs),
		IndexSize:      idx.backend.Len(),
	}
}

// Backend exposes the similarity backend, mainly for status reporting.
func (idx *Index) Backend() Backend {
	return idx.backend
}

func documentID(meta Metadata) string {
	if s, ok := meta[MetaDocumentID].(string); ok {
		return s
	}
	return ""
}

func copyMetadata(meta Metadata) Metadata {
	out := make(Metadata, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
