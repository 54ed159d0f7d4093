package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/docdex/docdex/internal/chunker"
)

func testChunker(t *testing.T, size, overlap int) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.Config{ChunkSize: size, ChunkOverlap: overlap})
	if err != nil {
		t.Fatalf("chunker.New() error: %v", err)
	}
	return c
}

func lexicalIndex(t *testing.T, path string) *Index {
	t.Helper()
	idx, err := Open(Options{
		Path:    path,
		Backend: NewLexicalBackend(),
		Chunker: testChunker(t, 4, 1),
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return idx
}

func checkParity(t *testing.T, idx *Index) {
	t.Helper()
	stats := idx.Stats()
	if stats.IndexSize != stats.TotalChunks {
		t.Fatalf("index/store parity broken: IndexSize=%d TotalChunks=%d",
			stats.IndexSize, stats.TotalChunks)
	}
	if len(idx.chunks) != len(idx.metadata) {
		t.Fatalf("chunk/metadata parity broken: %d vs %d", len(idx.chunks), len(idx.metadata))
	}
}

func TestIndex_AddDocumentChunksAndMetadata(t *testing.T) {
	idx := lexicalIndex(t, "")
	ctx := context.Background()

	err := idx.AddDocument(ctx, "the quick brown fox jumps over the lazy dog",
		Metadata{MetaDocumentID: "d1", "title": "foxes"})
	if err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	checkParity(t, idx)

	stats := idx.Stats()
	if stats.TotalChunks != 3 {
		t.Errorf("TotalChunks = %d, want 3", stats.TotalChunks)
	}
	if stats.TotalDocuments != 1 {
		t.Errorf("TotalDocuments = %d, want 1", stats.TotalDocuments)
	}

	chunks := idx.SimilarChunks("d1", 10)
	want := []string{"the quick brown fox", "fox jumps over the", "the lazy dog"}
	if len(chunks) != len(want) {
		t.Fatalf("SimilarChunks() returned %d chunks, want %d", len(chunks), len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}

	// Chunk metadata carries the caller metadata plus position and text.
	if idx.metadata[1][MetaChunkID] != 1 {
		t.Errorf("chunk_id = %v, want 1", idx.metadata[1][MetaChunkID])
	}
	if idx.metadata[1][MetaChunkText] != "fox jumps over the" {
		t.Errorf("chunk_text = %v, want %q", idx.metadata[1][MetaChunkText], "fox jumps over the")
	}
	if idx.metadata[1]["title"] != "foxes" {
		t.Errorf("title = %v, want foxes", idx.metadata[1]["title"])
	}
}

func TestIndex_SearchBoundsAndOrdering(t *testing.T) {
	idx := lexicalIndex(t, "")
	ctx := context.Background()

	if err := idx.AddDocument(ctx, "machine learning models", Metadata{MetaDocumentID: "d1"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	if err := idx.AddDocument(ctx, "deep learning systems", Metadata{MetaDocumentID: "d2"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	if err := idx.AddDocument(ctx, "completely unrelated", Metadata{MetaDocumentID: "d3"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}

	results, err := idx.Search(ctx, "deep learning", 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	// k is clamped to chunk count and zero-overlap chunks are excluded.
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted: %v before %v", results[i-1].Score, results[i].Score)
		}
	}
	if results[0].Metadata[MetaDocumentID] != "d2" {
		t.Errorf("top result document = %v, want d2", results[0].Metadata[MetaDocumentID])
	}
	if results[0].Text != "deep learning systems" {
		t.Errorf("top result text = %q", results[0].Text)
	}

	// k <= 0 returns an empty slice, not an error.
	results, err = idx.Search(ctx, "learning", 0)
	if err != nil {
		t.Fatalf("Search(k=0) error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search(k=0) returned %d results, want 0", len(results))
	}
}

func TestIndex_SearchEmptyStore(t *testing.T) {
	idx := lexicalIndex(t, "")
	results, err := idx.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() on empty store returned %d results", len(results))
	}
}

func TestIndex_RemoveDocument(t *testing.T) {
	idx := lexicalIndex(t, "")
	ctx := context.Background()

	if err := idx.AddDocument(ctx, "alpha beta gamma delta epsilon zeta eta", Metadata{MetaDocumentID: "d1"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	if err := idx.AddDocument(ctx, "one two three", Metadata{MetaDocumentID: "d2"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}

	removed, err := idx.RemoveDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("RemoveDocument() error: %v", err)
	}
	if removed == 0 {
		t.Fatal("RemoveDocument() removed nothing")
	}
	checkParity(t, idx)

	stats := idx.Stats()
	if stats.TotalDocuments != 1 {
		t.Errorf("TotalDocuments = %d, want 1", stats.TotalDocuments)
	}
	if got := idx.SimilarChunks("d1", 10); len(got) != 0 {
		t.Errorf("SimilarChunks(d1) after removal returned %d chunks", len(got))
	}

	// Search must no longer surface d1.
	results, err := idx.Search(ctx, "alpha beta gamma one", 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	for _, r := range results {
		if r.Metadata[MetaDocumentID] == "d1" {
			t.Errorf("removed document surfaced in search: %+v", r)
		}
	}

	// Unknown id is not an error.
	removed, err = idx.RemoveDocument(ctx, "nope")
	if err != nil {
		t.Fatalf("RemoveDocument(unknown) error: %v", err)
	}
	if removed != 0 {
		t.Errorf("RemoveDocument(unknown) = %d, want 0", removed)
	}
}

func TestIndex_DenseParityAfterMutations(t *testing.T) {
	p := newFakeProvider(4)
	idx, err := Open(Options{
		Backend: NewDenseBackend(p),
		Chunker: testChunker(t, 4, 1),
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	ctx := context.Background()

	if err := idx.AddDocument(ctx, "aa bb cc dd ee ff gg", Metadata{MetaDocumentID: "d1"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	checkParity(t, idx)
	if err := idx.AddDocument(ctx, "hh ii jj", Metadata{MetaDocumentID: "d2"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	checkParity(t, idx)

	if _, err := idx.RemoveDocument(ctx, "d1"); err != nil {
		t.Fatalf("RemoveDocument() error: %v", err)
	}
	checkParity(t, idx)
}

func TestIndex_DenseAddFailsWithoutProvider(t *testing.T) {
	p := newFakeProvider(4)
	p.fail = errors.New("no provider")
	idx, err := Open(Options{
		Backend: NewDenseBackend(p),
		Chunker: testChunker(t, 4, 1),
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	err = idx.AddDocument(context.Background(), "some words here", Metadata{MetaDocumentID: "d1"})
	if err == nil {
		t.Fatal("AddDocument() succeeded without a provider")
	}
	checkParity(t, idx)
	if idx.Stats().TotalChunks != 0 {
		t.Errorf("failed add mutated the store: %+v", idx.Stats())
	}
}

func TestIndex_DenseRemoveRebuildFailureRollsBack(t *testing.T) {
	p := newFakeProvider(4)
	idx, err := Open(Options{
		Backend: NewDenseBackend(p),
		Chunker: testChunker(t, 4, 1),
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	ctx := context.Background()

	if err := idx.AddDocument(ctx, "aa bb cc dd ee", Metadata{MetaDocumentID: "d1"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	if err := idx.AddDocument(ctx, "ff gg hh", Metadata{MetaDocumentID: "d2"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	before := idx.Stats()

	p.fail = errors.New("provider down")
	if _, err := idx.RemoveDocument(ctx, "d1"); err == nil {
		t.Fatal("RemoveDocument() succeeded with failing rebuild")
	}
	checkParity(t, idx)
	if idx.Stats() != before {
		t.Errorf("failed remove mutated the store: %+v -> %+v", before, idx.Stats())
	}
}

func TestIndex_PersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	first := lexicalIndex(t, path)
	if err := first.AddDocument(ctx, "machine learning models and data", Metadata{MetaDocumentID: "d1"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	if err := first.AddDocument(ctx, "cooking recipes with garlic", Metadata{MetaDocumentID: "d2"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
	wantStats := first.Stats()
	wantResults, err := first.Search(ctx, "learning models", 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	second := lexicalIndex(t, path)
	if second.Stats() != wantStats {
		t.Errorf("reloaded stats = %+v, want %+v", second.Stats(), wantStats)
	}
	gotResults, err := second.Search(ctx, "learning models", 5)
	if err != nil {
		t.Fatalf("Search() after reload error: %v", err)
	}
	if len(gotResults) != len(wantResults) {
		t.Fatalf("reloaded search returned %d results, want %d", len(gotResults), len(wantResults))
	}
	for i := range wantResults {
		if gotResults[i].Text != wantResults[i].Text || gotResults[i].Score != wantResults[i].Score {
			t.Errorf("result[%d] = {%q %v}, want {%q %v}", i,
				gotResults[i].Text, gotResults[i].Score, wantResults[i].Text, wantResults[i].Score)
		}
	}
}

func TestIndex_DensePersistenceRestoresVectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	p := newFakeProvider(4)
	first, err := Open(Options{
		Path:    path,
		Backend: NewDenseBackend(p),
		Chunker: testChunker(t, 4, 1),
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := first.AddDocument(ctx, "aa bb cc dd ee ff", Metadata{MetaDocumentID: "d1"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}

	// Reload with a provider that would fail if asked to re-encode chunks;
	// restoring from the snapshot must not need it.
	reloadProvider := newFakeProvider(4)
	second, err := Open(Options{
		Path:    path,
		Backend: NewDenseBackend(reloadProvider),
		Chunker: testChunker(t, 4, 1),
	})
	if err != nil {
		t.Fatalf("Open() reload error: %v", err)
	}
	if second.Stats() != first.Stats() {
		t.Errorf("reloaded stats = %+v, want %+v", second.Stats(), first.Stats())
	}
	if reloadProvider.calls != 0 {
		t.Errorf("reload embedded %d chunks, want 0 (vectors come from the snapshot)", reloadProvider.calls)
	}
	checkParity(t, second)
}

func TestIndex_PersistFailureKeepsState(t *testing.T) {
	// A regular file where the snapshot's parent directory should be makes
	// every snapshot write fail.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	path := filepath.Join(blocker, "index.json")

	idx := lexicalIndex(t, path)
	ctx := context.Background()

	// The write failure is reported, but the appended chunks stay in memory.
	err := idx.AddDocument(ctx, "machine learning models and data", Metadata{MetaDocumentID: "d1"})
	if err == nil {
		t.Fatal("AddDocument() reported no error with an unwritable snapshot path")
	}
	checkParity(t, idx)
	stats := idx.Stats()
	if stats.TotalChunks == 0 || stats.TotalDocuments != 1 {
		t.Fatalf("failed persist dropped in-memory state: %+v", stats)
	}
	results, err := idx.Search(ctx, "learning models", 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) == 0 {
		t.Error("document not searchable after persist failure")
	}

	// Same asymmetry on removal: the count and the error both come back.
	removed, err := idx.RemoveDocument(ctx, "d1")
	if err == nil {
		t.Fatal("RemoveDocument() reported no error with an unwritable snapshot path")
	}
	if removed == 0 {
		t.Error("RemoveDocument() reported 0 chunks removed")
	}
	checkParity(t, idx)
	if got := idx.Stats().TotalChunks; got != 0 {
		t.Errorf("TotalChunks after removal = %d, want 0", got)
	}
}

func TestIndex_CorruptSnapshotStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(path, []byte("{definitely not json"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	idx := lexicalIndex(t, path)
	if stats := idx.Stats(); stats.TotalChunks != 0 {
		t.Errorf("corrupt snapshot produced stats %+v, want empty", stats)
	}

	// The index must still be usable and overwrite the bad snapshot.
	if err := idx.AddDocument(context.Background(), "fresh start", Metadata{MetaDocumentID: "d1"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}
}

func TestIndex_BackendMismatchSnapshotDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	lex := lexicalIndex(t, path)
	if err := lex.AddDocument(ctx, "some document text", Metadata{MetaDocumentID: "d1"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}

	dense, err := Open(Options{
		Path:    path,
		Backend: NewDenseBackend(newFakeProvider(4)),
		Chunker: testChunker(t, 4, 1),
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if stats := dense.Stats(); stats.TotalChunks != 0 {
		t.Errorf("lexical snapshot loaded into dense index: %+v", stats)
	}
}

func TestIndex_SimilarChunksLimit(t *testing.T) {
	idx := lexicalIndex(t, "")
	ctx := context.Background()

	if err := idx.AddDocument(ctx, "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10", Metadata{MetaDocumentID: "d1"}); err != nil {
		t.Fatalf("AddDocument() error: %v", err)
	}

	all := idx.SimilarChunks("d1", 0)
	if len(all) < 2 {
		t.Fatalf("document produced %d chunks, need at least 2 for this test", len(all))
	}
	firstTwo := idx.SimilarChunks("d1", 2)
	if len(firstTwo) != 2 {
		t.Fatalf("SimilarChunks(k=2) returned %d chunks", len(firstTwo))
	}
	if firstTwo[0] != all[0] || firstTwo[1] != all[1] {
		t.Error("SimilarChunks(k=2) is not a prefix of storage order")
	}
	if got := idx.SimilarChunks("unknown", 3); len(got) != 0 {
		t.Errorf("SimilarChunks(unknown) returned %d chunks", len(got))
	}
}
