package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/docdex/docdex/internal/store"
)

// Watcher keeps a directory of documents synchronized with the retrieval
// index: file writes re-index the document, deletions remove it. Document
// ids derive from the relative path so repeated events hit the same document.
type Watcher struct {
	dir      string
	index    *store.Index
	logger   *zap.Logger
	debounce time.Duration

	fsw     *fsnotify.Watcher
	pending map[string]fsnotify.Op
}

// NewWatcher creates a watcher for dir feeding idx.
func NewWatcher(dir string, idx *store.Index, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:      dir,
		index:    idx,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		fsw:      fsw,
		pending:  make(map[string]fsnotify.Op),
	}, nil
}

// Run watches until ctx is canceled. Events are debounced so editors that
// write multiple times in quick succession trigger one re-index.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addRecursive(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching documents directory", zap.String("dir", w.dir))

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}
	if !textExtensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}
	w.pending[event.Name] |= event.Op
}

func (w *Watcher) flush(ctx context.Context) {
	if len(w.pending) == 0 {
		return
	}
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)

	for path, op := range batch {
		docID := w.documentID(path)

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if n, err := w.index.RemoveDocument(ctx, docID); err != nil {
					w.logger.Warn("remove failed", zap.String("path", path), zap.Error(err))
				} else if n > 0 {
					w.logger.Info("document removed", zap.String("path", path), zap.Int("chunks", n))
				}
				continue
			}
		}

		w.reindex(ctx, path, docID)
	}
}

func (w *Watcher) reindex(ctx context.Context, path, docID string) {
	doc, err := LoadFile(path)
	if err != nil {
		w.logger.Warn("load failed", zap.String("path", path), zap.Error(err))
		return
	}
	doc.ID = docID
	doc.Metadata[store.MetaDocumentID] = docID
	doc.Metadata["source"] = "watch"

	if _, err := w.index.RemoveDocument(ctx, docID); err != nil {
		w.logger.Warn("stale chunks not removed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := w.index.AddDocument(ctx, doc.Text, doc.Metadata); err != nil {
		w.logger.Warn("reindex failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("document indexed", zap.String("path", path), zap.String("document_id", docID))
}

// documentID derives a stable id from the path relative to the watched root.
func (w *Watcher) documentID(path string) string {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		rel = path
	}
	sum := sha1.Sum([]byte(rel))
	return hex.EncodeToString(sum[:])
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
