package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// snapshot is the on-disk form of the index: the parallel chunk and metadata
// sequences plus, for the dense backend, the encoded vectors so reload needs
// no embedding provider round trip.
type snapshot struct {
	Backend    string      `json:"backend"`
	Dimensions int         `json:"dimensions,omitempty"`
	Chunks     []string    `json:"chunks"`
	Metadata   []Metadata  `json:"metadata"`
	Vectors    [][]float32 `json:"vectors,omitempty"`
}

// persist writes the current state to idx.path via a temp file and rename.
// The caller holds the lock.
func (idx *Index) persist() error {
	if idx.path == "" {
		return nil
	}

	snap := snapshot{
		Backend:  idx.backend.Name(),
		Chunks:   idx.chunks,
		Metadata: idx.metadata,
	}
	if dense, ok := idx.backend.(*DenseBackend); ok {
		snap.Dimensions = dense.Dimensions()
		snap.Vectors = dense.Vectors()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(idx.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, idx.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// load restores state from idx.path. A missing file means a fresh index and
// is silent; anything unreadable or inconsistent is logged and discarded so
// startup never fails on a bad snapshot.
func (idx *Index) load() {
	if idx.path == "" {
		return
	}

	data, err := os.ReadFile(idx.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			idx.logger.Warn("snapshot unreadable, starting empty",
				zap.String("path", idx.path), zap.Error(err))
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		idx.logger.Warn("snapshot corrupt, starting empty",
			zap.String("path", idx.path), zap.Error(err))
		return
	}

	if snap.Backend != idx.backend.Name() {
		idx.logger.Warn("snapshot backend mismatch, starting empty",
			zap.String("snapshot_backend", snap.Backend),
			zap.String("backend", idx.backend.Name()))
		return
	}
	if len(snap.Chunks) != len(snap.Metadata) {
		idx.logger.Warn("snapshot chunk/metadata length mismatch, starting empty",
			zap.Int("chunks", len(snap.Chunks)), zap.Int("metadata", len(snap.Metadata)))
		return
	}

	switch backend := idx.backend.(type) {
	case *DenseBackend:
		if len(snap.Vectors) != len(snap.Chunks) {
			idx.logger.Warn("snapshot vector count mismatch, starting empty",
				zap.Int("vectors", len(snap.Vectors)), zap.Int("chunks", len(snap.Chunks)))
			return
		}
		if err := backend.SetVectors(snap.Vectors); err != nil {
			idx.logger.Warn("snapshot vectors rejected, starting empty", zap.Error(err))
			return
		}
	default:
		if err := idx.backend.Rebuild(context.Background(), snap.Chunks); err != nil {
			idx.logger.Warn("snapshot restore failed, starting empty", zap.Error(err))
			return
		}
	}

	idx.chunks = snap.Chunks
	idx.metadata = snap.Metadata
	idx.logger.Debug("snapshot loaded",
		zap.String("path", idx.path), zap.Int("chunks", len(snap.Chunks)))
}
