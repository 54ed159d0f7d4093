// Package chunker splits document text into overlapping word windows for embedding.
package chunker

import (
	"errors"
	"strings"
)

// ErrInvalidConfig indicates chunking parameters with a non-positive stride,
// which would never terminate.
var ErrInvalidConfig = errors.New("chunk overlap must be smaller than chunk size")

// Config holds configuration for the chunker.
type Config struct {
	ChunkSize    int // Window size in words
	ChunkOverlap int // Words shared between consecutive windows
}

// DefaultConfig returns default chunker configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    512,
		ChunkOverlap: 50,
	}
}

// Chunker splits text into fixed-size overlapping word windows.
type Chunker struct {
	config Config
}

// New creates a Chunker with the given configuration. Zero values fall back
// to defaults. Returns ErrInvalidConfig when the overlap is at least as large
// as the chunk size.
func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = DefaultConfig().ChunkOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, ErrInvalidConfig
	}
	return &Chunker{config: cfg}, nil
}

// Config returns the effective configuration.
func (c *Chunker) Config() Config {
	return c.config
}

// Chunk splits text into windows of ChunkSize words, each window starting
// ChunkSize-ChunkOverlap words after the previous one. Windows are rejoined
// with single spaces. If no window survives (short or whitespace-only text),
// the original text is returned as the only chunk so callers never see an
// empty result for non-empty input.
func (c *Chunker) Chunk(text string) ([]string, error) {
	return Chunk(text, c.config.ChunkSize, c.config.ChunkOverlap)
}

// Chunk is the stateless form of Chunker.Chunk.
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if overlap >= chunkSize {
		return nil, ErrInvalidConfig
	}

	words := strings.Fields(text)
	stride := chunkSize - overlap

	var chunks []string
	for start := 0; start < len(words); start += stride {
		end := start + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[start:end], " ")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}

	if len(chunks) == 0 {
		return []string{text}, nil
	}
	return chunks, nil
}
