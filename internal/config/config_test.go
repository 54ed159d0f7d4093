package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Chunking.ChunkSize != 512 {
		t.Errorf("ChunkSize = %d, want 512", cfg.Chunking.ChunkSize)
	}
	if cfg.Chunking.ChunkOverlap != 50 {
		t.Errorf("ChunkOverlap = %d, want 50", cfg.Chunking.ChunkOverlap)
	}
	if cfg.Embedding.Provider != "auto" {
		t.Errorf("Provider = %q, want auto", cfg.Embedding.Provider)
	}
	wantIndex := filepath.Join(dir, DefaultDataDir, DefaultIndexFile)
	if cfg.IndexPath != wantIndex {
		t.Errorf("IndexPath = %q, want %q", cfg.IndexPath, wantIndex)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, DefaultDataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	content := []byte("embedding:\n  provider: lexical\nchunking:\n  chunk_size: 128\n  chunk_overlap: 16\n")
	if err := os.WriteFile(filepath.Join(dataDir, "config.yaml"), content, 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Embedding.Provider != "lexical" {
		t.Errorf("Provider = %q, want lexical", cfg.Embedding.Provider)
	}
	if cfg.Chunking.ChunkSize != 128 || cfg.Chunking.ChunkOverlap != 16 {
		t.Errorf("Chunking = %+v, want 128/16", cfg.Chunking)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCDEX_EMBEDDING_PROVIDER", "openai")
	t.Setenv("DOCDEX_CHUNK_SIZE", "64")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("Provider = %q, want openai (env override)", cfg.Embedding.Provider)
	}
	if cfg.Chunking.ChunkSize != 64 {
		t.Errorf("ChunkSize = %d, want 64 (env override)", cfg.Chunking.ChunkSize)
	}
}

func TestWriteThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Embedding.Provider = "ollama"
	cfg.Server.Port = 9999

	if err := cfg.Write(); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Embedding.Provider != "ollama" {
		t.Errorf("Provider = %q, want ollama", loaded.Embedding.Provider)
	}
	if loaded.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999", loaded.Server.Port)
	}
}
