package store

import (
	"context"
	"math"
	"testing"
)

func TestLexicalBackend_ScoreOverlapFraction(t *testing.T) {
	b := NewLexicalBackend()
	ctx := context.Background()

	if err := b.Add(ctx, []string{"machine learning models", "unrelated text"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	scored, err := b.Score(ctx, "deep learning")
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	// "unrelated text" shares no words with the query and must be excluded
	// entirely, not scored zero.
	if len(scored) != 1 {
		t.Fatalf("Score() returned %d entries, want 1", len(scored))
	}
	if scored[0].Index != 0 {
		t.Errorf("Score() top index = %d, want 0", scored[0].Index)
	}
	// |{learning}| / |{deep, learning}| = 0.5
	if math.Abs(scored[0].Score-0.5) > 1e-9 {
		t.Errorf("Score() = %v, want 0.5", scored[0].Score)
	}
}

func TestLexicalBackend_CaseInsensitive(t *testing.T) {
	b := NewLexicalBackend()
	ctx := context.Background()

	if err := b.Add(ctx, []string{"Machine Learning"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	scored, err := b.Score(ctx, "machine learning")
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if len(scored) != 1 || scored[0].Score != 1.0 {
		t.Errorf("Score() = %+v, want one entry with score 1.0", scored)
	}
}

func TestLexicalBackend_TiesKeepInsertionOrder(t *testing.T) {
	b := NewLexicalBackend()
	ctx := context.Background()

	// All three chunks score identically for the query.
	if err := b.Add(ctx, []string{"alpha one", "alpha two", "alpha three"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	scored, err := b.Score(ctx, "alpha")
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if len(scored) != 3 {
		t.Fatalf("Score() returned %d entries, want 3", len(scored))
	}
	for i, s := range scored {
		if s.Index != i {
			t.Errorf("scored[%d].Index = %d, want %d (insertion order on ties)", i, s.Index, i)
		}
	}
}

func TestLexicalBackend_EmptyQuery(t *testing.T) {
	b := NewLexicalBackend()
	ctx := context.Background()

	if err := b.Add(ctx, []string{"some chunk"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	scored, err := b.Score(ctx, "   ")
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if len(scored) != 0 {
		t.Errorf("Score() on empty query returned %d entries, want 0", len(scored))
	}
}

func TestLexicalBackend_Rebuild(t *testing.T) {
	b := NewLexicalBackend()
	ctx := context.Background()

	if err := b.Add(ctx, []string{"a", "b", "c"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := b.Rebuild(ctx, []string{"x"}); err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("Len() after rebuild = %d, want 1", b.Len())
	}
}
