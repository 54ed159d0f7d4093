package store

import (
	"context"
	"sort"
	"strings"
)

// LexicalBackend scores queries by word-set overlap. It needs no embedding
// provider and serves as the fallback when none is configured.
type LexicalBackend struct {
	texts []string
}

// NewLexicalBackend creates an empty lexical backend.
func NewLexicalBackend() *LexicalBackend {
	return &LexicalBackend{}
}

// Add retains the raw texts; the representation is the text itself.
func (b *LexicalBackend) Add(_ context.Context, texts []string) error {
	b.texts = append(b.texts, texts...)
	return nil
}

// Score computes |query words ∩ chunk words| / max(|query words|, 1) for each
// stored text. Chunks sharing no words with the query are dropped outright
// rather than scored zero; that keeps result lists short and is the contract
// callers rely on.
func (b *LexicalBackend) Score(_ context.Context, query string) ([]Scored, error) {
	queryWords := wordSet(query)
	denom := len(queryWords)
	if denom < 1 {
		denom = 1
	}

	var scored []Scored
	for i, text := range b.texts {
		overlap := 0
		for word := range wordSet(text) {
			if _, ok := queryWords[word]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		scored = append(scored, Scored{Index: i, Score: float64(overlap) / float64(denom)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

// Rebuild replaces the retained texts. There is no derived structure to
// reconstruct, so this never fails.
func (b *LexicalBackend) Rebuild(_ context.Context, texts []string) error {
	b.texts = append([]string(nil), texts...)
	return nil
}

// Len reports the number of retained texts.
func (b *LexicalBackend) Len() int {
	return len(b.texts)
}

// Name identifies this backend in snapshots and stats.
func (b *LexicalBackend) Name() string {
	return "lexical"
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
