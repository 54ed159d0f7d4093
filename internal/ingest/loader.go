// Package ingest loads plain-text documents from disk and keeps a watched
// directory in sync with the retrieval index.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/docdex/docdex/internal/store"
)

// textExtensions are the file types loaded as documents. Rich formats (PDF,
// DOCX) are converted upstream; the index only ever sees text.
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".text":     true,
	".rst":      true,
}

// Document is a loaded document ready for indexing.
type Document struct {
	ID       string
	Title    string
	Text     string
	Metadata store.Metadata
}

// LoadFile reads a single text document. The document id is a fresh UUID and
// the title derives from the filename.
func LoadFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if !IsText(content) {
		return nil, fmt.Errorf("%s: not a text file", path)
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, fmt.Errorf("%s: file is empty", path)
	}

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	id := uuid.NewString()

	doc := &Document{
		ID:    id,
		Title: title,
		Text:  text,
		Metadata: store.Metadata{
			store.MetaDocumentID: id,
			"title":              title,
			"type":               "uploaded",
			"source":             "upload",
			"file_type":          strings.TrimPrefix(filepath.Ext(base), "."),
			"word_count":         len(strings.Fields(text)),
			"uploaded_at":        time.Now().UTC().Format(time.RFC3339),
		},
	}
	return doc, nil
}

// LoadDir walks dir and loads every supported text file. Unreadable or
// non-text files are skipped, not fatal.
func LoadDir(dir string) ([]*Document, error) {
	var docs []*Document
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		doc, err := LoadFile(path)
		if err != nil {
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return docs, nil
}

// IsText reports whether content looks like text rather than binary data.
func IsText(content []byte) bool {
	if len(content) == 0 {
		return true
	}

	checkSize := 8192
	if len(content) <= checkSize {
		checkSize = len(content)
	} else {
		// Back the sample boundary off to a rune start so a multi-byte
		// rune straddling it doesn't read as invalid UTF-8.
		for i := 0; i < utf8.UTFMax-1 && checkSize > 0; i++ {
			if utf8.RuneStart(content[checkSize]) {
				break
			}
			checkSize--
		}
	}
	sample := content[:checkSize]

	for _, b := range sample {
		if b == 0 {
			return false
		}
	}
	return utf8.Valid(sample)
}
