package store

import (
	"fmt"
	"path/filepath"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// LexicalBackend selects the keyword index implementation.
type LexicalBackend string

const (
	// LexicalBackendSQLite uses SQLite FTS5 (default). WAL mode allows
	// concurrent multi-process readers.
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve uses Bleve v2. BoltDB's exclusive lock makes
	// it single-process.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates a lexical index with the given backend under
// dir. An empty dir creates an in-memory index (SQLite only) for
// testing. An empty backend defaults to SQLite.
func NewLexicalIndex(backend LexicalBackend, dir string, stopWords []string) (LexicalIndex, error) {
	switch backend {
	case LexicalBackendSQLite, "":
		var path string
		if dir != "" {
			path = filepath.Join(dir, "lexical.db")
		}
		return NewSQLiteLexicalIndex(path, stopWords)

	case LexicalBackendBleve:
		var path string
		if dir != "" {
			path = filepath.Join(dir, "lexical.bleve")
		}
		return NewBleveLexicalIndex(path, stopWords)

	default:
		return nil, lberrors.ValidationError(
			fmt.Sprintf("unknown lexical backend %q (valid: sqlite, bleve)", backend), nil)
	}
}
