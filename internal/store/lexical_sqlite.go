package store

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// SQLiteLexicalIndex implements LexicalIndex using SQLite FTS5 with
// BM25 ranking. Content is pre-tokenized with TokenizeProse so CJK
// text matches by character bigrams; query terms combine with OR to
// favor recall on natural-language queries.
type SQLiteLexicalIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	stopWords map[string]struct{}
	closed    bool
}

var _ LexicalIndex = (*SQLiteLexicalIndex)(nil)

// validateLexicalIntegrity checks an FTS5 database before opening and
// reports corruption so the caller can clear and rebuild.
func validateLexicalIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return lberrors.New(lberrors.ErrCodeCollectionCorrupt, "open for validation", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return lberrors.New(lberrors.ErrCodeCollectionCorrupt, "integrity check failed", err)
	}
	if result != "ok" {
		return lberrors.New(lberrors.ErrCodeCollectionCorrupt, "database corrupted: "+result, nil)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
	                   WHERE type='table' AND name='fts_content'`).Scan(&count)
	if err != nil {
		return lberrors.New(lberrors.ErrCodeCollectionCorrupt, "cannot query schema", err)
	}
	if count == 0 {
		return lberrors.New(lberrors.ErrCodeCollectionCorrupt, "FTS5 table missing", nil)
	}
	return nil
}

// NewSQLiteLexicalIndex creates an FTS5 index at path. An empty path
// creates an in-memory index for testing. A corrupted existing index
// is cleared and recreated, with a warning.
func NewSQLiteLexicalIndex(path string, stopWords []string) (*SQLiteLexicalIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, lberrors.StorageError("create lexical directory", err)
		}

		if validErr := validateLexicalIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, lberrors.StorageError("remove corrupted lexical index", removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("lexical_index_cleared", slog.String("path", path))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, lberrors.StorageError("open lexical database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, lberrors.StorageError("set pragma", err)
		}
	}

	idx := &SQLiteLexicalIndex{
		db:        db,
		path:      path,
		stopWords: BuildStopWordMap(stopWords),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, lberrors.StorageError("initialize lexical schema", err)
	}
	return idx, nil
}

func (s *SQLiteLexicalIndex) initSchema() error {
	// doc_id is stored but not searchable; content holds the
	// pre-tokenized text
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Index adds documents, replacing existing IDs. FTS5 virtual tables
// have no REPLACE, so it is delete then insert inside one transaction.
func (s *SQLiteLexicalIndex) Index(ctx context.Context, docs []LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lberrors.StorageError("lexical index is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lberrors.StorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`)
	if err != nil {
		return lberrors.StorageError("prepare delete", err)
	}
	defer func() { _ = deleteStmt.Close() }()

	insertStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return lberrors.StorageError("prepare insert", err)
	}
	defer func() { _ = insertStmt.Close() }()

	for _, doc := range docs {
		tokens := FilterStopWords(TokenizeProse(doc.Content), s.stopWords)

		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return lberrors.New(lberrors.ErrCodeWriteFailed, "delete existing document "+doc.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.ID, strings.Join(tokens, " ")); err != nil {
			return lberrors.New(lberrors.ErrCodeWriteFailed, "index document "+doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return lberrors.New(lberrors.ErrCodeWriteFailed, "commit lexical index", err)
	}
	return nil
}

// Search returns documents matching query, best first. Scores are the
// negated FTS5 bm25() values, so higher is better.
func (s *SQLiteLexicalIndex) Search(ctx context.Context, query string, limit int) ([]LexicalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, lberrors.StorageError("lexical index is closed", nil)
	}

	tokens := FilterStopWords(TokenizeProse(query), s.stopWords)
	if len(tokens) == 0 {
		return []LexicalResult{}, nil
	}

	// Quote terms so FTS5 never parses them as syntax; OR widens
	// recall for multi-term prose queries
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
	}
	matchQuery := strings.Join(quoted, " OR ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) AS score
		FROM fts_content
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?`, matchQuery, limit)
	if err != nil {
		// Invalid MATCH syntax means no results, not failure
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []LexicalResult{}, nil
		}
		return nil, lberrors.StorageError("lexical search", err)
	}
	defer func() { _ = rows.Close() }()

	var results []LexicalResult
	for rows.Next() {
		var r LexicalResult
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, lberrors.StorageError("scan lexical result", err)
		}
		// FTS5 bm25() is negative, lower = better
		r.Score = -r.Score
		results = append(results, r)
	}
	return results, rows.Err()
}

// Delete removes documents by ID.
func (s *SQLiteLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lberrors.StorageError("lexical index is closed", nil)
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`, id); err != nil {
			return lberrors.StorageError("delete document "+id, err)
		}
	}
	return nil
}

// Reset removes all documents.
func (s *SQLiteLexicalIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lberrors.StorageError("lexical index is closed", nil)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM fts_content`); err != nil {
		return lberrors.StorageError("reset lexical index", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteLexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
