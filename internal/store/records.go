package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// RecordStore persists records in SQLite: document text, metadata as
// JSON, and the embedding vector as a little-endian float32 blob. WAL
// mode allows a reader alongside the single writer.
type RecordStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// NewRecordStore opens or creates a record database at path. An empty
// path creates an in-memory store for testing.
func NewRecordStore(path string) (*RecordStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, lberrors.StorageError("create record directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, lberrors.StorageError("open record database", err)
	}

	// Single writer keeps SQLite lock contention away
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

	s := &RecordStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, lberrors.StorageError("initialize record schema", err)
	}
	return s, nil
}

func (s *RecordStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id         TEXT PRIMARY KEY,
		document   TEXT NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}',
		vector     BLOB,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert writes records in one transaction. Existing IDs are replaced.
func (s *RecordStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lberrors.StorageError("record store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lberrors.StorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, document, metadata, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			vector = excluded.vector,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return lberrors.StorageError("prepare upsert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		metaJSON, err := json.Marshal(orEmptyMetadata(r.Metadata))
		if err != nil {
			return lberrors.ValidationError(
				fmt.Sprintf("metadata for %s is not JSON-serializable", r.ID), err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Document, string(metaJSON), encodeVector(r.Vector)); err != nil {
			return lberrors.New(lberrors.ErrCodeWriteFailed,
				fmt.Sprintf("write record %s", r.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return lberrors.New(lberrors.ErrCodeWriteFailed, "commit records", err)
	}
	return nil
}

// Get returns one record by ID.
func (s *RecordStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, lberrors.StorageError("record store is closed", nil)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, document, metadata, vector FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, lberrors.NotFoundError(id)
	}
	if err != nil {
		return Record{}, lberrors.StorageError("read record", err)
	}
	return rec, nil
}

// GetMany returns the records for ids, skipping unknown IDs. The
// result maps ID to record.
func (s *RecordStore) GetMany(ctx context.Context, ids []string) (map[string]Record, error) {
	result := make(map[string]Record, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, lberrors.StorageError("record store is closed", nil)
	}

	// Chunk the IN clause to stay under SQLite's parameter limit
	const batch = 500
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		part := ids[start:end]

		placeholders := make([]byte, 0, len(part)*2)
		args := make([]any, len(part))
		for i, id := range part {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT id, document, metadata, vector FROM records WHERE id IN (`+string(placeholders)+`)`,
			args...)
		if err != nil {
			return nil, lberrors.StorageError("read records", err)
		}
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				_ = rows.Close()
				return nil, lberrors.StorageError("scan record", err)
			}
			result[rec.ID] = rec
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, lberrors.StorageError("iterate records", err)
		}
		_ = rows.Close()
	}
	return result, nil
}

// Delete removes records by ID. Unknown IDs are ignored; the count of
// actually removed rows is returned.
func (s *RecordStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, lberrors.StorageError("record store is closed", nil)
	}

	deleted := 0
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
		if err != nil {
			return deleted, lberrors.StorageError("delete record", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += int(n)
		}
	}
	return deleted, nil
}

// Count returns the number of stored records.
func (s *RecordStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, lberrors.StorageError("record store is closed", nil)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0, lberrors.StorageError("count records", err)
	}
	return count, nil
}

// Reset removes all records.
func (s *RecordStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lberrors.StorageError("record store is closed", nil)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return lberrors.StorageError("reset records", err)
	}
	return nil
}

// ForEach streams all records ordered by ID.
func (s *RecordStore) ForEach(ctx context.Context, fn func(Record) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return lberrors.StorageError("record store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata, vector FROM records ORDER BY id`)
	if err != nil {
		return lberrors.StorageError("iterate records", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return lberrors.StorageError("scan record", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes the database.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var metaJSON string
	var blob []byte
	if err := row.Scan(&rec.ID, &rec.Document, &metaJSON, &blob); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return Record{}, fmt.Errorf("decode metadata for %s: %w", rec.ID, err)
	}
	rec.Vector = decodeVector(blob)
	return rec, nil
}

func orEmptyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob.
func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
