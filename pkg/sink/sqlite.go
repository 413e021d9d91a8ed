package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/mvolek/estates-harvest/pkg/normalize"
)

const documentSchema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA temp_store = MEMORY;

CREATE TABLE IF NOT EXISTS estate_documents (
    content_hash TEXT PRIMARY KEY,
    source_id TEXT,
    fallback_hash INTEGER NOT NULL DEFAULT 0,
    fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    doc TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_estate_documents_source ON estate_documents(source_id);
`

// SQLite stores each normalized record as a JSON document keyed by
// content hash.
type SQLite struct {
	path string
	db   *sql.DB
}

// NewSQLite returns a document sink backed by the SQLite file at path.
// Use ":memory:" for an ephemeral store.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

func (s *SQLite) Open(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", s.path, err)
	}
	if _, err := db.ExecContext(ctx, documentSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.db = db
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, rec normalize.Record) error {
	doc, err := json.Marshal(rec.Fields)
	if err != nil {
		return &WriteError{Hash: rec.Hash, Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO estate_documents (content_hash, source_id, fallback_hash, doc)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			source_id = excluded.source_id,
			fallback_hash = excluded.fallback_hash,
			doc = excluded.doc,
			fetched_at = CURRENT_TIMESTAMP
	`, rec.Hash, normalize.FormatValue(rec.Fields["id"]), rec.Fallback, string(doc))
	if err != nil {
		return &WriteError{Hash: rec.Hash, Err: err}
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Count returns the number of stored documents.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM estate_documents").Scan(&n)
	return n, err
}
