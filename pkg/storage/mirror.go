// Package storage keeps a local sqlite copy of the content repository. The
// sync command fills it; with the mirror enabled the site searches it with
// FTS5 instead of calling the remote API.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/sketchplanations/sketchweb/pkg/db"
	"github.com/sketchplanations/sketchweb/pkg/log"
	"github.com/sketchplanations/sketchweb/pkg/prismic"
)

const lastSyncKey = "last_sync"

// Mirror is a sqlite database of repository documents.
type Mirror struct {
	db *sql.DB
	l  *log.Logger
}

// Stats describes the mirror contents.
type Stats struct {
	Documents int            `json:"documents"`
	ByType    map[string]int `json:"by_type"`
	LastSync  time.Time      `json:"last_sync"`
}

// OpenMirror opens (creating if needed) the mirror at dbPath and applies
// pending migrations.
func OpenMirror(ctx context.Context, dbPath string) (*Mirror, error) {
	m, err := OpenMirrorWithoutMigrations(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.InitializeDatabase(ctx, m.db); err != nil {
		m.db.Close()
		return nil, err
	}
	return m, nil
}

// OpenMirrorWithoutMigrations opens the database as it is, for tools that
// inspect or apply migrations themselves.
func OpenMirrorWithoutMigrations(ctx context.Context, dbPath string) (*Mirror, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating mirror directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -16000", // 16MB cache
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	return &Mirror{db: sqlDB, l: log.ForService("storage")}, nil
}

// DB exposes the underlying connection pool.
func (m *Mirror) DB() *sql.DB {
	return m.db
}

// Close closes the database.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Upsert stores docs, replacing earlier copies of the same ids, and
// reindexes their text.
func (m *Mirror) Upsert(ctx context.Context, docs []prismic.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				m.l.Warnf("failed to rollback transaction: %v", err)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, uid, type, title, body, first_publication_date, last_publication_date, raw, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uid = excluded.uid,
			type = excluded.type,
			title = excluded.title,
			body = excluded.body,
			first_publication_date = excluded.first_publication_date,
			last_publication_date = excluded.last_publication_date,
			raw = excluded.raw,
			synced_at = excluded.synced_at
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents_fts (rowid, title, body)
		VALUES ((SELECT rowid FROM documents WHERE id = ?), ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing FTS statement: %w", err)
	}
	defer ftsStmt.Close()

	now := time.Now().UnixNano()
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshaling document %s: %w", doc.ID, err)
		}
		title := doc.Text("title")
		body := doc.PlainText()

		if _, err := stmt.ExecContext(ctx,
			doc.ID,
			nullable(doc.UID),
			doc.Type,
			title,
			body,
			nullable(doc.FirstPublicationDate),
			nullable(doc.LastPublicationDate),
			string(raw),
			now,
		); err != nil {
			return fmt.Errorf("inserting document %s: %w", doc.ID, err)
		}

		if _, err := ftsStmt.ExecContext(ctx, doc.ID, title, body); err != nil {
			return fmt.Errorf("indexing document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Prune removes documents of docType not refreshed since the given time,
// i.e. deleted upstream since the last full sync.
func (m *Mirror) Prune(ctx context.Context, docType string, since time.Time) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM documents_fts WHERE rowid IN (
			SELECT rowid FROM documents WHERE type = ? AND synced_at < ?
		)`, docType, since.UnixNano()); err != nil {
		return 0, fmt.Errorf("pruning index: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE type = ? AND synced_at < ?", docType, since.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning documents: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SearchDocuments returns up to pageSize documents of docType matching text,
// best match first. Every word of text must appear in the title or body.
func (m *Mirror) SearchDocuments(ctx context.Context, docType, text string, pageSize int) ([]prismic.Document, error) {
	match := ftsQuery(text)
	if match == "" {
		return []prismic.Document{}, nil
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT d.raw
		FROM documents d
		JOIN documents_fts fts ON d.rowid = fts.rowid
		WHERE documents_fts MATCH ? AND d.type = ?
		ORDER BY bm25(documents_fts), d.first_publication_date DESC
		LIMIT ?`, match, docType, pageSize)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	return m.scanDocuments(rows)
}

// GetByUID returns the document of docType with the given uid.
func (m *Mirror) GetByUID(ctx context.Context, docType, uid string) (*prismic.Document, error) {
	var raw string
	err := m.db.QueryRowContext(ctx, "SELECT raw FROM documents WHERE type = ? AND uid = ?", docType, uid).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, prismic.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", uid, err)
	}
	var doc prismic.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", uid, err)
	}
	return &doc, nil
}

func (m *Mirror) scanDocuments(rows *sql.Rows) ([]prismic.Document, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			m.l.Warnf("failed to close rows: %v", err)
		}
	}()

	docs := []prismic.Document{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var doc prismic.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", prismic.ErrMalformedResponse, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetLastSync records when a full sync finished.
func (m *Mirror) SetLastSync(ctx context.Context, t time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_metadata (key, value, updated_at)
		VALUES (?, ?, ?)
	`, lastSyncKey, t.UTC().Format(time.RFC3339), time.Now().UTC())
	return err
}

// Stats counts documents per type and reports the last sync time.
func (m *Mirror) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByType: map[string]int{}}

	rows, err := m.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM documents GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var docType string
		var n int
		if err := rows.Scan(&docType, &n); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		stats.ByType[docType] = n
		stats.Documents += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last string
	err = m.db.QueryRowContext(ctx, "SELECT value FROM sync_metadata WHERE key = ?", lastSyncKey).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("reading last sync: %w", err)
	default:
		if stats.LastSync, err = time.Parse(time.RFC3339, last); err != nil {
			return nil, fmt.Errorf("parsing last sync: %w", err)
		}
	}
	return stats, nil
}

// Optimize lets sqlite refresh its statistics and merges the FTS index.
func (m *Mirror) Optimize(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, "INSERT INTO documents_fts(documents_fts) VALUES ('optimize')"); err != nil {
		return fmt.Errorf("optimizing index: %w", err)
	}
	_, err := m.db.ExecContext(ctx, "PRAGMA optimize")
	return err
}

// ftsQuery turns free text into an FTS5 query where every word is a quoted
// term, so user input never reaches the FTS5 query syntax.
func ftsQuery(text string) string {
	words := strings.Fields(text)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
