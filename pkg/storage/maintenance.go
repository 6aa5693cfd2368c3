package storage

import (
	"context"
	"fmt"
	"strings"
)

// IntegrityCheck runs sqlite's integrity check and reports any problem.
func (m *Mirror) IntegrityCheck(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("running integrity check: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("scanning integrity check: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(problems) > 0 {
		return fmt.Errorf("integrity check failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// FTSIntegrityCheck verifies the full-text index.
func (m *Mirror) FTSIntegrityCheck(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, "INSERT INTO documents_fts(documents_fts, rank) VALUES ('integrity-check', 1)"); err != nil {
		return fmt.Errorf("fts integrity check: %w", err)
	}
	return nil
}

// FTSRebuild recreates the full-text index from the stored documents.
func (m *Mirror) FTSRebuild(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents_fts"); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO documents_fts (rowid, title, body) SELECT rowid, title, body FROM documents"); err != nil {
		return fmt.Errorf("reindexing documents: %w", err)
	}
	return tx.Commit()
}

func (m *Mirror) Analyze(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, "ANALYZE")
	return err
}

func (m *Mirror) Vacuum(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, "VACUUM")
	return err
}

func (m *Mirror) WALCheckpoint(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
