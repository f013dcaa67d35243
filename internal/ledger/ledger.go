// Package ledger records refresh runs and per-document ingestion outcomes in
// PostgreSQL.
//
// Tables:
//
//	documents    one row per source document, upserted on every refresh
//	refresh_runs one row per refresh run
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/postgres"
)

type Status string

const (
	StatusIndexed Status = "INDEXED"
	StatusFailed  Status = "FAILED"
)

// Document is the latest known ingestion outcome of one source document.
type Document struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type"`
	ModifiedTime time.Time `json:"modified_time"`
	Status       Status    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	Sections     int       `json:"sections"`
	Characters   int       `json:"characters"`
	RunID        string    `json:"run_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Run summarizes one refresh.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Indexed    int       `json:"indexed"`
	Failed     int       `json:"failed"`
	Model      string    `json:"model"`
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		mime_type     TEXT NOT NULL,
		modified_time TIMESTAMPTZ,
		status        TEXT NOT NULL,
		reason        TEXT NOT NULL DEFAULT '',
		sections      INTEGER NOT NULL DEFAULT 0,
		characters    INTEGER NOT NULL DEFAULT 0,
		run_id        TEXT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_runs (
		id          TEXT PRIMARY KEY,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		total       INTEGER NOT NULL,
		indexed     INTEGER NOT NULL,
		failed      INTEGER NOT NULL,
		model       TEXT NOT NULL DEFAULT ''
	)`,
}

// Store reads and writes the ledger tables.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "ledger"),
		now:    time.Now,
	}
}

// Migrate creates the ledger tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, schema...); err != nil {
		return fmt.Errorf("migrating ledger: %w", err)
	}
	return nil
}

// RecordDocument upserts the outcome for one document.
func (s *Store) RecordDocument(ctx context.Context, d Document) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO documents (id, name, mime_type, modified_time, status, reason, sections, characters, run_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   mime_type = EXCLUDED.mime_type,
		   modified_time = EXCLUDED.modified_time,
		   status = EXCLUDED.status,
		   reason = EXCLUDED.reason,
		   sections = EXCLUDED.sections,
		   characters = EXCLUDED.characters,
		   run_id = EXCLUDED.run_id,
		   updated_at = EXCLUDED.updated_at`,
		d.ID, d.Name, d.MimeType, nullTime(d.ModifiedTime), string(d.Status), d.Reason,
		d.Sections, d.Characters, d.RunID, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording document %s: %w", d.ID, err)
	}
	return nil
}

// RecordRun inserts a finished run.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO refresh_runs (id, started_at, finished_at, total, indexed, failed, model)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Total, r.Indexed, r.Failed, r.Model,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	s.logger.Info("refresh run recorded", "run_id", r.ID, "indexed", r.Indexed, "failed", r.Failed)
	return nil
}

// ListDocuments returns every document ordered by name.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, mime_type, modified_time, status, reason, sections, characters, run_id, updated_at
		 FROM documents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			d        Document
			status   string
			modified sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.MimeType, &modified, &status, &d.Reason,
			&d.Sections, &d.Characters, &d.RunID, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		d.Status = Status(status)
		if modified.Valid {
			d.ModifiedTime = modified.Time
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// LatestRun returns the most recent run, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	var r Run
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, total, indexed, failed, model
		 FROM refresh_runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Total, &r.Indexed, &r.Failed, &r.Model)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	return &r, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
