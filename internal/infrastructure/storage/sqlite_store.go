package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/ports"
)

const jobsTable = "upload_jobs"

const schema = `
CREATE TABLE IF NOT EXISTS upload_jobs (
	id         TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	document   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upload_jobs_created ON upload_jobs(created_at);
`

// SQLiteJobStore persists the upload job list in a sqlite file.
type SQLiteJobStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.JobStore = (*SQLiteJobStore)(nil)

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteJobStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps :memory: databases consistent and serialises writes.
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteJobStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteJobStore wires an existing sql.DB and applies the schema.
func NewSQLiteJobStore(ctx context.Context, db *sql.DB) (*SQLiteJobStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteJobStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Save replaces the stored jobs with jobs.
func (s *SQLiteJobStore) Save(ctx context.Context, jobs []domain.UploadJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.sb.Delete(jobsTable).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}

	if len(jobs) > 0 {
		insert := s.sb.Insert(jobsTable).Columns("id", "position", "status", "created_at", "document")
		for i, job := range jobs {
			doc, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("marshal job %s: %w", job.ID, err)
			}
			insert = insert.Values(job.ID, i, string(job.Status), job.Timestamp.UTC().Format(time.RFC3339Nano), string(doc))
		}
		query, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert jobs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns stored jobs oldest first.
func (s *SQLiteJobStore) Load(ctx context.Context) ([]domain.UploadJob, error) {
	query, args, err := s.sb.Select("document").From(jobsTable).OrderBy("created_at", "position").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	var jobs []domain.UploadJob
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		var job domain.UploadJob
		if err := json.Unmarshal([]byte(doc), &job); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return jobs, nil
}

// Clear removes every stored job.
func (s *SQLiteJobStore) Clear(ctx context.Context) error {
	query, args, err := s.sb.Delete(jobsTable).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteJobStore) Close() error {
	return s.db.Close()
}
