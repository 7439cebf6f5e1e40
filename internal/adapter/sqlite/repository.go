package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cwygoda/catchbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id         TEXT PRIMARY KEY,
    link       TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'received',
    error      TEXT,
    file       TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
`

var jobColumns = []string{
	"id", "link", "status", "COALESCE(error, '')", "COALESCE(file, '')", "created_at", "updated_at",
}

// Repository implements domain.JobLedger using SQLite.
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite ledger, initializing the schema if needed.
func New(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// One writer at a time; the worker and HTTP handlers share this handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create records a newly received link.
func (r *Repository) Create(ctx context.Context, link domain.Link) (*domain.Job, error) {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.New().String(),
		Link:      link,
		Status:    domain.StatusReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := sq.Insert("jobs").
		Columns("id", "link", "status", "created_at", "updated_at").
		Values(job.ID, string(link), string(job.Status), now, now).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Get retrieves a job by ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := sq.Select(jobColumns...).
		From("jobs").
		Where(sq.Eq{"id": id}).
		RunWith(r.db).
		QueryRowContext(ctx)
	return scanJob(row)
}

// Recent returns the newest jobs first, up to limit.
func (r *Repository) Recent(ctx context.Context, limit int) ([]domain.Job, error) {
	rows, err := sq.Select(jobColumns...).
		From("jobs").
		OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// SetStatus moves a job to status, recording reason when non-empty.
func (r *Repository) SetStatus(ctx context.Context, id string, status domain.JobStatus, reason string) error {
	q := sq.Update("jobs").
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})
	if reason != "" {
		q = q.Set("error", reason)
	}
	return r.exec(ctx, q)
}

// Complete marks a job as done and records its output file.
func (r *Repository) Complete(ctx context.Context, id string, file string) error {
	q := sq.Update("jobs").
		Set("status", string(domain.StatusDone)).
		Set("file", file).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})
	return r.exec(ctx, q)
}

// FailInterrupted marks jobs left active by a previous process as failed.
// Nothing is re-queued.
func (r *Repository) FailInterrupted(ctx context.Context) (int64, error) {
	result, err := sq.Update("jobs").
		Set("status", string(domain.StatusFailed)).
		Set("error", "interrupted by shutdown").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"status": statusStrings(domain.Unfinished())}).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *Repository) exec(ctx context.Context, q sq.UpdateBuilder) error {
	result, err := q.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func statusStrings(statuses []domain.JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job    domain.Job
		link   string
		status string
	)
	err := row.Scan(&job.ID, &link, &status, &job.Error, &job.File, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Link = domain.Link(link)
	job.Status = domain.JobStatus(status)
	return &job, nil
}
