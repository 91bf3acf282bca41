// Package storage is the PostgreSQL side of job tracking: job summaries,
// persisted results and the audit trail of lifecycle events.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/cuongbtq/research-crew/internal/workflow"
	"github.com/cuongbtq/research-crew/shared/postgresql"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id     TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at DESC, job_id DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);

CREATE TABLE IF NOT EXISTS job_results (
	job_id      TEXT PRIMARY KEY,
	result_kind TEXT NOT NULL,
	result      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_events (
	id          BIGSERIAL PRIMARY KEY,
	job_id      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_job_events_job_id ON job_events (job_id, occurred_at, id);
`

// JobRow is the durable summary of a job.
type JobRow struct {
	JobID     string    `db:"job_id"`
	Kind      string    `db:"kind"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ResultRow is the persisted result of a completed job.
type ResultRow struct {
	JobID      string    `db:"job_id"`
	ResultKind string    `db:"result_kind"`
	Result     string    `db:"result"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Decode rebuilds the tagged result.
func (r ResultRow) Decode() (jobs.Result, error) {
	return jobs.ParseResult(jobs.ResultKind(r.ResultKind), r.Result)
}

// EventRow is one lifecycle event recorded by the audit service.
type EventRow struct {
	ID         int64     `db:"id"`
	JobID      string    `db:"job_id"`
	Kind       string    `db:"kind"`
	Status     string    `db:"status"`
	Message    string    `db:"message"`
	OccurredAt time.Time `db:"occurred_at"`
}

type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

type Storage struct {
	pg  *postgresql.Client
	db  *sqlx.DB
	now func() time.Time
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		pg:  pg,
		db:  pg.GetDB(),
		now: time.Now,
	}
}

// EnsureSchema creates the tables and indexes when they do not exist.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	return s.pg.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
		return nil
	})
}

// CreatePending inserts a PENDING job row. A second insert of the same id
// returns jobs.ErrDuplicateJob.
func (s *Storage) CreatePending(ctx context.Context, jobID string, kind workflow.Kind) error {
	query := `
		INSERT INTO jobs (job_id, kind, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx, query, jobID, string(kind), string(jobs.StatusPending), now); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", jobs.ErrDuplicateJob, jobID)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// MarkTerminal sets the status of an existing job row. Repeating the call
// with the same status is harmless.
func (s *Storage) MarkTerminal(ctx context.Context, jobID string, status jobs.Status) error {
	query := `
		UPDATE jobs
		SET status = $2, updated_at = $3
		WHERE job_id = $1
	`

	res, err := s.db.ExecContext(ctx, query, jobID, string(status), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return nil
}

// StoreResult upserts the result row of a job.
func (s *Storage) StoreResult(ctx context.Context, jobID string, result jobs.Result) error {
	query := `
		INSERT INTO job_results (job_id, result_kind, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (job_id) DO UPDATE
		SET result_kind = EXCLUDED.result_kind,
			result = EXCLUDED.result,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, jobID, string(result.Kind()), result.Text(), s.now().UTC()); err != nil {
		return fmt.Errorf("failed to store job result: %w", err)
	}
	return nil
}

func (s *Storage) GetJob(ctx context.Context, jobID string) (*JobRow, error) {
	var job JobRow
	query := `
		SELECT job_id, kind, status, created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *Storage) GetResult(ctx context.Context, jobID string) (*ResultRow, error) {
	var row ResultRow
	query := `
		SELECT job_id, result_kind, result, created_at, updated_at
		FROM job_results
		WHERE job_id = $1
	`

	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job result: %w", err)
	}
	return &row, nil
}

// ListJobs returns up to PageSize+1 rows, newest first, so the caller can
// tell whether another page exists.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]JobRow, error) {
	query, args := buildListQuery(filter)

	var rows []JobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return rows, nil
}

func buildListQuery(filter JobFilter) (string, []interface{}) {
	query := `
        SELECT job_id, kind, status, created_at, updated_at
        FROM jobs
        WHERE 1=1
    `
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}

// InsertEvent appends a lifecycle event to the audit trail.
func (s *Storage) InsertEvent(ctx context.Context, n jobs.Notification) error {
	query := `
		INSERT INTO job_events (job_id, kind, status, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := s.db.ExecContext(ctx, query, n.JobID, n.Kind, string(n.Status), n.Message, n.OccurredAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert job event: %w", err)
	}
	return nil
}

// ListEvents returns the audit trail of a job in the order it happened.
func (s *Storage) ListEvents(ctx context.Context, jobID string) ([]EventRow, error) {
	query := `
		SELECT id, job_id, kind, status, message, occurred_at
		FROM job_events
		WHERE job_id = $1
		ORDER BY occurred_at, id
	`

	var rows []EventRow
	if err := s.db.SelectContext(ctx, &rows, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}
	return rows, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}

// IsPermanent reports whether err is a PostgreSQL error that retrying the
// same statement cannot fix, such as bad data or a constraint violation.
func IsPermanent(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	code := string(pqErr.Code)
	return pgerrcode.IsDataException(code) || pgerrcode.IsIntegrityConstraintViolation(code)
}
