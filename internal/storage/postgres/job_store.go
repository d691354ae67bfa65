// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodforge/supplier-import/internal/importer"
)

// querier is the subset of pgxpool.Pool the stores use; pgxmock satisfies
// it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool builds a pgx pool from Config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore persists import jobs in the import_jobs table.
type JobStore struct {
	pool querier
}

// NewJobStore constructs a store from an existing pool.
func NewJobStore(pool querier) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job importer.ImportJob) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	counts, err := json.Marshal(job.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	query := `
INSERT INTO import_jobs (id, status, error_text, submitted_at, params, counts, log)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	logLines := job.Log
	if logLines == nil {
		logLines = []string{}
	}
	if _, err := s.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ErrorText, job.Submitted, params, counts, logLines,
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job row by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (importer.ImportJob, error) {
	query := `
SELECT id, status, error_text, submitted_at, started_at, finished_at, params, counts, log
FROM import_jobs WHERE id = $1`
	var (
		job        importer.ImportJob
		status     string
		paramsJSON []byte
		countsJSON []byte
		logLines   []string
	)
	row := s.pool.QueryRow(ctx, query, jobID)
	err := row.Scan(&job.ID, &status, &job.ErrorText, &job.Submitted,
		&job.Started, &job.Finished, &paramsJSON, &countsJSON, &logLines)
	if errors.Is(err, pgx.ErrNoRows) {
		return importer.ImportJob{}, importer.ErrNotFound
	}
	if err != nil {
		return importer.ImportJob{}, fmt.Errorf("select job: %w", err)
	}
	job.Status = importer.JobStatus(status)
	job.Log = logLines
	if err := json.Unmarshal(paramsJSON, &job.Params); err != nil {
		return importer.ImportJob{}, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(countsJSON, &job.Counts); err != nil {
		return importer.ImportJob{}, fmt.Errorf("unmarshal counts: %w", err)
	}
	return job, nil
}

// UpdateJobStatus updates status and counters. The WHERE clause refuses to
// move a job out of a terminal state.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status importer.JobStatus,
	errText string,
	counts importer.JobCounts,
) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	query := `
UPDATE import_jobs SET
	status = $2,
	error_text = $3,
	counts = $4,
	started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, now()) ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('completed','failed','cancelled') THEN COALESCE(finished_at, now()) ELSE finished_at END
WHERE id = $1 AND (status NOT IN ('completed','failed','cancelled') OR status = $2)`
	tag, err := s.pool.Exec(ctx, query, jobID, string(status), errText, countsJSON)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not updatable to %s", jobID, status)
	}
	return nil
}

// AppendLog appends one line to the job log.
func (s *JobStore) AppendLog(ctx context.Context, jobID string, line string) error {
	query := `UPDATE import_jobs SET log = array_append(log, $2) WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, jobID, line)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return importer.ErrNotFound
	}
	return nil
}
