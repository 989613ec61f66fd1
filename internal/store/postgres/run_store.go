// Package postgres provides Postgres-backed persistence for run history.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldstone/shopsync/internal/catalog"
)

type execCloser interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// RunStore records one row per pipeline run.
type RunStore struct {
	pool execCloser
}

// NewRunStore creates a RunStore over a new connection pool.
func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool wraps an existing pool, or a mock in tests.
func NewRunStoreWithPool(pool execCloser) *RunStore {
	return &RunStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// SaveRun inserts the summary of a finished pipeline run.
func (s *RunStore) SaveRun(ctx context.Context, report catalog.Report) error {
	const query = `
		INSERT INTO pipeline_runs
			(id, start_url, pages_crawled, products_extracted, products_uploaded,
			 failed_pages, failed_uploads, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := s.pool.Exec(ctx, query,
		report.RunID,
		report.StartURL,
		report.PagesCrawled,
		len(report.Products),
		len(report.Uploaded),
		len(report.FailedPages),
		len(report.FailedUploads),
		report.Started,
		report.Finished,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}
