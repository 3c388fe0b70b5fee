// SPDX-License-Identifier: Apache-2.0

// Package warehouse wraps the analytical warehouse connection bqdrift
// executes generated SQL against. The generated SQL itself targets
// BigQuery's dialect (backtick-quoted identifiers, MERGE statements,
// $-decorated partition suffixes); the connection layer beneath it is a
// generic database/sql pool so the same client works against whatever
// warehouse-compatible endpoint is configured for a given deployment.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/lib/pq"

	"github.com/alexchoi/bqdrift/pkg/invariant"
)

const (
	rateLimitedErrorCode pq.ErrorCode = "55P03"
	maxBackoffDuration                = 2 * time.Minute
	backoffInterval                   = 2 * time.Second
)

// ExecResult is the outcome of a statement that writes or deletes rows.
type ExecResult struct {
	RowsAffected   int64
	BytesProcessed int64
}

// Client is the warehouse capability bqdrift's executor needs: running a
// write/merge statement and running a read query. Its Query method satisfies
// invariant.Querier, so a Client can be passed directly to
// invariant.NewChecker.
type Client interface {
	ExecuteQuery(ctx context.Context, sql string) (ExecResult, error)
	Query(ctx context.Context, sql string) (invariant.QueryResult, error)
	Close() error
}

// DBClient is a Client backed by a *sql.DB, retrying on a transient
// lock/rate-limit error with exponential backoff.
type DBClient struct {
	db *sql.DB
}

// New opens a warehouse connection pool over the given DSN.
func New(ctx context.Context, dsn string) (*DBClient, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &DBClient{db: db}, nil
}

// NewFromDB wraps an already-open *sql.DB, e.g. one opened against a test
// container or an in-memory warehouse emulator.
func NewFromDB(db *sql.DB) *DBClient {
	return &DBClient{db: db}
}

// ExecuteQuery runs a statement that writes or deletes rows, retrying on a
// transient lock/rate-limit error.
func (c *DBClient) ExecuteQuery(ctx context.Context, query string) (ExecResult, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	for {
		res, err := c.db.ExecContext(ctx, query)
		if err == nil {
			affected, _ := res.RowsAffected()
			return ExecResult{RowsAffected: affected}, nil
		}

		if isRetryable(err) {
			if waitErr := sleepCtx(ctx, b.Duration()); waitErr != nil {
				return ExecResult{}, waitErr
			}
			continue
		}

		return ExecResult{}, err
	}
}

// Query runs a read query and buffers the full result set, retrying on a
// transient lock/rate-limit error.
func (c *DBClient) Query(ctx context.Context, query string) (invariant.QueryResult, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	for {
		result, err := c.runQuery(ctx, query)
		if err == nil {
			return result, nil
		}

		if isRetryable(err) {
			if waitErr := sleepCtx(ctx, b.Duration()); waitErr != nil {
				return invariant.QueryResult{}, waitErr
			}
			continue
		}

		return invariant.QueryResult{}, err
	}
}

func (c *DBClient) runQuery(ctx context.Context, query string) (invariant.QueryResult, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return invariant.QueryResult{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return invariant.QueryResult{}, err
	}

	var result invariant.QueryResult
	result.Columns = cols

	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return invariant.QueryResult{}, err
		}
		result.Rows = append(result.Rows, raw)
	}
	if err := rows.Err(); err != nil {
		return invariant.QueryResult{}, err
	}

	return result, nil
}

// Close closes the underlying connection pool.
func (c *DBClient) Close() error {
	return c.db.Close()
}

func isRetryable(err error) bool {
	pqErr := &pq.Error{}
	return errors.As(err, &pqErr) && pqErr.Code == rateLimitedErrorCode
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
