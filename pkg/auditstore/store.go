// SPDX-License-Identifier: Apache-2.0

// Package auditstore persists partition execution history — the record
// Detector compares declarations against to classify drift — in Postgres.
// It is append-only: every execution, successful or failed, is inserted as
// a new row, and the latest executed_at per (query, partition_date) wins,
// exactly as pkg/drift.buildStateIndex expects.
package auditstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alexchoi/bqdrift/pkg/drift"
)

const sqlInit = `
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[1]s.partition_runs (
	id                SERIAL PRIMARY KEY,
	query_name        TEXT NOT NULL,
	partition_date    DATE NOT NULL,
	version           INT NOT NULL,
	sql_revision      INT,
	effective_from    TIMESTAMPTZ NOT NULL,
	sql_checksum      TEXT NOT NULL,
	schema_checksum   TEXT NOT NULL,
	yaml_checksum     TEXT NOT NULL,
	executed_sql_b64  TEXT NOT NULL,
	upstream_states   JSONB NOT NULL DEFAULT '{}'::jsonb,
	executed_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	execution_time_ms BIGINT,
	rows_written      BIGINT,
	bytes_processed   BIGINT,
	status            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS partition_runs_lookup
	ON %[1]s.partition_runs (query_name, partition_date, executed_at DESC);
`

// Store is a Postgres-backed append-only log of partition executions.
type Store struct {
	db     *sql.DB
	schema string
}

// Open connects to dsn and returns a Store scoped to the given schema.
func Open(ctx context.Context, dsn, schema string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{db: db, schema: schema}, nil
}

// OpenWithDB wraps an already-open *sql.DB, e.g. one opened against a test
// container.
func OpenWithDB(db *sql.DB, schema string) *Store {
	return &Store{db: db, schema: schema}
}

// Init creates the store's schema and table under an advisory lock, so
// concurrent bqdrift processes starting up at once never race on DDL.
func (s *Store) Init(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const lockKey int64 = 0x6271647269667401 // "bqdrift" tag, arbitrary
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(sqlInit, pq.QuoteIdentifier(s.schema))); err != nil {
		return err
	}

	return tx.Commit()
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) table() string {
	return pq.QuoteIdentifier(s.schema) + ".partition_runs"
}

// RecordRun appends one execution record. It never updates an existing row:
// history is immutable, and the latest executed_at is what Detector reads.
func (s *Store) RecordRun(ctx context.Context, state drift.PartitionState) error {
	upstream, err := json.Marshal(upstreamStatesToWire(state.UpstreamStates))
	if err != nil {
		return fmt.Errorf("marshal upstream states: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (
			query_name, partition_date, version, sql_revision, effective_from,
			sql_checksum, schema_checksum, yaml_checksum, executed_sql_b64,
			upstream_states, executed_at, execution_time_ms, rows_written,
			bytes_processed, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, s.table())

	executedAt := state.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, stmt,
		state.QueryName, state.PartitionDate, state.Version, state.SQLRevision, state.EffectiveFrom,
		state.SQLChecksum, state.SchemaChecksum, state.YAMLChecksum, state.ExecutedSQLB64,
		upstream, executedAt, state.ExecutionTimeMs, state.RowsWritten,
		state.BytesProcessed, string(state.Status),
	)
	return err
}

// LoadForQuery returns every execution record for queryName with a
// partition_date in [from, to], across all historical executed_at values.
// Callers that need the latest-per-partition view should feed the result to
// the usual state-indexing logic, not assume one row per partition.
func (s *Store) LoadForQuery(ctx context.Context, queryName string, from, to time.Time) ([]drift.PartitionState, error) {
	return s.load(ctx, "WHERE query_name = $1 AND partition_date BETWEEN $2 AND $3", "ORDER BY query_name, partition_date, executed_at", queryName, from, to)
}

// LoadAll returns every execution record across every query, used by the
// upstream-change pass which needs visibility into every query's history.
func (s *Store) LoadAll(ctx context.Context) ([]drift.PartitionState, error) {
	return s.load(ctx, "", "ORDER BY query_name, partition_date, executed_at")
}

func (s *Store) load(ctx context.Context, where, orderBy string, args ...any) ([]drift.PartitionState, error) {
	query := fmt.Sprintf(`
		SELECT query_name, partition_date, version, sql_revision, effective_from,
		       sql_checksum, schema_checksum, yaml_checksum, executed_sql_b64,
		       upstream_states, executed_at, execution_time_ms, rows_written,
		       bytes_processed, status
		FROM %s
		%s
		%s
	`, s.table(), where, orderBy)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []drift.PartitionState
	for rows.Next() {
		var st drift.PartitionState
		var status string
		var upstreamJSON []byte
		var sqlRevision, executionTimeMs, rowsWritten, bytesProc sql.NullInt64
		if err := rows.Scan(
			&st.QueryName, &st.PartitionDate, &st.Version, &sqlRevision, &st.EffectiveFrom,
			&st.SQLChecksum, &st.SchemaChecksum, &st.YAMLChecksum, &st.ExecutedSQLB64,
			&upstreamJSON, &st.ExecutedAt, &executionTimeMs, &rowsWritten,
			&bytesProc, &status,
		); err != nil {
			return nil, err
		}
		st.Status = drift.ExecutionStatus(status)
		st.SQLRevision = nullInt64ToIntPtr(sqlRevision)
		st.ExecutionTimeMs = nullInt64ToPtr(executionTimeMs)
		st.RowsWritten = nullInt64ToPtr(rowsWritten)
		st.BytesProcessed = nullInt64ToPtr(bytesProc)

		wire := make(map[string]time.Time)
		if len(upstreamJSON) > 0 {
			if err := json.Unmarshal(upstreamJSON, &wire); err != nil {
				return nil, fmt.Errorf("unmarshal upstream states: %w", err)
			}
		}
		st.UpstreamStates = wire

		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

// ErrNoRuns is returned by LatestRun when a (query, partition) pair has
// never executed.
var ErrNoRuns = errors.New("no execution recorded for this partition")

// LatestRun returns the most recently executed_at row for a single
// (query, partition_date) pair, or ErrNoRuns if none exists.
func (s *Store) LatestRun(ctx context.Context, queryName string, partitionDate time.Time) (drift.PartitionState, error) {
	states, err := s.load(ctx, "WHERE query_name = $1 AND partition_date = $2", "ORDER BY executed_at DESC LIMIT 1", queryName, partitionDate)
	if err != nil {
		return drift.PartitionState{}, err
	}
	if len(states) == 0 {
		return drift.PartitionState{}, ErrNoRuns
	}
	return states[0], nil
}

func upstreamStatesToWire(m map[string]time.Time) map[string]time.Time {
	if m == nil {
		return map[string]time.Time{}
	}
	return m
}

func nullInt64ToPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullInt64ToIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
