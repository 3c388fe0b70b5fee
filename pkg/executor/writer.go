// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/alexchoi/bqdrift/pkg/bqerr"
	"github.com/alexchoi/bqdrift/pkg/checksum"
	"github.com/alexchoi/bqdrift/pkg/dsl"
	"github.com/alexchoi/bqdrift/pkg/invariant"
	"github.com/alexchoi/bqdrift/pkg/schema"
	"github.com/alexchoi/bqdrift/pkg/warehouse"
)

// WriteMode selects how a partition's rows are replaced: MERGE (atomic) or
// truncate-insert (two statements, a brief window with no rows).
type WriteMode string

const (
	WriteModeMerge          WriteMode = "merge"
	WriteModeTruncateInsert WriteMode = "truncate_insert"
)

// PartitionWriteStats describes the outcome of one successful partition
// write.
type PartitionWriteStats struct {
	QueryName       string
	Version         int
	SQLRevision     *int
	EffectiveFrom   time.Time
	PartitionKey    schema.PartitionKey
	SQLChecksum     string
	SchemaChecksum  string
	ExecutedSQLB64  string
	InvariantReport *invariant.Report
	// RunID correlates this write with the Runner call that produced it.
	// Empty when a writer is used directly, outside a Runner.
	RunID string
}

// PartitionWriter generates and executes the SQL for a single partition of
// a single query, running before/after invariant checks around it.
type PartitionWriter struct {
	client warehouse.Client
	mode   WriteMode
}

// NewPartitionWriter builds a writer that defaults to MERGE writes.
func NewPartitionWriter(client warehouse.Client) *PartitionWriter {
	return &PartitionWriter{client: client, mode: WriteModeMerge}
}

// WithMode returns a copy of the writer using the given write mode.
func (w *PartitionWriter) WithMode(mode WriteMode) *PartitionWriter {
	return &PartitionWriter{client: w.client, mode: mode}
}

// WritePartition writes one partition of query, running its before/after
// invariant checks.
func (w *PartitionWriter) WritePartition(ctx context.Context, query dsl.QueryDef, key schema.PartitionKey) (PartitionWriteStats, error) {
	return w.writePartition(ctx, query, key, true)
}

// WritePartitionSkipInvariants writes one partition without running any
// invariant checks, used by callers (e.g. a dry-run or a rapid re-backfill
// of already-verified history) that have already established correctness.
func (w *PartitionWriter) WritePartitionSkipInvariants(ctx context.Context, query dsl.QueryDef, key schema.PartitionKey) (PartitionWriteStats, error) {
	return w.writePartition(ctx, query, key, false)
}

func (w *PartitionWriter) writePartition(ctx context.Context, query dsl.QueryDef, key schema.PartitionKey, runInvariants bool) (PartitionWriteStats, error) {
	partitionDate := key.ToNaiveDate()
	version, ok := query.GetVersionForDate(partitionDate)
	if !ok {
		return PartitionWriteStats{}, &bqerr.PartitionFailureError{
			Query:     query.Name,
			Partition: key.String(),
			Err:       fmt.Errorf("no version found effective for partition %s", key),
		}
	}

	sql, revision := version.ActiveRevisionForDate(time.Now().UTC())

	execute := func() error {
		return w.execute(ctx, query, *version, sql, key)
	}

	report, err := w.executeWithInvariants(ctx, query.Name, query.Destination, partitionDate, *version, runInvariants, execute)
	if err != nil {
		return PartitionWriteStats{}, &bqerr.PartitionFailureError{Query: query.Name, Partition: key.String(), Err: err}
	}

	executedSQLB64, err := checksum.CompressToBase64(sql)
	if err != nil {
		return PartitionWriteStats{}, &bqerr.PartitionFailureError{Query: query.Name, Partition: key.String(), Err: err}
	}
	sums := checksum.Compute(sql, version.Schema.Canonical(), "")

	return PartitionWriteStats{
		QueryName:       query.Name,
		Version:         version.Version,
		SQLRevision:     revision,
		EffectiveFrom:   version.EffectiveFrom,
		PartitionKey:    key,
		SQLChecksum:     sums.SQL,
		SchemaChecksum:  sums.Schema,
		ExecutedSQLB64:  executedSQLB64,
		InvariantReport: report,
	}, nil
}

func (w *PartitionWriter) execute(ctx context.Context, query dsl.QueryDef, version dsl.VersionDef, sql string, key schema.PartitionKey) error {
	switch w.mode {
	case WriteModeTruncateInsert:
		insertSQL, deleteSQL := buildTruncateInsertSQL(query.Destination, sql, key)
		if _, err := w.client.ExecuteQuery(ctx, deleteSQL); err != nil {
			return &bqerr.WarehouseExecutionError{SQL: deleteSQL, Err: err}
		}
		if _, err := w.client.ExecuteQuery(ctx, insertSQL); err != nil {
			return &bqerr.WarehouseExecutionError{SQL: insertSQL, Err: err}
		}
		return nil

	default:
		field, ok := query.Destination.PartitionField()
		if !ok {
			return fmt.Errorf("partition field not specified for query %q", query.Name)
		}
		fullSQL := buildMergeSQL(query.Destination, field, sql, key)
		if _, err := w.client.ExecuteQuery(ctx, fullSQL); err != nil {
			return &bqerr.WarehouseExecutionError{SQL: fullSQL, Err: err}
		}
		return nil
	}
}

// executeWithInvariants mirrors the before-check/execute/after-check
// envelope: an Error-severity before-check failure aborts before execute
// ever runs; after-check failures are recorded but never fail the write.
func (w *PartitionWriter) executeWithInvariants(
	ctx context.Context,
	queryName string,
	dest schema.Destination,
	partitionDate time.Time,
	version dsl.VersionDef,
	runInvariants bool,
	execute func() error,
) (*invariant.Report, error) {
	if !runInvariants {
		return nil, execute()
	}

	before, after := invariant.ResolveDeclaration(version.Invariants)
	checker := invariant.NewChecker(w.client, dest, partitionDate)

	beforeResults, err := checker.RunChecks(ctx, before)
	if err != nil {
		return nil, err
	}
	if invariant.HasFailedError(beforeResults) {
		return nil, &bqerr.InvariantFailedError{Query: queryName, Message: "before-check(s) failed with error severity"}
	}

	if err := execute(); err != nil {
		return nil, err
	}

	afterResults, err := checker.RunChecks(ctx, after)
	if err != nil {
		return nil, err
	}

	return &invariant.Report{Before: beforeResults, After: afterResults}, nil
}
