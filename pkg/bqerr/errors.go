// SPDX-License-Identifier: Apache-2.0

// Package bqerr defines the typed error kinds raised across bqdrift. Each
// kind is its own struct rather than a single sentinel enum, mirroring how
// the teacher reports per-operation migration failures: callers type-assert
// or errors.As to recover structured context instead of string-matching.
package bqerr

import "fmt"

// IOFailure wraps a filesystem or network error encountered while reading a
// declaration, state file, or talking to the warehouse/audit store.
type IOFailure struct {
	Path string
	Err  error
}

func (e *IOFailure) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io failure at %q: %s", e.Path, e.Err)
	}
	return fmt.Sprintf("io failure: %s", e.Err)
}

func (e *IOFailure) Unwrap() error { return e.Err }

// DSLParseFailure reports a YAML declaration that failed to parse.
type DSLParseFailure struct {
	Path string
	Err  error
}

func (e *DSLParseFailure) Error() string {
	return fmt.Sprintf("failed to parse declaration %q: %s", e.Path, e.Err)
}

func (e *DSLParseFailure) Unwrap() error { return e.Err }

// InvalidVersionReferenceError reports a `${{ versions.N.field }}` reference
// to a version index that does not exist, or a forward reference.
type InvalidVersionReferenceError struct {
	Query       string
	Reference   string
	FromVersion int
}

func (e *InvalidVersionReferenceError) Error() string {
	return fmt.Sprintf("query %q version %d: invalid version reference %q", e.Query, e.FromVersion, e.Reference)
}

// VariableResolutionError reports a `${{ ... }}` variable expression that
// could not be resolved (unknown path, non-scalar target field, etc).
type VariableResolutionError struct {
	Query      string
	Expression string
	Reason     string
}

func (e *VariableResolutionError) Error() string {
	return fmt.Sprintf("query %q: could not resolve %q: %s", e.Query, e.Expression, e.Reason)
}

// ValidationFailureError reports a declaration that parsed but failed
// schema or semantic validation.
type ValidationFailureError struct {
	Query  string
	Issues []string
}

func (e *ValidationFailureError) Error() string {
	return fmt.Sprintf("query %q failed validation with %d issue(s): %v", e.Query, len(e.Issues), e.Issues)
}

// QueryNotFoundError reports a reference to a query name that has no
// loaded declaration.
type QueryNotFoundError struct {
	Name string
}

func (e *QueryNotFoundError) Error() string {
	return fmt.Sprintf("query %q not found", e.Name)
}

// InvariantFailedError reports a before-check invariant failure that must
// abort execution of a partition before any SQL runs.
type InvariantFailedError struct {
	Query     string
	Invariant string
	Message   string
}

func (e *InvariantFailedError) Error() string {
	return fmt.Sprintf("invariant %q failed for query %q: %s", e.Invariant, e.Query, e.Message)
}

// PartitionFailureError wraps any error encountered while executing or
// writing a single partition, so the backfill runner can record it against
// that partition without aborting the rest of the run.
type PartitionFailureError struct {
	Query     string
	Partition string
	Err       error
}

func (e *PartitionFailureError) Error() string {
	return fmt.Sprintf("partition %s of query %q failed: %s", e.Partition, e.Query, e.Err)
}

func (e *PartitionFailureError) Unwrap() error { return e.Err }

// WarehouseExecutionError wraps an error returned by the warehouse client
// while running generated SQL.
type WarehouseExecutionError struct {
	SQL string
	Err error
}

func (e *WarehouseExecutionError) Error() string {
	return fmt.Sprintf("warehouse execution failed: %s", e.Err)
}

func (e *WarehouseExecutionError) Unwrap() error { return e.Err }
