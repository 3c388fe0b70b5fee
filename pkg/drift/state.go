// SPDX-License-Identifier: Apache-2.0

// Package drift classifies each (query, partition) pair against its stored
// execution history, and reports historical-declaration integrity issues
// alongside the primary drift classification.
package drift

import "time"

// ExecutionStatus is the outcome recorded for a single partition write.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusFailed  ExecutionStatus = "failed"
)

// PartitionState is one persisted (query, partition_date) execution record.
type PartitionState struct {
	QueryName       string
	PartitionDate   time.Time
	Version         int
	SQLRevision     *int
	EffectiveFrom   time.Time
	SQLChecksum     string
	SchemaChecksum  string
	YAMLChecksum    string
	ExecutedSQLB64  string
	UpstreamStates  map[string]time.Time
	ExecutedAt      time.Time
	ExecutionTimeMs *int64
	RowsWritten     *int64
	BytesProcessed  *int64
	Status          ExecutionStatus
}

// State is the drift classification of a single partition relative to its
// stored history.
type State string

const (
	StateNeverRun        State = "never_run"
	StateCurrent         State = "current"
	StateSqlChanged      State = "sql_changed"
	StateSchemaChanged   State = "schema_changed"
	StateVersionUpgraded State = "version_upgraded"
	StateUpstreamChanged State = "upstream_changed"
	StateFailed          State = "failed"
)

// NeedsRerun is true for every state except Current.
func (s State) NeedsRerun() bool {
	return s != StateCurrent
}

// PartitionDrift is the classification output for one (query, partition).
type PartitionDrift struct {
	QueryName       string
	PartitionDate   time.Time
	State           State
	CurrentVersion  int
	ExecutedVersion *int
	CausedBy        string
	ExecutedSQLB64  string
	CurrentSQL      string
}

// Report is the ephemeral result of one detection run.
type Report struct {
	Partitions []PartitionDrift
}

// Add appends a classified partition to the report.
func (r *Report) Add(d PartitionDrift) {
	r.Partitions = append(r.Partitions, d)
}
