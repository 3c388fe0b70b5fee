// SPDX-License-Identifier: Apache-2.0

// Package bqlog is responsible for logging all drift-detection, invariant,
// and backfill activity.
package bqlog

import "github.com/pterm/pterm"

// Logger is the structured event log used across detection and execution.
type Logger interface {
	LogDetectStart(query string, partitionCount int)
	LogDetectComplete(query string, driftCount int)
	LogPartitionDrift(query, partition, state string)

	LogInvariantStart(query, partition, invariant string)
	LogInvariantFailed(query, partition, invariant, severity string)
	LogInvariantPassed(query, partition, invariant string)

	LogBackfillStart(query string, partitionCount int)
	LogBackfillPartitionStart(query, partition string)
	LogBackfillPartitionComplete(query, partition string)
	LogBackfillPartitionFailed(query, partition string, err error)
	LogBackfillComplete(query string, succeeded, failed int)

	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type driftLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

// New returns the default pterm-backed Logger.
func New() Logger {
	return &driftLogger{logger: pterm.DefaultLogger}
}

// NewNoop returns a Logger that discards everything, for use in tests.
func NewNoop() Logger {
	return &noopLogger{}
}

func (l *driftLogger) LogDetectStart(query string, partitionCount int) {
	l.logger.Info("starting drift detection", l.logger.Args("query", query, "partition_count", partitionCount))
}

func (l *driftLogger) LogDetectComplete(query string, driftCount int) {
	l.logger.Info("drift detection complete", l.logger.Args("query", query, "drifted_count", driftCount))
}

func (l *driftLogger) LogPartitionDrift(query, partition, state string) {
	l.logger.Info("partition drift detected", l.logger.Args("query", query, "partition", partition, "state", state))
}

func (l *driftLogger) LogInvariantStart(query, partition, invariant string) {
	l.logger.Debug("running invariant", l.logger.Args("query", query, "partition", partition, "invariant", invariant))
}

func (l *driftLogger) LogInvariantFailed(query, partition, invariant, severity string) {
	l.logger.Warn("invariant failed", l.logger.Args("query", query, "partition", partition, "invariant", invariant, "severity", severity))
}

func (l *driftLogger) LogInvariantPassed(query, partition, invariant string) {
	l.logger.Debug("invariant passed", l.logger.Args("query", query, "partition", partition, "invariant", invariant))
}

func (l *driftLogger) LogBackfillStart(query string, partitionCount int) {
	l.logger.Info("backfill starting", l.logger.Args("query", query, "partition_count", partitionCount))
}

func (l *driftLogger) LogBackfillPartitionStart(query, partition string) {
	l.logger.Debug("partition execution starting", l.logger.Args("query", query, "partition", partition))
}

func (l *driftLogger) LogBackfillPartitionComplete(query, partition string) {
	l.logger.Debug("partition execution complete", l.logger.Args("query", query, "partition", partition))
}

func (l *driftLogger) LogBackfillPartitionFailed(query, partition string, err error) {
	l.logger.Error("partition execution failed", l.logger.Args("query", query, "partition", partition, "error", err))
}

func (l *driftLogger) LogBackfillComplete(query string, succeeded, failed int) {
	l.logger.Info("backfill complete", l.logger.Args("query", query, "succeeded", succeeded, "failed", failed))
}

func (l *driftLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args...))
}

func (l *driftLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.logger.Args(args...))
}

func (l *noopLogger) LogDetectStart(query string, partitionCount int)                {}
func (l *noopLogger) LogDetectComplete(query string, driftCount int)                  {}
func (l *noopLogger) LogPartitionDrift(query, partition, state string)                {}
func (l *noopLogger) LogInvariantStart(query, partition, invariant string)           {}
func (l *noopLogger) LogInvariantFailed(query, partition, invariant, severity string) {}
func (l *noopLogger) LogInvariantPassed(query, partition, invariant string)           {}
func (l *noopLogger) LogBackfillStart(query string, partitionCount int)               {}
func (l *noopLogger) LogBackfillPartitionStart(query, partition string)               {}
func (l *noopLogger) LogBackfillPartitionComplete(query, partition string)            {}
func (l *noopLogger) LogBackfillPartitionFailed(query, partition string, err error)   {}
func (l *noopLogger) LogBackfillComplete(query string, succeeded, failed int)         {}
func (l *noopLogger) Info(msg string, args ...any)                                    {}
func (l *noopLogger) Error(msg string, args ...any)                                   {}
