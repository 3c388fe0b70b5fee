// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexchoi/bqdrift/pkg/bqerr"
	"github.com/alexchoi/bqdrift/pkg/bqlog"
	"github.com/alexchoi/bqdrift/pkg/dsl"
	"github.com/alexchoi/bqdrift/pkg/schema"
	"github.com/alexchoi/bqdrift/pkg/warehouse"
)

const defaultParallelism = 5

// parallelismFromEnv reads BQDRIFT_PARALLELISM, defaulting to 5 and
// flooring at 1 so a misconfigured value never disables concurrency
// entirely or goes negative.
func parallelismFromEnv() int {
	raw := os.Getenv("BQDRIFT_PARALLELISM")
	if raw == "" {
		return defaultParallelism
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return defaultParallelism
	}
	return n
}

// RunFailure records one partition that failed during a run, without
// aborting the rest of the batch.
type RunFailure struct {
	QueryName    string
	PartitionKey schema.PartitionKey
	Err          error
}

// RunReport is the outcome of a single Runner call spanning one or more
// (query, partition) writes. RunID identifies the call for audit
// correlation; every PartitionWriteStats in Stats carries the same value.
type RunReport struct {
	RunID    string
	Stats    []PartitionWriteStats
	Failures []RunFailure
}

// Runner orchestrates partition writes across a fixed query set, bounding
// concurrency so a large backfill cannot overwhelm the warehouse with
// simultaneous queries.
type Runner struct {
	writer      *PartitionWriter
	queries     []dsl.QueryDef
	queryIndex  map[string]int
	parallelism int
	logger      bqlog.Logger
}

// NewRunner builds a Runner over client and queries, reading its
// concurrency cap from BQDRIFT_PARALLELISM (default 5).
func NewRunner(client warehouse.Client, queries []dsl.QueryDef, logger bqlog.Logger) *Runner {
	index := make(map[string]int, len(queries))
	for i, q := range queries {
		index[q.Name] = i
	}
	if logger == nil {
		logger = bqlog.NewNoop()
	}
	return &Runner{
		writer:      NewPartitionWriter(client),
		queries:     queries,
		queryIndex:  index,
		parallelism: parallelismFromEnv(),
		logger:      logger,
	}
}

// WithParallelism overrides the concurrency cap, flooring at 1.
func (r *Runner) WithParallelism(n int) *Runner {
	if n < 1 {
		n = 1
	}
	r.parallelism = n
	return r
}

func (r *Runner) getQuery(name string) (dsl.QueryDef, bool) {
	i, ok := r.queryIndex[name]
	if !ok {
		return dsl.QueryDef{}, false
	}
	return r.queries[i], true
}

// RunToday runs every query's day partition for today (UTC).
func (r *Runner) RunToday(ctx context.Context) (RunReport, error) {
	return r.RunForDate(ctx, time.Now().UTC())
}

// RunForDate runs every query's day partition for the given date.
func (r *Runner) RunForDate(ctx context.Context, date time.Time) (RunReport, error) {
	return r.RunForPartition(ctx, schema.NewDay(date))
}

type writeTask struct {
	queryIdx int
	key      schema.PartitionKey
}

// RunForPartition runs every query for one partition key, bounding
// in-flight writes to r.parallelism via a buffered-channel semaphore (the
// corpus carries no worker-pool library, so this uses stdlib
// goroutines+channels directly).
func (r *Runner) RunForPartition(ctx context.Context, key schema.PartitionKey) (RunReport, error) {
	tasks := make([]writeTask, len(r.queries))
	for i := range r.queries {
		tasks[i] = writeTask{queryIdx: i, key: key}
	}
	return r.runTasks(ctx, tasks), nil
}

// RunQuery runs a single query's day partition for date.
func (r *Runner) RunQuery(ctx context.Context, queryName string, date time.Time) (PartitionWriteStats, error) {
	return r.RunQueryPartition(ctx, queryName, schema.NewDay(date))
}

// RunQueryPartition runs a single query for one partition key.
func (r *Runner) RunQueryPartition(ctx context.Context, queryName string, key schema.PartitionKey) (PartitionWriteStats, error) {
	query, ok := r.getQuery(queryName)
	if !ok {
		return PartitionWriteStats{}, &bqerr.QueryNotFoundError{Name: queryName}
	}
	stats, err := r.writer.WritePartition(ctx, query, key)
	if err != nil {
		return stats, err
	}
	stats.RunID = uuid.New().String()
	return stats, nil
}

// Backfill runs queryName's day partitions for every date in [from, to].
func (r *Runner) Backfill(ctx context.Context, queryName string, from, to time.Time) (RunReport, error) {
	return r.BackfillPartitions(ctx, queryName, schema.NewDay(from), schema.NewDay(to), 1)
}

// BackfillPartitions runs queryName for every partition from `from` to `to`
// inclusive, stepping by `stride` units of the key's own grain.
func (r *Runner) BackfillPartitions(ctx context.Context, queryName string, from, to schema.PartitionKey, stride int64) (RunReport, error) {
	queryIdx, ok := r.queryIndex[queryName]
	if !ok {
		return RunReport{}, &bqerr.QueryNotFoundError{Name: queryName}
	}
	if stride < 1 {
		stride = 1
	}

	var tasks []writeTask
	for current := from; current.LessOrEqual(to); current = current.NextBy(stride) {
		tasks = append(tasks, writeTask{queryIdx: queryIdx, key: current})
	}

	return r.runTasks(ctx, tasks), nil
}

func (r *Runner) runTasks(ctx context.Context, tasks []writeTask) RunReport {
	type outcome struct {
		stats PartitionWriteStats
		fail  *RunFailure
	}

	runID := uuid.New().String()
	results := make([]outcome, len(tasks))
	sem := make(chan struct{}, r.parallelism)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task writeTask) {
			defer wg.Done()
			defer func() { <-sem }()

			query := r.queries[task.queryIdx]
			r.logger.LogBackfillPartitionStart(query.Name, task.key.String())

			stats, err := r.writer.WritePartition(ctx, query, task.key)
			if err != nil {
				r.logger.LogBackfillPartitionFailed(query.Name, task.key.String(), err)
				results[i] = outcome{fail: &RunFailure{QueryName: query.Name, PartitionKey: task.key, Err: err}}
				return
			}
			r.logger.LogBackfillPartitionComplete(query.Name, task.key.String())
			stats.RunID = runID
			results[i] = outcome{stats: stats}
		}(i, task)
	}
	wg.Wait()

	report := RunReport{RunID: runID}
	for _, o := range results {
		if o.fail != nil {
			report.Failures = append(report.Failures, *o.fail)
			continue
		}
		report.Stats = append(report.Stats, o.stats)
	}
	return report
}

// Queries returns the runner's fixed query set.
func (r *Runner) Queries() []dsl.QueryDef {
	return r.queries
}
