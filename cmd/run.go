// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/alexchoi/bqdrift/cmd/flags"
	"github.com/alexchoi/bqdrift/pkg/auditstore"
	"github.com/alexchoi/bqdrift/pkg/bqlog"
	"github.com/alexchoi/bqdrift/pkg/drift"
	"github.com/alexchoi/bqdrift/pkg/executor"
)

func runCmd() *cobra.Command {
	var date string
	var queryName string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute today's (or a given day's) partition for one or every declared query",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := bqlog.New()

			partitionDate := time.Now().UTC()
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("parsing --date: %w", err)
				}
				partitionDate = parsed
			}

			queries, yamlText, err := loadDeclarations(logger)
			if err != nil {
				return err
			}

			wh, err := openWarehouse(ctx)
			if err != nil {
				return err
			}
			defer wh.Close()

			store, err := openAuditStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runner := executor.NewRunner(wh, queries, logger).WithParallelism(flags.Parallelism())

			var report executor.RunReport
			if queryName != "" {
				stats, err := runner.RunQuery(ctx, queryName, partitionDate)
				if err != nil {
					return err
				}
				report.RunID = stats.RunID
				report.Stats = append(report.Stats, stats)
			} else {
				report, err = runner.RunForDate(ctx, partitionDate)
				if err != nil {
					return err
				}
			}

			if err := recordReport(ctx, store, report, yamlText); err != nil {
				return fmt.Errorf("recording run to audit log: %w", err)
			}

			printRunReport(report)
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d partition(s) failed", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Partition date to run, YYYY-MM-DD (defaults to today, UTC)")
	cmd.Flags().StringVar(&queryName, "query", "", "Run a single query by name instead of every declared query")

	return cmd
}

// recordReport appends one audit entry per successful write and one per
// failure, so a failed partition still shows up in `bqdrift detect` as
// StateFailed instead of silently vanishing from history.
func recordReport(ctx context.Context, store *auditstore.Store, report executor.RunReport, yamlText map[string]string) error {
	for _, s := range report.Stats {
		state := drift.PartitionState{
			QueryName:      s.QueryName,
			PartitionDate:  s.PartitionKey.ToNaiveDate(),
			Version:        s.Version,
			SQLRevision:    s.SQLRevision,
			EffectiveFrom:  s.EffectiveFrom,
			SQLChecksum:    s.SQLChecksum,
			SchemaChecksum: s.SchemaChecksum,
			YAMLChecksum:   yamlChecksum(yamlText[s.QueryName]),
			ExecutedSQLB64: s.ExecutedSQLB64,
			ExecutedAt:     time.Now().UTC(),
			Status:         drift.StatusSuccess,
		}
		if err := store.RecordRun(ctx, state); err != nil {
			return err
		}
	}

	for _, f := range report.Failures {
		state := drift.PartitionState{
			QueryName:     f.QueryName,
			PartitionDate: f.PartitionKey.ToNaiveDate(),
			YAMLChecksum:  yamlChecksum(yamlText[f.QueryName]),
			ExecutedAt:    time.Now().UTC(),
			Status:        drift.StatusFailed,
		}
		if err := store.RecordRun(ctx, state); err != nil {
			return err
		}
	}

	return nil
}

func printRunReport(report executor.RunReport) {
	pterm.Success.Printfln("run %s: %d partition(s) written", report.RunID, len(report.Stats))
	if len(report.Failures) == 0 {
		return
	}
	pterm.Error.Printfln("%d partition(s) failed:", len(report.Failures))
	for _, f := range report.Failures {
		pterm.Error.Printfln("  %s %s: %v", f.QueryName, f.PartitionKey.String(), f.Err)
	}
}
