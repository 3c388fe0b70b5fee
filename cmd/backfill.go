// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/alexchoi/bqdrift/cmd/flags"
	"github.com/alexchoi/bqdrift/pkg/bqlog"
	"github.com/alexchoi/bqdrift/pkg/executor"
)

func backfillCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "backfill <query>",
		Short: "Re-run a query's day partitions across a date range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryName := args[0]
			ctx := cmd.Context()
			logger := bqlog.New()

			fromDate, err := time.Parse("2006-01-02", from)
			if err != nil {
				return fmt.Errorf("parsing --from: %w", err)
			}
			toDate, err := time.Parse("2006-01-02", to)
			if err != nil {
				return fmt.Errorf("parsing --to: %w", err)
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

			numDays := int(toDate.Sub(fromDate).Hours()/24) + 1
			logger.LogBackfillStart(queryName, numDays)

			sp, _ := pterm.DefaultSpinner.WithText(fmt.Sprintf("Backfilling %s...", queryName)).Start()

			report, err := runner.Backfill(ctx, queryName, fromDate, toDate)
			if err != nil {
				sp.Fail(err.Error())
				return err
			}

			if err := recordReport(ctx, store, report, yamlText); err != nil {
				sp.Fail(err.Error())
				return fmt.Errorf("recording backfill to audit log: %w", err)
			}

			logger.LogBackfillComplete(queryName, len(report.Stats), len(report.Failures))
			sp.Success(fmt.Sprintf("%d partition(s) written, %d failed", len(report.Stats), len(report.Failures)))

			if len(report.Failures) > 0 {
				return fmt.Errorf("%d partition(s) failed", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First partition date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&to, "to", "", "Last partition date, YYYY-MM-DD, inclusive (required)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")

	return cmd
}
