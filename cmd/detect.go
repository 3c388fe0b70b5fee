// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/alexchoi/bqdrift/pkg/bqlog"
	"github.com/alexchoi/bqdrift/pkg/drift"
)

func detectCmd() *cobra.Command {
	var days int
	var queryFilter string

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Classify drift between declared queries and their materialized partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := bqlog.New()

			queries, yamlText, err := loadDeclarations(logger)
			if err != nil {
				return err
			}

			store, err := openAuditStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			stored, err := store.LoadAll(ctx)
			if err != nil {
				return fmt.Errorf("loading execution history: %w", err)
			}

			now := time.Now().UTC()
			to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			from := to.AddDate(0, 0, -days)

			detector := drift.NewDetector(queries, yamlText)
			report, err := detector.Detect(stored, from, to)
			if err != nil {
				return err
			}
			report = applyUpstreamChanges(detector, stored, report)

			printDriftReport(report, queryFilter)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Number of trailing days to check for drift")
	cmd.Flags().StringVar(&queryFilter, "query", "", "Limit output to a single query name")

	return cmd
}

type stateKey struct {
	queryName string
	date      time.Time
}

// applyUpstreamChanges runs Detector.DetectUpstreamChanged as a second pass
// over every partition Detect classified as Current, reclassifying it as
// UpstreamChanged when an upstream dependency re-ran more recently than the
// timestamp this partition recorded for it.
func applyUpstreamChanges(detector *drift.Detector, stored []drift.PartitionState, report drift.Report) drift.Report {
	index := make(map[stateKey]drift.PartitionState, len(stored))
	for _, s := range stored {
		index[stateKey{s.QueryName, s.PartitionDate}] = s
	}

	for i, p := range report.Partitions {
		if p.State != drift.StateCurrent {
			continue
		}
		state, ok := index[stateKey{p.QueryName, p.PartitionDate}]
		if !ok {
			continue
		}
		if upstream, changed := detector.DetectUpstreamChanged(state, stored); changed {
			report.Partitions[i] = drift.RewriteUpstreamChanged(p, upstream)
		}
	}
	return report
}

func printDriftReport(report drift.Report, queryFilter string) {
	tableData := pterm.TableData{{"QUERY", "PARTITION", "STATE", "CAUSE"}}

	drifted := 0
	for _, p := range report.Partitions {
		if queryFilter != "" && p.QueryName != queryFilter {
			continue
		}
		if p.State.NeedsRerun() {
			drifted++
		}
		tableData = append(tableData, []string{
			p.QueryName,
			p.PartitionDate.Format("2006-01-02"),
			string(p.State),
			p.CausedBy,
		})
	}

	pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
	pterm.Info.Printfln("%d partition(s) need a rerun", drifted)
}
