// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/alexchoi/bqdrift/pkg/bqlog"
	"github.com/alexchoi/bqdrift/pkg/dsl"
)

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Parse every declaration and print its name and version history",
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, _, err := loadDeclarations(bqlog.New())
			if err != nil {
				return err
			}

			tableData := pterm.TableData{{"QUERY", "VERSIONS", "DATASET.TABLE"}}
			for _, q := range queries {
				tableData = append(tableData, []string{
					q.Name,
					versionSummary(q),
					q.Destination.Dataset + "." + q.Destination.Table,
				})
			}

			pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
			return nil
		},
	}
}

func versionSummary(q dsl.QueryDef) string {
	labels := make([]string, 0, len(q.Versions))
	for _, v := range q.Versions {
		labels = append(labels, fmt.Sprintf("v%d@%s", v.Version, v.EffectiveFrom.Format("2006-01-02")))
	}
	return strings.Join(labels, ", ")
}
