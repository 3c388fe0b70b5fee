// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/alexchoi/bqdrift/pkg/bqlog"
	"github.com/alexchoi/bqdrift/pkg/drift"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check declaration history for immutability violations and rewritten source",
	}

	cmd.AddCommand(auditHistoryCmd())
	cmd.AddCommand(auditSourceCmd())

	return cmd
}

func auditHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Flag duplicate, non-monotonic, or no-op version/revision history",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := bqlog.New()
			queries, _, err := loadDeclarations(logger)
			if err != nil {
				return err
			}

			checker := drift.NewImmutabilityChecker()
			total := 0
			for _, q := range queries {
				report := checker.Check(q)
				for _, v := range report.Violations {
					total++
					pterm.Warning.Printfln("%s v%d: %s (%s)", q.Name, v.Version, v.Message, v.Kind)
				}
			}

			if total == 0 {
				pterm.Success.Println("no immutability violations found")
				return nil
			}
			return fmt.Errorf("%d immutability violation(s) found", total)
		},
	}
}

func auditSourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "source",
		Short: "Flag declarations whose recorded YAML checksum no longer matches the file on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := bqlog.New()

			_, yamlText, err := loadDeclarations(logger)
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

			auditor := drift.NewSourceAuditor()
			report := auditor.Audit(yamlText, stored)

			for _, entry := range report.Entries {
				switch entry.Status {
				case drift.SourceRewritten:
					pterm.Warning.Printfln("%s: declaration rewritten since last execution (recorded %s, current %s)",
						entry.QueryName, entry.RecordedChecksum, entry.CurrentChecksum)
				case drift.SourceUnknown:
					pterm.Info.Printfln("%s: no execution history to compare against", entry.QueryName)
				}
			}

			if n := len(report.Rewritten()); n > 0 {
				return fmt.Errorf("%d declaration(s) rewritten without a new execution", n)
			}
			pterm.Success.Println("no rewritten declarations found")
			return nil
		},
	}
}
