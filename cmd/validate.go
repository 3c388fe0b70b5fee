// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/alexchoi/bqdrift/cmd/flags"
	"github.com/alexchoi/bqdrift/pkg/bqlog"
	"github.com/alexchoi/bqdrift/pkg/dsl"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every declaration for structural and semantic validity",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := bqlog.New()

			validator, err := dsl.NewValidator()
			if err != nil {
				return err
			}

			queries, _, err := loadDeclarations(logger)
			if err != nil {
				return err
			}

			var issues []string
			err = filepath.WalkDir(flags.DeclarationsDir(), func(p string, d os.DirEntry, walkErr error) error {
				if walkErr != nil {
					return walkErr
				}
				if d.IsDir() || filepath.Ext(p) != ".yaml" {
					return nil
				}
				content, readErr := os.ReadFile(p)
				if readErr != nil {
					return readErr
				}
				processed, procErr := dsl.NewPreprocessor().Process(string(content), filepath.Dir(p))
				if procErr != nil {
					issues = append(issues, fmt.Sprintf("%s: %s", p, procErr))
					return nil
				}
				if validateErr := validator.ValidateRaw(processed); validateErr != nil {
					issues = append(issues, fmt.Sprintf("%s: %s", p, validateErr))
				}
				return nil
			})
			if err != nil {
				return err
			}

			for _, q := range queries {
				for _, issue := range dsl.ValidateQueryDef(q) {
					issues = append(issues, fmt.Sprintf("%s: %s", q.Name, issue))
				}
			}

			if len(issues) == 0 {
				pterm.Success.Printfln("%d declaration(s) valid", len(queries))
				return nil
			}

			pterm.Error.Printfln("%d issue(s) found:", len(issues))
			for _, issue := range issues {
				pterm.Error.Printfln("  %s", issue)
			}
			return fmt.Errorf("%d validation issue(s)", len(issues))
		},
	}

	return cmd
}
