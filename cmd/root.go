// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alexchoi/bqdrift/cmd/flags"
	"github.com/alexchoi/bqdrift/pkg/auditstore"
	"github.com/alexchoi/bqdrift/pkg/bqlog"
	"github.com/alexchoi/bqdrift/pkg/checksum"
	"github.com/alexchoi/bqdrift/pkg/dsl"
	"github.com/alexchoi/bqdrift/pkg/warehouse"
)

// Version is the bqdrift version.
var Version = "development"

func init() {
	viper.SetEnvPrefix("BQDRIFT")
	viper.AutomaticEnv()

	flags.ConnectionFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "bqdrift",
	Short:        "Detect and repair drift between declared warehouse queries and materialized partitions",
	SilenceUsage: true,
	Version:      Version,
}

// Execute runs the root command.
func Execute() error {
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(auditCmd())

	return rootCmd.Execute()
}

// loadDeclarations reads every declaration under flags.DeclarationsDir(),
// returning the resolved queries alongside the verbatim post-preprocess
// text every command that needs source-audit or checksum input shares.
func loadDeclarations(logger bqlog.Logger) ([]dsl.QueryDef, map[string]string, error) {
	loader := dsl.NewQueryLoader(logger)
	queries, text, err := loader.LoadDir(flags.DeclarationsDir())
	if err != nil {
		return nil, nil, fmt.Errorf("loading declarations from %q: %w", flags.DeclarationsDir(), err)
	}
	return queries, text, nil
}

// openAuditStore opens and initializes the Postgres audit log.
func openAuditStore(ctx context.Context) (*auditstore.Store, error) {
	store, err := auditstore.Open(ctx, flags.AuditDSN(), flags.AuditSchema())
	if err != nil {
		return nil, fmt.Errorf("connecting to audit store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing audit store: %w", err)
	}
	return store, nil
}

// openWarehouse opens the warehouse connection commands execute generated
// SQL against.
func openWarehouse(ctx context.Context) (*warehouse.DBClient, error) {
	client, err := warehouse.New(ctx, flags.WarehouseDSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to warehouse: %w", err)
	}
	return client, nil
}

// yamlChecksum hashes a declaration's verbatim post-preprocess text the same
// way pkg/drift does, so audit entries written here compare equal to what
// Detector and SourceAuditor independently recompute.
func yamlChecksum(text string) string {
	return checksum.Compute("", "", text).YAML
}
