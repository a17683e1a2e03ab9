package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtimport/internal/buildinfo"
	"github.com/cleared-dev/stmtimport/internal/config"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "stmtimport",
		Short:   "Bank statement ingestion",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", config.FileName, "configuration file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file with environment overrides")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newIngestCommand())
	rootCmd.AddCommand(newLoadCommand())
	rootCmd.AddCommand(newRejectionsCommand())
	rootCmd.AddCommand(newMigrateCommand())

	return rootCmd
}
