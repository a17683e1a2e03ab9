package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtimport/internal/store"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the transactions table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := validate(cfg); err != nil {
				return err
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}

			st, err := store.Open(cmd.Context(), cfg.Storage)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer st.Close()

			if err := st.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			logger.Info().Str("driver", cfg.Storage.Driver).Msg("schema ready")
			fmt.Fprintln(cmd.OutOrStdout(), "Schema ready")
			return nil
		},
	}
}
