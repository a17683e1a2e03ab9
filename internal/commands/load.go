package commands

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtimport/internal/export"
	"github.com/cleared-dev/stmtimport/internal/ingest"
	"github.com/cleared-dev/stmtimport/internal/logging"
	"github.com/cleared-dev/stmtimport/internal/source"
	"github.com/cleared-dev/stmtimport/internal/store"
)

func newLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <rows.csv|gs://bucket/object>...",
		Short: "Store canonical rows written by ingest --dry-run",
		Long: "Load canonical row exports, typically a dry run whose tags were edited. " +
			"Rows whose id no longer matches their fields are rejected, so only tags can change.",
		Args: cobra.MinimumNArgs(1),
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

			ctx := logging.WithContext(cmd.Context(), logger)
			st, err := store.Open(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer st.Close()

			opts, err := cfg.StatementOptions()
			if err != nil {
				return err
			}
			svc := ingest.NewService(st, opts, auditor(cfg))

			var errs []error
			for _, loc := range args {
				data, err := source.Fetch(ctx, loc)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w: %v", loc, ingest.ErrTransport, err))
					continue
				}
				rows, err := export.ReadRows(bytes.NewReader(data))
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", loc, err))
					continue
				}
				res, err := svc.Load(ctx, rows)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", loc, err))
					continue
				}
				printSummary(cmd.OutOrStdout(), loc, res)
			}
			return errors.Join(errs...)
		},
	}
}
