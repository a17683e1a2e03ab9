package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtimport/internal/api"
	"github.com/cleared-dev/stmtimport/internal/buildinfo"
	"github.com/cleared-dev/stmtimport/internal/ingest"
	"github.com/cleared-dev/stmtimport/internal/store"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept statement uploads over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
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
	opts, err := cfg.StatementOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.Close()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	svc := ingest.NewService(st, opts, auditor(cfg))
	engine := api.NewEngine(api.NewActions(svc, cfg.Server.MaxBodyBytes, logger))

	logger.Info().
		Str("version", buildinfo.String()).
		Str("driver", cfg.Storage.Driver).
		Int("preamble_lines", opts.PreambleLines).
		Msg("statement import server starting")
	return api.Serve(ctx, cfg.ListenAddr(), engine, logger)
}
