package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtimport/internal/audit"
	"github.com/cleared-dev/stmtimport/internal/config"
	"github.com/cleared-dev/stmtimport/internal/ingest"
	"github.com/cleared-dev/stmtimport/internal/logging"
)

// loadConfig reads the --config file, falling back to defaults when the
// flag was left at its default and the file is absent, then applies the
// dotenv file and the environment. A relative audit path in a config file
// is resolved against the file's directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	case err != nil:
		return nil, err
	case cfg.Audit.Path != "" && !filepath.IsAbs(cfg.Audit.Path):
		cfg.Audit.Path = filepath.Join(filepath.Dir(path), cfg.Audit.Path)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger builds the logger from cfg and installs it globally.
func setupLogger(cfg *config.Config) (zerolog.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return zerolog.Nop(), err
	}
	logging.SetGlobal(logger)
	return logger, nil
}

// auditor returns the configured audit log, or nil when disabled.
func auditor(cfg *config.Config) ingest.Auditor {
	if cfg.Audit.Path == "" {
		return nil
	}
	return audit.NewLog(cfg.Audit.Path)
}

func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	return nil
}
