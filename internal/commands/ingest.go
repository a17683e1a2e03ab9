package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtimport/internal/export"
	"github.com/cleared-dev/stmtimport/internal/ingest"
	"github.com/cleared-dev/stmtimport/internal/logging"
	"github.com/cleared-dev/stmtimport/internal/source"
	"github.com/cleared-dev/stmtimport/internal/store"
)

func newIngestCommand() *cobra.Command {
	var dryRun bool
	var repoDir string

	cmd := &cobra.Command{
		Use:   "ingest [file|gs://bucket/object]...",
		Short: "Ingest statement exports",
		Long: "Ingest statement exports from local files, gs:// objects, or every export " +
			"waiting in <repo>/import/ (--dir, file types from import.extensions). With --dry-run the canonical rows are " +
			"written to stdout as CSV and storage is not touched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if repoDir == "" && len(args) == 0 {
				return errors.New("nothing to ingest: pass files or --dir")
			}
			if repoDir != "" && len(args) > 0 {
				return errors.New("--dir cannot be combined with file arguments")
			}
			return runIngest(cmd, args, repoDir, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print canonical rows instead of storing them")
	cmd.Flags().StringVar(&repoDir, "dir", "", "ingest every export under <dir>/import/ and move it to import/processed/")

	return cmd
}

type ingestJob struct {
	location string
	name     string // set for import-directory files
}

func runIngest(cmd *cobra.Command, args []string, repoDir string, dryRun bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if dryRun {
		cfg.Storage.Driver = store.DriverMemory
	}
	if repoDir != "" {
		absDir, err := filepath.Abs(repoDir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		repoDir = absDir
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

	jobs, err := collectJobs(args, repoDir, cfg.Import.Extensions)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No statement files to ingest")
		return nil
	}

	ctx := logging.WithContext(cmd.Context(), logger)
	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.Close()

	svc := ingest.NewService(st, opts, auditor(cfg))
	if dryRun {
		return dryRunJobs(ctx, cmd.OutOrStdout(), svc, jobs, logger)
	}

	var errs []error
	for _, job := range jobs {
		res, err := ingestOne(ctx, svc, job)
		if err != nil {
			logger.Error().Err(err).Str("file", job.location).Msg("ingest failed")
			errs = append(errs, fmt.Errorf("%s: %w", job.location, err))
			continue
		}
		printSummary(cmd.OutOrStdout(), job.location, res)

		if job.name != "" {
			dst, err := source.MarkProcessed(repoDir, job.name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			logger.Debug().Str("file", job.name).Str("moved_to", dst).Msg("marked processed")
		}
	}
	return errors.Join(errs...)
}

func collectJobs(args []string, repoDir string, exts []string) ([]ingestJob, error) {
	if repoDir == "" {
		jobs := make([]ingestJob, len(args))
		for i, a := range args {
			jobs[i] = ingestJob{location: a}
		}
		return jobs, nil
	}
	files, err := source.Scan(repoDir, exts)
	if err != nil {
		return nil, err
	}
	jobs := make([]ingestJob, len(files))
	for i, f := range files {
		jobs[i] = ingestJob{location: f.Path, name: f.Name}
	}
	return jobs, nil
}

func ingestOne(ctx context.Context, svc *ingest.Service, job ingestJob) (*ingest.BatchResult, error) {
	payload, err := source.Fetch(ctx, job.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ingest.ErrTransport, err)
	}
	return svc.Ingest(ctx, payload)
}

// dryRunJobs writes the canonical rows of every job as one CSV document.
// Rejections are logged, nothing is stored or moved.
func dryRunJobs(ctx context.Context, w io.Writer, svc *ingest.Service, jobs []ingestJob, logger zerolog.Logger) error {
	var rows []store.Row
	var errs []error
	for _, job := range jobs {
		payload, err := source.Fetch(ctx, job.location)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w: %v", job.location, ingest.ErrTransport, err))
			continue
		}
		res, err := svc.Assemble(ctx, payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.location, err))
			continue
		}
		logger.Info().
			Str("file", job.location).
			Str("dialect", res.Dialect).
			Int("accepted", res.Accepted).
			Int("rejected", res.Rejected).
			Msg("dry run")
		rows = append(rows, res.Rows...)
	}
	if err := export.WriteRows(w, rows); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func printSummary(w io.Writer, location string, res *ingest.BatchResult) {
	fmt.Fprintf(w, "%s: dialect=%s rows=%d accepted=%d rejected=%d duplicates=%d upserted=%d\n",
		location, res.Dialect, res.RowsTotal, res.Accepted, res.Rejected, res.Duplicates, res.Upserted)
	for _, r := range res.Rejections {
		fmt.Fprintf(w, "  line %d: %s\n", r.Line, r.Reason)
	}
}
