package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtimport/internal/audit"
)

func newRejectionsCommand() *cobra.Command {
	var uploadID string

	cmd := &cobra.Command{
		Use:   "rejections",
		Short: "List rows rejected by earlier uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Audit.Path == "" {
				return errors.New("the rejection audit log is disabled (audit.path is empty)")
			}

			entries, err := audit.NewLog(cfg.Audit.Path).Read()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			n := 0
			for _, e := range entries {
				if uploadID != "" && e.UploadID != uploadID {
					continue
				}
				field := e.Field
				if field == "" {
					field = "-"
				}
				fmt.Fprintf(w, "%s  %s  line %d  %s  %s\n",
					e.Timestamp.Format(time.RFC3339), e.UploadID, e.Line, field, e.Reason)
				n++
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rejected rows")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&uploadID, "upload", "", "only show rejections of this upload ID")

	return cmd
}
