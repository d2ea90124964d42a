package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"placement-credit-sync/internal/excel"
	"placement-credit-sync/internal/model"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	OutPath   string
	S3Key     string
	StudentID string
}

func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the score queue (and optionally a student's ledger) to an xlsx workbook",
		Example: `  credit-cli report --out queue.xlsx
  credit-cli report --s3-key reports/queue.xlsx --student 823456789`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OutPath, "out", "", "local path of the workbook")
	cmd.Flags().StringVar(&opts.S3Key, "s3-key", "", "S3 key to upload the workbook to")
	cmd.Flags().StringVar(&opts.StudentID, "student", "", "include this student's ledger rows")
	cmd.MarkFlagsOneRequired("out", "s3-key")
	cmd.MarkFlagsMutuallyExclusive("out", "s3-key")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	backend, err := opts.open(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer backend.Close()

	if opts.S3Key != "" && backend.Storage == nil {
		return fmt.Errorf("storage.s3.bucket is not configured")
	}

	entries, err := backend.Queue.QueryAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}

	var credits []model.CreditRecord
	if opts.StudentID != "" {
		credits, err = backend.Credits.CreditsForStudent(ctx, opts.StudentID)
		if err != nil {
			return fmt.Errorf("failed to load credits: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := excel.WriteReport(&buf, entries, credits); err != nil {
		return err
	}

	dest := opts.OutPath
	if opts.S3Key != "" {
		dest = "s3://" + backend.Config.Storage.S3.Bucket + "/" + opts.S3Key
		if err := backend.Storage.Upload(ctx, opts.S3Key, &buf); err != nil {
			return fmt.Errorf("failed to upload report: %w", err)
		}
	} else if err := os.WriteFile(opts.OutPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"destination":    dest,
			"queued_entries": len(entries),
			"credit_rows":    len(credits),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s (%d queued %s, %d credit rows)\n",
		dest, len(entries), plural(len(entries), "entry", "entries"), len(credits))
	return nil
}
