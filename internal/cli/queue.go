package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"placement-credit-sync/internal/model"
	"placement-credit-sync/internal/sync"
)

// QueueOptions holds flags for the queue subcommands.
type QueueOptions struct {
	*RootOptions
	StudentKey int64
	Limit      int
}

func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay scores waiting for the records system",
	}

	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueReplayCommand(rootOpts))
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued scores",
		Example: `  credit-cli queue list
  credit-cli queue list --student 812345678 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := opts.open(cmd.Context(), opts.ConfigPath)
			if err != nil {
				return err
			}
			defer backend.Close()

			var entries []model.ScoreQueueEntry
			if opts.StudentKey != 0 {
				entries, err = backend.Sync.ListQueuedForStudent(cmd.Context(), opts.StudentKey)
			} else {
				entries, err = backend.Queue.QueryAll(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("failed to list queue: %w", err)
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), model.QueueResponse{
					StudentKey: opts.StudentKey,
					Count:      len(entries),
					Entries:    entries,
				})
			}
			writeQueueText(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.StudentKey, "student", 0, "only list scores for this student key")
	return cmd
}

func newQueueReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Resubmit queued scores to the records system",
		Long: `Resubmit queued scores, oldest first. Each score is removed from the queue
only after the records system accepts it. The pass stops as soon as the
records system looks unavailable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := opts.open(cmd.Context(), opts.ConfigPath)
			if err != nil {
				return err
			}
			defer backend.Close()

			var stats sync.ReplayStats
			if opts.StudentKey != 0 {
				stats, err = backend.Sync.ReplayStudent(cmd.Context(), opts.StudentKey)
			} else {
				limit := opts.Limit
				if limit <= 0 {
					limit = backend.Config.Workers.Replay.BatchSize
				}
				stats, err = backend.Sync.ReplayPending(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("failed to replay queue: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, stats)
			}
			fmt.Fprintf(out, "Delivered %d of %d queued %s (%d failed)\n",
				stats.Delivered, stats.Attempted, plural(stats.Attempted, "entry", "entries"), stats.Failed)
			if stats.Rejected > 0 {
				fmt.Fprintf(out, "%d rejected by the records system and left queued\n", stats.Rejected)
			}
			if stats.Halted {
				fmt.Fprintln(out, "Replay halted: records system unavailable")
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.StudentKey, "student", 0, "only replay scores for this student key")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries to replay (default workers.replay.batch_size)")
	return cmd
}
