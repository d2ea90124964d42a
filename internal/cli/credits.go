package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewCreditsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Read the credit ledger",
	}

	show := &cobra.Command{
		Use:   "show <student_id>",
		Short: "Show every ledger row for a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := rootOpts.open(cmd.Context(), rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer backend.Close()

			studentID := args[0]
			credits, err := backend.Credits.CreditsForStudent(cmd.Context(), studentID)
			if err != nil {
				return fmt.Errorf("failed to load credits: %w", err)
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"student_id": studentID,
					"credits":    credits,
				})
			}
			writeCreditsText(cmd.OutOrStdout(), studentID, credits)
			return nil
		},
	}

	cmd.AddCommand(show)
	return cmd
}
