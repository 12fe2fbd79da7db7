package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/reversal"
)

func newVerificationCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verification",
		Short: "Inspect and change verifications",
	}

	cmd.AddCommand(
		newVerificationCancelCmd(load),
		newVerificationTransitionCmd(load),
	)

	return cmd
}

func newVerificationCancelCmd(load appLoader) *cobra.Command {
	var accountID uint

	cmd := &cobra.Command{
		Use:   "cancel <verification-id>",
		Short: "Cancel a verification and refund its credit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "verification id")
			if err != nil {
				return err
			}
			a, err := load()
			if err != nil {
				return err
			}

			result, err := a.reversals.Cancel(cmd.Context(), reversal.CancelRequest{
				VerificationID: id,
				AccountID:      accountID,
				UserAgent:      "billingctl",
			})
			if err != nil {
				return fmt.Errorf("cancel verification %d: %w", id, err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().UintVar(&accountID, "account", 0, "owning account id")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func newVerificationTransitionCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <verification-id> <status>",
		Short: "Move a verification to in_progress, completed, failed or expired",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "verification id")
			if err != nil {
				return err
			}
			a, err := load()
			if err != nil {
				return err
			}

			v, err := a.verifications.Transition(cmd.Context(), id, args[1])
			if err != nil {
				return fmt.Errorf("transition verification %d: %w", id, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "verification %d: %s\n", v.ID, v.Status)
			return nil
		},
	}
}
