package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWebhooksCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage stored Stripe webhook events",
	}

	cmd.AddCommand(newWebhooksReplayCmd(load))

	return cmd
}

func newWebhooksReplayCmd(load appLoader) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-apply webhook events whose processing failed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			a, err := load()
			if err != nil {
				return err
			}

			summary, err := a.reconciler.ReplayFailed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "attempted: %d\nsucceeded: %d\nfailed: %d\n", summary.Attempted, summary.Succeeded, summary.Failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to replay")

	return cmd
}
