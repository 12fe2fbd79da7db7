package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
)

func newAccountCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	cmd.AddCommand(
		newAccountCreateCmd(load),
		newAccountRotateKeyCmd(load),
		newAccountListCmd(load),
	)

	return cmd
}

func newAccountCreateCmd(load appLoader) *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account and print its API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}

			account := &models.Account{Email: email, Name: name}
			rawKey, err := account.IssueAPIKey()
			if err != nil {
				return err
			}
			if err := a.accounts.Create(cmd.Context(), account); err != nil {
				return fmt.Errorf("create account: %w", err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "account: %d\n", account.ID)
			_, _ = fmt.Fprintf(out, "email: %s\n", account.Email)
			_, _ = fmt.Fprintf(out, "api key: %s\n", rawKey)
			_, _ = fmt.Fprintln(out, "The API key is shown only once.")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAccountRotateKeyCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <account-id>",
		Short: "Replace an account's API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "account id")
			if err != nil {
				return err
			}
			a, err := load()
			if err != nil {
				return err
			}

			rawKey, err := a.accounts.RotateAPIKey(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("rotate key for account %d: %w", id, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "api key: %s\n", rawKey)
			return nil
		},
	}
}

func newAccountListCmd(load appLoader) *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}

			accounts, err := a.accounts.List(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}
			for _, account := range accounts {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", account.ID, account.Email, account.APIKeyPrefix, account.StripeCustomerID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	return cmd
}
