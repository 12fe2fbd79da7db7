package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

func newRootCmd(wire func() (*app, error)) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operate accounts, verifications and billing state",
		Long:          "billingctl runs administrative operations directly against the billing database.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Services are wired on first use so --help works without a database.
	var cached *app
	load := func() (*app, error) {
		if cached != nil {
			return cached, nil
		}
		a, err := wire()
		if err != nil {
			return nil, err
		}
		cached = a
		return a, nil
	}

	rootCmd.AddCommand(
		newAccountCmd(load),
		newQuotaCmd(load),
		newVerificationCmd(load),
		newWebhooksCmd(load),
	)

	return rootCmd
}

type appLoader func() (*app, error)

func parseID(raw, what string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return uint(id), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
