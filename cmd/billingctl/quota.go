package main

import (
	"github.com/spf13/cobra"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/quota"
)

type quotaOutput struct {
	*quota.Decision
	Source string `json:"source,omitempty"`
}

func newQuotaCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "quota <account-id>",
		Short: "Show whether an account may create a verification",
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

			decision, err := a.evaluator.Evaluate(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quotaOutput{Decision: decision, Source: decision.SourceKind()})
		},
	}
}
