package cli

import (
	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage, pool and retention status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if a.format == FormatJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			return printStatus(cmd.OutOrStdout(), resp)
		},
	}
}
