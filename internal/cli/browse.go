package cli

import (
	"github.com/spf13/cobra"

	"wacrm/internal/tui"
)

func newBrowseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse, select and bulk-edit contacts interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(cmd.Context(), a.newController(nil), a.client)
		},
	}
}
