package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiqai/transcribe-client/internal/observability"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), observability.Version)
			return nil
		},
	}
}
