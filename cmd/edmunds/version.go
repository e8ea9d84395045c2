package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seantiz/edmunds/internal/edmunds"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the SDK version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "edmunds version %s\n", edmunds.SDKVersion)
			return nil
		},
	}
}
