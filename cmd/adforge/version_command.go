package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const appVersion = "0.1.0"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "adforge %s (%s/%s)\n", appVersion, runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
