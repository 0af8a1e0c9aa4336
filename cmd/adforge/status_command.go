package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.DaemonStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printField(out, "Daemon", fmt.Sprintf("running (pid %d)", status.PID))
			printField(out, "API", ctx.apiAddress())
			printField(out, "Agent driver", yesNo(status.AgentEnabled))
			printField(out, "Jobs database", status.JobsDBPath)
			printField(out, "Lock file", status.LockFilePath)

			if len(status.JobCounts) == 0 {
				fmt.Fprintln(out, "  Queue is empty")
				return nil
			}
			names := make([]string, 0, len(status.JobCounts))
			for name := range status.JobCounts {
				names = append(names, name)
			}
			sort.Strings(names)
			colorize := shouldColorize(out)
			rows := make([]table.Row, 0, len(names))
			for _, name := range names {
				rows = append(rows, table.Row{
					paintStatus(name, colorize),
					strconv.Itoa(status.JobCounts[name]),
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(table.Row{"Status", "Jobs"}, rows, 2))
			return nil
		},
	}
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
