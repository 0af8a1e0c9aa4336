package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List advertisement jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.ListJobs(cmd.Context(), statuses)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, jobs)
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs found")
				return nil
			}

			colorize := shouldColorize(out)
			rows := make([]table.Row, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, table.Row{
					strconv.FormatInt(job.ID, 10),
					paintStatus(job.Status, colorize),
					job.Driver,
					formatPercent(job.ProgressPercent),
					truncate(job.ProgressMessage, 48),
					job.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, renderTable(
				table.Row{"ID", "Status", "Driver", "Progress", "Message", "Updated"},
				rows,
				1, 4,
			))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
