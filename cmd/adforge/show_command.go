package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Display one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, job)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintf(out, "Job #%d\n", job.ID)
			printField(out, "Status", paintStatus(job.Status, colorize))
			printField(out, "Driver", job.Driver)
			printField(out, "Progress", fmt.Sprintf("%s %s", formatPercent(job.ProgressPercent), job.ProgressStep))
			if job.ProgressMessage != "" {
				printField(out, "Message", job.ProgressMessage)
			}
			if job.Owner != "" {
				printField(out, "Owner", job.Owner)
			}
			if job.CharacterName != "" {
				printField(out, "Character", job.CharacterName)
			}
			if job.AspectRatio != "" {
				printField(out, "Aspect ratio", job.AspectRatio)
			}
			if job.FinalFile != "" {
				printField(out, "Final file", job.FinalFile)
			}
			if job.AssetID != "" {
				printField(out, "Asset ID", job.AssetID)
			}
			if job.ErrorMessage != "" {
				printField(out, "Error", paintStatus("failed", colorize)+": "+job.ErrorMessage)
			}
			printField(out, "Created", job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			printField(out, "Updated", job.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

			if len(job.Clips) == 0 {
				return nil
			}
			rows := make([]table.Row, 0, len(job.Clips))
			for _, clip := range job.Clips {
				verified := "no"
				if clip.Verified {
					verified = "yes"
				}
				rows = append(rows, table.Row{
					strconv.Itoa(clip.Index),
					paintStatus(clip.Status, colorize),
					fmt.Sprintf("%.0fs", clip.DurationSec),
					strconv.Itoa(clip.RetryCount),
					verified,
					fmt.Sprintf("%.2f", clip.Confidence),
					truncate(clip.Prompt, 56),
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				table.Row{"Clip", "Status", "Length", "Retries", "Verified", "Confidence", "Prompt"},
				rows,
				1, 3, 4, 6,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of formatted text")
	return cmd
}

func printField(out io.Writer, label, value string) {
	fmt.Fprintf(out, "  %-14s %s\n", label+":", value)
}
