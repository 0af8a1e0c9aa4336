package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"adforge/internal/progress"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Stream live progress events for a job",
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
			return followEvents(cmd, client, id)
		},
	}
	return cmd
}

// followEvents consumes the job's server-sent event stream until the job
// reaches a terminal event or the command context is canceled. Keepalive
// comment frames are skipped.
func followEvents(cmd *cobra.Command, client *apiClient, id int64) error {
	body, err := client.OpenEvents(cmd.Context(), id)
	if err != nil {
		return err
	}
	defer body.Close()

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			eventType = ""
		case strings.HasPrefix(line, ":"):
			// keepalive comment frame
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var event progress.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}
			printEvent(out, eventType, event, colorize)
			if eventType == "job_completed" || eventType == "job_failed" {
				return nil
			}
		}
	}
	if err := scanner.Err(); err != nil && cmd.Context().Err() == nil {
		return fmt.Errorf("event stream: %w", err)
	}
	return nil
}

func printEvent(out io.Writer, eventType string, event progress.Event, colorize bool) {
	ts := event.Timestamp.Local().Format("15:04:05")
	label := eventType
	if label == "" {
		label = event.Type
	}
	if colorize {
		switch label {
		case "job_completed":
			label = ansiGreen + label + ansiReset
		case "job_failed", "tool_failed", "clip_failed":
			label = ansiRed + label + ansiReset
		}
	}
	line := fmt.Sprintf("%s  %4s  %-16s", ts, formatPercent(event.Percent), label)
	if event.Step != "" {
		line += "  " + event.Step
	}
	if event.Message != "" {
		line += "  " + event.Message
	}
	fmt.Fprintln(out, line)
}
