package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var scriptText string
	var imagePath string
	var owner string
	var character string
	var voice string
	var aspect string
	var driver string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit [script-file]",
		Short: "Submit a new advertisement job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script := strings.TrimSpace(scriptText)
			if len(args) == 1 {
				if script != "" {
					return errors.New("pass either a script file or --script, not both")
				}
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read script file: %w", err)
				}
				script = strings.TrimSpace(string(data))
			}
			if script == "" {
				return errors.New("a script is required (file argument or --script)")
			}
			if strings.TrimSpace(imagePath) == "" {
				return errors.New("--image is required")
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.SubmitJob(cmd.Context(), submitParams{
				Script:        script,
				ImagePath:     imagePath,
				Owner:         owner,
				CharacterName: character,
				Voice:         voice,
				AspectRatio:   aspect,
				Driver:        driver,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted job #%d (driver: %s)\n", job.ID, job.Driver)
			if !watch {
				fmt.Fprintf(out, "Follow progress with `adforge watch %d`\n", job.ID)
				return nil
			}
			return followEvents(cmd, client, job.ID)
		},
	}

	cmd.Flags().StringVar(&scriptText, "script", "", "Inline advertisement script")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Reference image for the main character")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner label recorded on the job")
	cmd.Flags().StringVar(&character, "character", "", "Name of the main character")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice preset for speech synthesis")
	cmd.Flags().StringVar(&aspect, "aspect", "", "Aspect ratio for generated clips (e.g. 9:16)")
	cmd.Flags().StringVar(&driver, "driver", "", "Job driver: pipeline or agent (default chosen by the daemon)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream progress events after submitting")
	return cmd
}
