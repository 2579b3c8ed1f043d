package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/vigil/internal/prompts"
	"github.com/JaimeStill/vigil/internal/vision"
)

func newDecodeCommand(opts *rootOptions) *cobra.Command {
	var stage string

	cmd := &cobra.Command{
		Use:   "decode <file|->",
		Short: "Decode a raw vision model response the way the pipeline does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			switch prompts.Stage(stage) {
			case prompts.StageClassify:
				c, err := vision.DecodeClassification(content)
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), c, func(w io.Writer) {
					fmt.Fprintf(w, "%s (%d)\n", c.Category, c.Confidence)
					for _, s := range c.SecondaryCategories {
						fmt.Fprintf(w, "  %s (%d)\n", s.Category, s.Confidence)
					}
				})
			case prompts.StageConcerns:
				cs, err := vision.DecodeConcerns(content)
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), cs, func(w io.Writer) {
					if len(cs) == 0 {
						fmt.Fprintln(w, "no concerns")
						return
					}
					for _, c := range cs {
						fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.Category, c.Severity, c.Confidence, c.Reasoning)
					}
				})
			default:
				return fmt.Errorf("invalid stage %q: must be %s or %s", stage, prompts.StageClassify, prompts.StageConcerns)
			}
		},
	}

	cmd.Flags().StringVar(&stage, "stage", string(prompts.StageClassify), "response stage (classify|concerns)")

	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
