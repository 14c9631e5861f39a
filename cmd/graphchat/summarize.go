package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/systemshift/graphchat/internal/llm"
	"github.com/systemshift/graphchat/internal/summarize"
)

var summarizeMaxRows int

var summarizeCmd = &cobra.Command{
	Use:   "summarize <file.csv>",
	Short: "Summarize threat data from a CSV and suggest mitigations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		client, err := llm.New(llmOptions(cfg.LLM))
		if err != nil {
			return err
		}
		gateway := llm.NewGuarded(client, llm.BreakerConfig{
			MaxFailures: cfg.LLM.BreakerMaxFailures,
			Cooldown:    cfg.LLM.BreakerCooldown,
		}, nil, logger)

		report, err := summarize.New(gateway, summarizeMaxRows, logger).Run(cmd.Context(), f)
		if err != nil {
			return err
		}

		out := report.Markdown()
		if !plainOutput {
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err == nil {
				if rendered, err := r.Render(out); err == nil {
					out = rendered
				}
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().IntVar(&summarizeMaxRows, "max-rows", summarize.DefaultMaxRows, "maximum CSV rows sent to the model")
	summarizeCmd.Flags().BoolVar(&plainOutput, "plain", false, "disable markdown rendering")
}
