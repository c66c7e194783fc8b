package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pedramamini/pedster/logger"
	"github.com/pedramamini/pedster/pipelines"
)

// RunCmd executes one named pipeline to completion.
var RunCmd = &cobra.Command{
	Use:   "run <pipeline>",
	Short: "Execute one named pipeline",
	Long: fmt.Sprintf(`Run one pipeline step: ingest, process, and write.

Known pipelines: %s

Examples:
  pedster run rss-to-obsidian
  pedster run web-to-obsidian --url https://example.com/post
  pedster run rss-to-obsidian --model claude`, strings.Join(pipelines.Names(), ", ")),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		model, _ := cmd.Flags().GetString("model")
		prompt, _ := cmd.Flags().GetString("prompt")
		urls, _ := cmd.Flags().GetStringSlice("url")

		payload, err := json.Marshal(pipelines.Payload{Model: model, Prompt: prompt, URLs: urls})
		if err != nil {
			return err
		}

		builder := pipelines.NewBuilder(cfg, logger.Logger)
		defer builder.Close()

		return builder.Run(cmd.Context(), args[0], payload)
	},
}

func init() {
	RunCmd.Flags().StringP("model", "m", "", "Model alias override for LLM stages")
	RunCmd.Flags().StringP("prompt", "p", "", "Prompt template override for LLM stages")
	RunCmd.Flags().StringSlice("url", nil, "Page URL for the web pipeline (repeatable)")
}
