// Package commands implements the pedster CLI surface.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pedramamini/pedster/ai"
	"github.com/pedramamini/pedster/ai/ollama"
	"github.com/pedramamini/pedster/ai/openrouter"
	"github.com/pedramamini/pedster/config"
	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/ingest/stdin"
	"github.com/pedramamini/pedster/logger"
	"github.com/pedramamini/pedster/process/llm"
)

// ProcessCmd pipes stdin through one LLM processor and prints the
// completion to stdout.
var ProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Pipe stdin through an LLM processor",
	Long: `Read content from stdin, run it through the chosen model, and print
the completion to stdout.

Examples:
  cat article.md | pedster process -m claude -p "Summarize this:"
  pbpaste | pedster process -m gpt4o -s "You are an editor" -p "Fix the grammar:"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		modelAlias, _ := cmd.Flags().GetString("model")
		prompt, _ := cmd.Flags().GetString("prompt")
		system, _ := cmd.Flags().GetString("system")

		ingestor := stdin.New(stdin.Config{Reader: cmd.InOrStdin(), Logger: logger.Logger})
		records, err := ingestor.Ingest(cmd.Context())
		if err != nil {
			if errors.Is(err, errors.ErrNoInput) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: nothing piped to stdin, nothing to process")
				os.Exit(1)
			}
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		spec, err := ai.Resolve(modelAlias)
		if err != nil {
			return err
		}
		client := chatClientFor(cfg, spec)

		body := "{content}"
		if prompt != "" {
			body = prompt + "\n\n{content}"
		}

		processor := llm.New(client, llm.Config{
			Name:     "process",
			Template: llm.Template{Body: body, System: system},
			Model:    spec.Model,
			Provider: string(spec.Provider),
			Logger:   logger.Logger,
		})

		for _, record := range records {
			result := processor.Process(cmd.Context(), record)
			if !result.Success {
				return errors.Newf("processing failed: %s", result.ErrorMessage)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Data.Content)
		}
		return nil
	},
}

func init() {
	ProcessCmd.Flags().StringP("model", "m", "gpt4o", "Model alias (gpt4o, claude, o3mini, deepseek)")
	ProcessCmd.Flags().StringP("prompt", "p", "", "Prompt prepended to the piped content")
	ProcessCmd.Flags().StringP("system", "s", "", "System message for the model")
}

// loadConfig honors the --config override, falling back to the
// discovery chain.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// chatClientFor builds the provider client for a resolved model.
func chatClientFor(cfg *config.Config, spec ai.ModelSpec) llm.Client {
	if spec.Provider == ai.ProviderOllama {
		return ollama.NewClient(ollama.Config{
			BaseURL:        cfg.Ollama.BaseURL,
			Model:          spec.Model,
			TimeoutSeconds: cfg.Ollama.TimeoutSeconds,
			Logger:         logger.Logger,
		})
	}
	return openrouter.NewClient(openrouter.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		Model:       spec.Model,
		Temperature: cfg.OpenRouter.Temperature,
		MaxTokens:   cfg.OpenRouter.MaxTokens,
		Logger:      logger.Logger,
	})
}
