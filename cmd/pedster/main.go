package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pedramamini/pedster/cmd/pedster/commands"
	"github.com/pedramamini/pedster/logger"
)

var rootCmd = &cobra.Command{
	Use:   "pedster",
	Short: "Pedster - personal content pipeline",
	Long: `Pedster - personal content pipeline.

Pedster pulls content from feeds, podcasts, web pages, message history,
and stdin, runs it through LLM and speech-to-text processors, and writes
the results into an Obsidian vault or back out over iMessage.

Available commands:
  process - Pipe stdin through an LLM processor
  run     - Execute one named pipeline
  daemon  - Run the scheduler until interrupted
  sources - Inspect and manage source health
  db      - Manage catalog databases
  version - Show version information

Examples:
  cat notes.txt | pedster process -m claude -p "Summarize:"
  pedster run rss-to-obsidian
  pedster sources list
  pedster daemon`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")
	rootCmd.PersistentFlags().String("config", "", "Path to pedster.toml (default: discovery chain)")

	rootCmd.AddCommand(commands.ProcessCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.SourcesCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
