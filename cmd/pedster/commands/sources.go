package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pedramamini/pedster/db"
	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/ingest/podcast"
	"github.com/pedramamini/pedster/ingest/rss"
	"github.com/pedramamini/pedster/logger"
	"github.com/pedramamini/pedster/pipelines"
)

// SourcesCmd groups source health operations.
var SourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and manage source health",
	Long: `List subscribed sources with their health state, and clear or set
the sticky auto-mute.

A source mutes itself after 5 consecutive fetch errors and stays muted
until unmuted here.

Examples:
  pedster sources list
  pedster sources mute rss https://example.com/feed.xml --reason "dead feed"
  pedster sources unmute podcast https://example.com/podcast.xml`,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources and their health",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		builder := pipelines.NewBuilder(cfg, logger.Logger)
		defer builder.Close()

		out := cmd.OutOrStdout()

		rssConn, err := builder.Catalog(db.FamilyRSS)
		if err != nil {
			return err
		}
		feeds, err := rss.NewStore(rssConn).ListFeeds(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "RSS feeds (%d):\n", len(feeds))
		for _, f := range feeds {
			fmt.Fprintf(out, "  %s%s\n", f.URL, healthSuffix(f.Muted, f.MutedReason, f.ErrorCount, f.LastChecked))
		}

		podConn, err := builder.Catalog(db.FamilyPodcast)
		if err != nil {
			return err
		}
		pods, err := podcast.NewStore(podConn).ListPodcasts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Podcasts (%d):\n", len(pods))
		for _, p := range pods {
			fmt.Fprintf(out, "  %s%s\n", p.FeedURL, healthSuffix(p.Muted, p.MutedReason, p.ErrorCount, p.LastChecked))
		}
		return nil
	},
}

var sourcesMuteCmd = &cobra.Command{
	Use:   "mute <rss|podcast> <url>",
	Short: "Mute a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		reason, _ := cmd.Flags().GetString("reason")
		if reason == "" {
			reason = "muted manually"
		}
		return withSource(cmd, args[0], func(s sourceStore) error {
			if err := s.Mute(cmd.Context(), args[1], reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Muted %s\n", args[1])
			return nil
		})
	},
}

var sourcesUnmuteCmd = &cobra.Command{
	Use:   "unmute <rss|podcast> <url>",
	Short: "Unmute a source and reset its error counters",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return withSource(cmd, args[0], func(s sourceStore) error {
			if err := s.Unmute(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unmuted %s\n", args[1])
			return nil
		})
	},
}

func init() {
	sourcesMuteCmd.Flags().String("reason", "", "Reason recorded with the mute")
	SourcesCmd.AddCommand(sourcesListCmd)
	SourcesCmd.AddCommand(sourcesMuteCmd)
	SourcesCmd.AddCommand(sourcesUnmuteCmd)
}

// sourceStore is the mute surface shared by the feed-backed catalogs.
type sourceStore interface {
	Mute(ctx context.Context, url, reason string) error
	Unmute(ctx context.Context, url string) error
}

func withSource(cmd *cobra.Command, family string, fn func(sourceStore) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	builder := pipelines.NewBuilder(cfg, logger.Logger)
	defer builder.Close()

	switch family {
	case "rss":
		conn, err := builder.Catalog(db.FamilyRSS)
		if err != nil {
			return err
		}
		return fn(rss.NewStore(conn))
	case "podcast":
		conn, err := builder.Catalog(db.FamilyPodcast)
		if err != nil {
			return err
		}
		return fn(podcast.NewStore(conn))
	default:
		return errors.Newf("unknown source family %q (rss or podcast)", family)
	}
}

func healthSuffix(muted bool, reason string, errorCount int, lastChecked *time.Time) string {
	suffix := ""
	if errorCount > 0 {
		suffix += fmt.Sprintf("  errors=%d", errorCount)
	}
	if lastChecked != nil {
		suffix += fmt.Sprintf("  checked=%s", lastChecked.Format("2006-01-02 15:04"))
	}
	if muted {
		suffix += fmt.Sprintf("  MUTED (%s)", reason)
	}
	return suffix
}
