package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pedramamini/pedster/db"
	"github.com/pedramamini/pedster/logger"
	"github.com/pedramamini/pedster/pipelines"
	"github.com/pedramamini/pedster/schedule"
)

// DaemonCmd runs the scheduler loop until interrupted.
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduler until interrupted",
	Long: `Start the pedster daemon: open the catalogs, seed the default
triggers on first run, and tick the scheduler until SIGINT or SIGTERM.

Default triggers on a fresh install:
  rss-to-obsidian      every hour
  messages-to-reply    every 10 minutes
  podcast-to-obsidian  daily at 08:00`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		builder := pipelines.NewBuilder(cfg, logger.Logger)
		defer builder.Close()

		conn, err := builder.Catalog(db.FamilySchedule)
		if err != nil {
			return err
		}
		store := schedule.NewStore(conn)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := schedule.SeedDefaults(ctx, store, logger.Logger); err != nil {
			return err
		}

		ticker := schedule.NewTicker(ctx, store, builder, schedule.TickerConfig{
			Interval: time.Duration(cfg.Schedule.TickerIntervalSeconds) * time.Second,
		}, logger.Logger)

		ticker.Start()
		<-ctx.Done()
		logger.Infow("Shutting down")
		ticker.Stop()
		return nil
	},
}
