package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pedramamini/pedster/db"
	"github.com/pedramamini/pedster/logger"
	"github.com/pedramamini/pedster/pipelines"
)

// DbCmd groups catalog database operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage catalog databases",
	Long: `Manage the per-source catalog databases.

Each source family keeps its own SQLite catalog under database.dir:
rss.db, podcast.db, messages.db, and schedule.db.

Examples:
  pedster db migrate
  pedster db stats`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations to every catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		builder := pipelines.NewBuilder(cfg, logger.Logger)
		defer builder.Close()

		// Catalog opens run migrations as a side effect.
		for _, family := range db.Families() {
			if _, err := builder.Catalog(family); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: up to date\n", family)
		}
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		builder := pipelines.NewBuilder(cfg, logger.Logger)
		defer builder.Close()

		tables := map[db.Family][]string{
			db.FamilyRSS:      {"feeds", "articles"},
			db.FamilyPodcast:  {"podcasts", "episodes"},
			db.FamilyMessages: {"message_threads", "messages"},
			db.FamilySchedule: {"scheduled_jobs"},
		}

		out := cmd.OutOrStdout()
		for _, family := range db.Families() {
			conn, err := builder.Catalog(family)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s:\n", family)
			for _, table := range tables[family] {
				n, err := countRows(conn, table)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %-16s %d\n", table, n)
			}
		}
		return nil
	},
}

func countRows(conn *sql.DB, table string) (int, error) {
	var n int
	err := conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	return n, err
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}
