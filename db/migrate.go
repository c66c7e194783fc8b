package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/errors"
)

//go:embed sqlite/migrations
var migrations embed.FS

// Family names a migration set. Each source family owns its own catalog
// database and is the sole writer to it, so migrations are grouped per
// family rather than applied as one global schema.
type Family string

const (
	FamilyRSS      Family = "rss"
	FamilyPodcast  Family = "podcast"
	FamilyMessages Family = "messages"
	FamilySchedule Family = "schedule"
)

// Families lists every catalog family in a stable order.
func Families() []Family {
	return []Family{FamilyRSS, FamilyPodcast, FamilyMessages, FamilySchedule}
}

// Migrate runs all pending migrations for the given family.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, family Family, logger *zap.SugaredLogger) error {
	dir := path.Join("sqlite/migrations", string(family))
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read migrations for family %s", family)
	}

	// Sort migrations (000_create_schema_migrations.sql runs first)
	var migrationFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		version := strings.Split(filename, "_")[0]

		// Check if already applied (schema_migrations created by 000)
		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
		if err != nil {
			// Table doesn't exist yet - this must be migration 000
			if version != "000" {
				return errors.Newf("schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if exists {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)",
					"migration", filename,
					"version", version,
				)
			}
			continue
		}

		sqlBytes, err := migrations.ReadFile(path.Join(dir, filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		if logger != nil {
			logger.Infow("Applying migration",
				"family", family,
				"migration", filename,
				"version", version,
			)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}

		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}

		// Record migration (000 creates the table, then records itself)
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
	}

	if logger != nil {
		logger.Debugw("Migrations complete",
			"family", family,
			"total_migrations", len(migrationFiles),
		)
	}

	return nil
}
