package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/sym"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

// Migrate runs all pending migrations.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	entries, err := migrations.ReadDir("sqlite/migrations")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	// 000_create_schema_migrations.sql sorts first
	var migrationFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	applied := 0
	for _, filename := range migrationFiles {
		version := strings.Split(filename, "_")[0]

		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
		if err != nil {
			if IsDatabaseClosed(err) {
				return errors.Wrap(err, "check migration state")
			}
			// Table doesn't exist yet - this must be migration 000
			if version != "000" {
				return errors.Newf("schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if exists {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)", "migration", filename)
			}
			continue
		}

		sqlBytes, err := migrations.ReadFile(path.Join("sqlite/migrations", filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		if logger != nil {
			logger.Infow("Applying migration", "migration", filename, "version", version)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"symbol", sym.DB,
			"total_migrations", len(migrationFiles),
			"applied", applied,
		)
	}

	return nil
}
