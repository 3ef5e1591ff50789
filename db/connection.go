package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/sym"
)

// SQLiteBusyTimeoutMS is how long a writer waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with WAL, foreign keys
// and a busy timeout. If logger is provided, logs database operations.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "symbol", sym.DB)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", SQLiteBusyTimeoutMS),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"symbol", sym.DB,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and applies every pending migration.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", path)
	}

	return db, nil
}
