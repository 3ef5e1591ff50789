package db

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("creates every table", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{
			"schema_migrations",
			"notification_types",
			"notification_messages",
			"user_notifications",
			"notification_callback_timers",
			"user_notifications_archive",
		} {
			var n int
			err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "table %s should exist", table)
		}
	})

	t.Run("wraps migration errors with context", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		// A table the first real migration tries to create
		_, err = db.Exec("CREATE TABLE schema_migrations (version TEXT PRIMARY KEY, applied_at TEXT)")
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO schema_migrations (version) VALUES ('000')")
		require.NoError(t, err)
		_, err = db.Exec("CREATE TABLE notification_types (name TEXT)")
		require.NoError(t, err)
		db.Close()

		db, err = OpenWithMigrations(dbPath, nil)
		require.Error(t, err)
		assert.Nil(t, db)

		detailed := fmt.Sprintf("%+v", err)
		assert.Contains(t, detailed, "connection.go", "error should carry a stack trace")
		assert.Contains(t, err.Error(), "001_create_notifications.sql")
	})
}

func TestMigrate(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil))

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, 4, count)
	})

	t.Run("errors on closed database", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(db, nil)
		require.Error(t, err)
		assert.True(t, IsDatabaseClosed(err))
	})

	t.Run("cascades user rows when a message is deleted", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "fk.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO notification_types (name, renderer) VALUES ('t', 'r')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO notification_messages (id, msg_type, created_at, modified_at) VALUES ('m1', 't', 'x', 'x')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO user_notifications (id, user_id, msg_id, created_at, modified_at) VALUES ('u1', 1, 'm1', 'x', 'x')`)
		require.NoError(t, err)

		_, err = db.Exec(`DELETE FROM notification_messages WHERE id = 'm1'`)
		require.NoError(t, err)

		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM user_notifications`).Scan(&n))
		assert.Zero(t, n)
	})
}
