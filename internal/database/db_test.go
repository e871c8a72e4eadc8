package database

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/alina-bot/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAppliesMigrations(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "alina.db")
	cfg := config.DatabaseConfig{Driver: DriverSQLite, DSN: dsn}

	db, err := Open(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"users", "messages", "payments", "reminders"} {
		var name string
		err := db.Get(&name, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	var memoryDefault string
	_, err = db.Exec(`INSERT INTO users (user_id) VALUES (1)`)
	require.NoError(t, err)
	require.NoError(t, db.Get(&memoryDefault, `SELECT memory FROM users WHERE user_id = 1`))
	assert.Equal(t, "{}", memoryDefault)

	require.NoError(t, Migrate(db, DriverSQLite, testLogger()), "second run is a no-op")
}

func TestMigrateRejectsUnknownDriver(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "alina.db")
	db, err := Open(context.Background(), config.DatabaseConfig{Driver: DriverSQLite, DSN: dsn}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Error(t, Migrate(db, "mysql", testLogger()))
}
