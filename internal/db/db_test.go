package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/apisync/internal/config"
)

func TestApplyMigrationsRunsOnce(t *testing.T) {
	conn, err := Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "migrate.db"),
	})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, ApplyMigrations(conn))
	require.NoError(t, ApplyMigrations(conn))

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM "+migrationTable+" WHERE name = '0001_init.sql'").Scan(&n))
	require.Equal(t, 1, n)
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&n))
	require.Equal(t, 0, n)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
}
