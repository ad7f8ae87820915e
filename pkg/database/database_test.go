package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Driver: DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(Config{Driver: "mysql"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{
			name:     "postgres defaults sslmode",
			cfg:      Config{Host: "db", Port: 5432, User: "rcp", Password: "pw", Name: "plane"},
			expected: "host=db port=5432 user=rcp password=pw dbname=plane sslmode=disable",
		},
		{
			name:     "sqlite file",
			cfg:      Config{Driver: DriverSQLite, Path: "/tmp/rcp.db"},
			expected: "file:/tmp/rcp.db?_busy_timeout=5000&_foreign_keys=on",
		},
		{
			name:     "sqlite memory",
			cfg:      Config{Driver: DriverSQLite},
			expected: "file::memory:?_busy_timeout=5000&_foreign_keys=on",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.DSN())
		})
	}
}

func TestMigrator_CreatesTablesOnce(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	m := NewMigrator(db)

	require.NoError(t, m.Run(ctx))
	require.NoError(t, m.Run(ctx), "second run is a no-op")

	for _, table := range []string{"scaling_decisions", "metric_samples", "control_events", "throttle_counters", "schema_migrations"} {
		exists, err := db.TableExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	var applied int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestWithTransaction_RollsBack(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	require.NoError(t, NewMigrator(db).Run(ctx))

	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO throttle_counters (counter_key, value, expires_at_ms) VALUES ('k', 1, 0)`); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM throttle_counters`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestVersion(t *testing.T) {
	v, err := openMemory(t).Version(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}
