package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"rodae/internal/shared/config"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesAreOrdered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.IsNonDecreasing(t, names)
	for _, n := range names {
		assert.True(t, strings.HasSuffix(n, ".sql"), n)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	for _, n := range names {
		b, err := MigrationsFS.ReadFile("migrations/" + n)
		require.NoError(t, err)
		assert.Contains(t, string(b), "IF NOT EXISTS", n)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	assert.True(t, IsUniqueViolation(dup))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
}

func TestPoolConfigAppliesPaymentSettings(t *testing.T) {
	cfg := config.Default().Database
	cfg.MaxConns = 4
	cfg.StatementTimeoutMs = 2500
	cfg.LockTimeoutMs = 8000

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 4, poolCfg.MaxConns)
	assert.EqualValues(t, 2, poolCfg.MinConns)
	assert.Equal(t, 30*time.Minute, poolCfg.MaxConnLifetime)

	params := poolCfg.ConnConfig.RuntimeParams
	assert.Equal(t, "rodae-payment", params["application_name"])
	assert.Equal(t, "2500", params["statement_timeout"])
	assert.Equal(t, "8000", params["lock_timeout"])
}

func TestPoolConfigDefaults(t *testing.T) {
	cfg := config.Default().Database
	cfg.MaxConns = 1
	cfg.StatementTimeoutMs = 0
	cfg.LockTimeoutMs = 0

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 1, poolCfg.MaxConns)
	assert.EqualValues(t, 1, poolCfg.MinConns, "min never exceeds max")
	assert.NotContains(t, poolCfg.ConnConfig.RuntimeParams, "statement_timeout")
	assert.NotContains(t, poolCfg.ConnConfig.RuntimeParams, "lock_timeout")

	cfg.MaxConns = 0
	poolCfg, err = poolConfig(cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 10, poolCfg.MaxConns)
}
