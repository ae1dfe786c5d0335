package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"rodae/internal/shared/config"
	"rodae/internal/shared/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName = "rodae-payment"

	// фоновая перепроверка репассов и consumer ride.completed держат по соединению
	minConns        = 2
	defaultMaxConns = 10

	// соединения живут недолго: после failover pgbouncer пул быстрее переезжает
	maxConnLifetime   = 30 * time.Minute
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second

	pingTimeout = 5 * time.Second
)

// poolConfig собирает настройки пула платежного сервиса. lock_timeout ограничивает
// ожидание SELECT ... FOR UPDATE: возврат держит строку платежа на время reverse в шлюзе.
func poolConfig(cfg config.DBConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = defaultMaxConns
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.MinConns = min(minConns, poolCfg.MaxConns)
	poolCfg.MaxConnLifetime = maxConnLifetime
	poolCfg.MaxConnIdleTime = maxConnIdleTime
	poolCfg.HealthCheckPeriod = healthCheckPeriod

	params := poolCfg.ConnConfig.RuntimeParams
	params["application_name"] = applicationName
	if cfg.StatementTimeoutMs > 0 {
		params["statement_timeout"] = strconv.Itoa(cfg.StatementTimeoutMs)
	}
	if cfg.LockTimeoutMs > 0 {
		params["lock_timeout"] = strconv.Itoa(cfg.LockTimeoutMs)
	}
	return poolCfg, nil
}

// NewPool открывает пул и сразу проверяет БД: без нее сервис не стартует
func NewPool(ctx context.Context, cfg config.DBConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}

	log.Info(logger.Entry{
		Action:  "payment_db_connected",
		Message: fmt.Sprintf("connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.Database),
		Additional: map[string]any{
			"max_conns":       poolCfg.MaxConns,
			"lock_timeout_ms": cfg.LockTimeoutMs,
		},
	})
	return pool, nil
}

func Close(pool *pgxpool.Pool, log *logger.Logger) {
	if pool == nil {
		return
	}
	stat := pool.Stat()
	pool.Close()
	log.Info(logger.Entry{
		Action:     "payment_db_closed",
		Message:    "database pool closed",
		Additional: map[string]any{"acquired_conns": stat.AcquiredConns()},
	})
}
