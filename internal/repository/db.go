// Package repository persists bets, plan roles and monthly OCR usage in
// Postgres through pgx.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

// Pool is the subset of *pgxpool.Pool the repositories use. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Open creates a pgx pool from the database config.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger = common.LoggerOrGlobal(logger)
	logger.Info("db.connect.start")

	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "invalid database url", eris.Wrap(err, "repository: parse config"))
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "keiba-tracker"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("db.connect.failed", zap.Error(err))
		return nil, eris.Wrap(err, "repository: connect")
	}

	logger.Info("db.connect.ok", zap.Int32("max_conns", pc.MaxConns))
	return pool, nil
}

// HealthCheck pings the database within timeout.
func HealthCheck(ctx context.Context, pool Pool, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := pool.Ping(ctx); err != nil {
		return common.NewAppError("DB_UNAVAILABLE", "database is unreachable", wrapDB(err, "repository: ping"))
	}
	return nil
}

// wrapDB tags err as a database failure.
func wrapDB(err error, op string) error {
	if err == nil {
		return nil
	}
	return eris.Wrap(errors.Join(common.ErrDatabase, err), op)
}
