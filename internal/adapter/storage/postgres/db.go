package postgres

import (
	"context"
	"fmt"

	"offline-wallet/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// applicationName tags the wallet's sessions in pg_stat_activity.
const applicationName = "offline-wallet"

// poolConfig turns the remote settings into a pgxpool config. A wallet
// syncs in short bursts, so the pool never keeps idle connections
// beyond MinConns.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = min(cfg.MinConns, poolCfg.MaxConns)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	return poolCfg, nil
}

// NewPool connects to the PostgreSQL remote mirror and pings it.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging remote mirror: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("dbname", cfg.DBName).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("PostgreSQL remote connected")

	return pool, nil
}
