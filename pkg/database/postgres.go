package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/evquant/pkg/config"
)

// DB wraps the pgxpool.Pool
// ⭐ SSOT: database connections are created in this package only
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool and verifies it with a ping
func New(ctx context.Context, cfg *config.Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database is accessible
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// schema is applied idempotently by Migrate.
// Fundamentals and quarter prices are write-once per key; daily prices and chips are append-only.
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS data`,
	`CREATE TABLE IF NOT EXISTS data.stock_fundamentals (
		stock_id              TEXT             NOT NULL,
		fiscal_quarter        TEXT             NOT NULL,
		year                  INT              NOT NULL,
		quarter               INT              NOT NULL,
		revenue               DOUBLE PRECISION NOT NULL DEFAULT 0,
		gross_profit          DOUBLE PRECISION NOT NULL DEFAULT 0,
		operating_income      DOUBLE PRECISION NOT NULL DEFAULT 0,
		net_income            DOUBLE PRECISION NOT NULL DEFAULT 0,
		parent_net_income     DOUBLE PRECISION NOT NULL DEFAULT 0,
		cash_and_equivalents  DOUBLE PRECISION NOT NULL DEFAULT 0,
		short_term_investment DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_liabilities     DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_equity          DOUBLE PRECISION NOT NULL DEFAULT 0,
		common_stock          DOUBLE PRECISION NOT NULL DEFAULT 0,
		depreciation          DOUBLE PRECISION NOT NULL DEFAULT 0,
		amortization          DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at            TIMESTAMPTZ      NOT NULL DEFAULT now(),
		PRIMARY KEY (stock_id, year, quarter)
	)`,
	`CREATE TABLE IF NOT EXISTS data.daily_prices (
		stock_id    TEXT             NOT NULL,
		trade_date  DATE             NOT NULL,
		open_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
		high_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
		low_price   DOUBLE PRECISION NOT NULL DEFAULT 0,
		close_price DOUBLE PRECISION NOT NULL,
		volume      BIGINT           NOT NULL DEFAULT 0,
		PRIMARY KEY (stock_id, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS data.chips (
		stock_id    TEXT   NOT NULL,
		trade_date  DATE   NOT NULL,
		branch_id   TEXT   NOT NULL,
		branch_name TEXT   NOT NULL DEFAULT '',
		buy_lots    BIGINT NOT NULL DEFAULT 0,
		sell_lots   BIGINT NOT NULL DEFAULT 0,
		buy_amount  BIGINT NOT NULL DEFAULT 0,
		sell_amount BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (stock_id, trade_date, branch_id)
	)`,
	`CREATE TABLE IF NOT EXISTS data.chip_thresholds (
		stock_id   TEXT        PRIMARY KEY,
		lots       BIGINT      NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS data.quarter_prices (
		stock_id   TEXT             NOT NULL,
		year       INT              NOT NULL,
		quarter    INT              NOT NULL,
		price      DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
		PRIMARY KEY (stock_id, year, quarter)
	)`,
}

// Migrate creates the tables used by the repositories if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
