package s0_data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/evquant/internal/quarter"
)

// QuarterPriceRepository implements contracts.QuarterlyPriceCache on Postgres
type QuarterPriceRepository struct {
	pool *pgxpool.Pool
}

// NewQuarterPriceRepository creates a new quarter price repository
func NewQuarterPriceRepository(pool *pgxpool.Pool) *QuarterPriceRepository {
	return &QuarterPriceRepository{pool: pool}
}

// Find returns the settled price of a stock for q
func (r *QuarterPriceRepository) Find(ctx context.Context, stockID string, q quarter.Quarter) (float64, bool, error) {
	query := `
		SELECT price
		FROM data.quarter_prices
		WHERE stock_id = $1 AND year = $2 AND quarter = $3
	`

	var price float64
	err := r.pool.QueryRow(ctx, query, stockID, q.Year, q.Number).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query quarter price %s/%s: %w", stockID, q, err)
	}
	return price, true, nil
}

// InsertIfAbsent stores the price unless one exists (first writer wins)
func (r *QuarterPriceRepository) InsertIfAbsent(ctx context.Context, stockID string, q quarter.Quarter, price float64) error {
	query := `
		INSERT INTO data.quarter_prices (stock_id, year, quarter, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stock_id, year, quarter) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, stockID, q.Year, q.Number, price); err != nil {
		return fmt.Errorf("insert quarter price %s/%s: %w", stockID, q, err)
	}
	return nil
}
