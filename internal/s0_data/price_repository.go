package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/evquant/internal/contracts"
)

// PriceRepository implements contracts.DailyPriceRepository on Postgres
// ⭐ SSOT: the daily candle store lives here only
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// Query retrieves candles for a stock with from <= trade_date <= to, ascending
func (r *PriceRepository) Query(ctx context.Context, stockID string, from, to time.Time) ([]contracts.PriceRecord, error) {
	query := `
		SELECT stock_id, trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_prices
		WHERE stock_id = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, stockID, contracts.Day(from), contracts.Day(to))
	if err != nil {
		return nil, fmt.Errorf("query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []contracts.PriceRecord
	for rows.Next() {
		var p contracts.PriceRecord
		if err := rows.Scan(&p.StockID, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan daily price: %w", err)
		}
		p.Date = contracts.Day(p.Date)
		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return prices, nil
}

// SaveBatch upserts candles in one round trip
func (r *PriceRepository) SaveBatch(ctx context.Context, records []contracts.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO data.daily_prices (
			stock_id, trade_date, open_price, high_price, low_price, close_price, volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (stock_id, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, p := range records {
		batch.Queue(query, p.StockID, contracts.Day(p.Date), p.Open, p.High, p.Low, p.Close, p.Volume)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save %d daily prices: %w", len(records), err)
	}
	return nil
}

// LatestDate returns the most recent stored trade date of a stock
func (r *PriceRepository) LatestDate(ctx context.Context, stockID string) (time.Time, bool, error) {
	query := `SELECT MAX(trade_date) FROM data.daily_prices WHERE stock_id = $1`

	var latest *time.Time
	if err := r.pool.QueryRow(ctx, query, stockID).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query latest trade date: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return contracts.Day(*latest), true, nil
}
