package s0_data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/evquant/internal/contracts"
)

// ChipRepository implements contracts.ChipRepository on Postgres
// ⭐ SSOT: the branch trading store lives here only
type ChipRepository struct {
	pool *pgxpool.Pool
}

// NewChipRepository creates a new chip repository
func NewChipRepository(pool *pgxpool.Pool) *ChipRepository {
	return &ChipRepository{pool: pool}
}

// Query retrieves branch records of a stock with from <= trade_date <= to
func (r *ChipRepository) Query(ctx context.Context, stockID string, from, to time.Time) ([]contracts.ChipRecord, error) {
	query := `
		SELECT stock_id, trade_date, branch_id, branch_name, buy_lots, sell_lots, buy_amount, sell_amount
		FROM data.chips
		WHERE stock_id = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC, branch_id ASC
	`

	rows, err := r.pool.Query(ctx, query, stockID, contracts.Day(from), contracts.Day(to))
	if err != nil {
		return nil, fmt.Errorf("query chips: %w", err)
	}
	defer rows.Close()

	var records []contracts.ChipRecord
	for rows.Next() {
		var c contracts.ChipRecord
		if err := rows.Scan(&c.StockID, &c.Date, &c.BranchID, &c.BranchName,
			&c.BuyLots, &c.SellLots, &c.BuyAmount, &c.SellAmount); err != nil {
			return nil, fmt.Errorf("scan chip: %w", err)
		}
		c.Date = contracts.Day(c.Date)
		records = append(records, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

// SaveBatch stores records; a (stock, date, branch) already stored is kept
func (r *ChipRepository) SaveBatch(ctx context.Context, records []contracts.ChipRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO data.chips (
			stock_id, trade_date, branch_id, branch_name, buy_lots, sell_lots, buy_amount, sell_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stock_id, trade_date, branch_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, c := range records {
		batch.Queue(query, c.StockID, contracts.Day(c.Date), c.BranchID, c.BranchName,
			c.BuyLots, c.SellLots, c.BuyAmount, c.SellAmount)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save %d chips: %w", len(records), err)
	}
	return nil
}

// LatestDate returns the most recent stored trade date of a stock
func (r *ChipRepository) LatestDate(ctx context.Context, stockID string) (time.Time, bool, error) {
	query := `SELECT MAX(trade_date) FROM data.chips WHERE stock_id = $1`

	var latest *time.Time
	if err := r.pool.QueryRow(ctx, query, stockID).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query latest chip date: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return contracts.Day(*latest), true, nil
}

// Threshold returns the configured big trader threshold of a stock
func (r *ChipRepository) Threshold(ctx context.Context, stockID string) (int64, bool, error) {
	query := `SELECT lots FROM data.chip_thresholds WHERE stock_id = $1`

	var lots int64
	err := r.pool.QueryRow(ctx, query, stockID).Scan(&lots)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query chip threshold: %w", err)
	}
	return lots, true, nil
}

// SetThreshold stores the big trader threshold of a stock
func (r *ChipRepository) SetThreshold(ctx context.Context, stockID string, lots int64) error {
	query := `
		INSERT INTO data.chip_thresholds (stock_id, lots)
		VALUES ($1, $2)
		ON CONFLICT (stock_id) DO UPDATE SET lots = EXCLUDED.lots, updated_at = now()
	`

	if _, err := r.pool.Exec(ctx, query, stockID, lots); err != nil {
		return fmt.Errorf("set chip threshold: %w", err)
	}
	return nil
}
