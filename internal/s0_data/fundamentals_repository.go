package s0_data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
)

// FundamentalsRepository implements contracts.FundamentalsRepository on Postgres
// ⭐ SSOT: the quarterly report store lives here only
type FundamentalsRepository struct {
	pool *pgxpool.Pool
}

// NewFundamentalsRepository creates a new fundamentals repository
func NewFundamentalsRepository(pool *pgxpool.Pool) *FundamentalsRepository {
	return &FundamentalsRepository{pool: pool}
}

const fundamentalsColumns = `
	stock_id, year, quarter,
	revenue, gross_profit, operating_income, net_income, parent_net_income,
	cash_and_equivalents, short_term_investment, total_liabilities, total_equity,
	common_stock, depreciation, amortization`

// Find returns the report of a stock for q, or (nil, nil) when absent
func (r *FundamentalsRepository) Find(ctx context.Context, stockID string, q quarter.Quarter) (*contracts.StockFundamentals, error) {
	query := `SELECT ` + fundamentalsColumns + `
		FROM data.stock_fundamentals
		WHERE stock_id = $1 AND year = $2 AND quarter = $3
	`

	var f contracts.StockFundamentals
	err := r.pool.QueryRow(ctx, query, stockID, q.Year, q.Number).Scan(
		&f.StockID, &f.Quarter.Year, &f.Quarter.Number,
		&f.Revenue, &f.GrossProfit, &f.OperatingIncome, &f.NetIncome, &f.ParentNetIncome,
		&f.CashAndEquivalents, &f.ShortTermInvestment, &f.TotalLiabilities, &f.TotalEquity,
		&f.CommonStock, &f.Depreciation, &f.Amortization,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query fundamentals %s/%s: %w", stockID, q, err)
	}
	return &f, nil
}

// ListStockIDs returns the ids with a report for q, ascending
func (r *FundamentalsRepository) ListStockIDs(ctx context.Context, q quarter.Quarter) ([]string, error) {
	query := `
		SELECT stock_id
		FROM data.stock_fundamentals
		WHERE year = $1 AND quarter = $2
		ORDER BY stock_id
	`

	rows, err := r.pool.Query(ctx, query, q.Year, q.Number)
	if err != nil {
		return nil, fmt.Errorf("query stock ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stock id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// InsertIfAbsent stores f unless a report for the key exists. Returns true when stored.
func (r *FundamentalsRepository) InsertIfAbsent(ctx context.Context, f *contracts.StockFundamentals) (bool, error) {
	query := `
		INSERT INTO data.stock_fundamentals (
			fiscal_quarter, ` + fundamentalsColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (stock_id, year, quarter) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		f.Quarter.String(), f.StockID, f.Quarter.Year, f.Quarter.Number,
		f.Revenue, f.GrossProfit, f.OperatingIncome, f.NetIncome, f.ParentNetIncome,
		f.CashAndEquivalents, f.ShortTermInvestment, f.TotalLiabilities, f.TotalEquity,
		f.CommonStock, f.Depreciation, f.Amortization,
	)
	if err != nil {
		return false, fmt.Errorf("insert fundamentals %s/%s: %w", f.StockID, f.Quarter, err)
	}
	return tag.RowsAffected() == 1, nil
}
