package database

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/acoplu/borsa-aslani/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PriceRepository reads and writes daily OHLCV bars in the daily_prices
// table. NULL prices map to NaN so the cleaner can drop those rows.
type PriceRepository struct {
	pool DatabasePool
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(pool DatabasePool) *PriceRepository {
	return &PriceRepository{
		pool: pool,
	}
}

// GetDailyBars returns the bars for symbol in [from, to), ordered by date.
// A zero from or to leaves that side open.
func (r *PriceRepository) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error) {
	query := `
		SELECT trade_date, open, high, low, close, volume
		FROM daily_prices
		WHERE symbol = $1
		AND ($2::date IS NULL OR trade_date >= $2)
		AND ($3::date IS NULL OR trade_date < $3)
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, symbol, nullableDate(from), nullableDate(to))
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("failed to get daily bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var (
			date                             time.Time
			open, high, low, closing, volume *float64
		)
		if err := rows.Scan(&date, &open, &high, &low, &closing, &volume); err != nil {
			return models.PriceSeries{}, fmt.Errorf("failed to scan daily bar: %w", err)
		}
		bars = append(bars, models.Bar{
			Date:   date.UTC(),
			Open:   valueOrNaN(open),
			High:   valueOrNaN(high),
			Low:    valueOrNaN(low),
			Close:  valueOrNaN(closing),
			Volume: valueOrNaN(volume),
		})
	}
	if err := rows.Err(); err != nil {
		return models.PriceSeries{}, fmt.Errorf("error iterating daily bars: %w", err)
	}

	return models.NewPriceSeries(symbol, bars)
}

// SaveDailyBars upserts bars for series.Symbol and returns the number of rows
// written. Missing values are stored as NULL.
func (r *PriceRepository) SaveDailyBars(ctx context.Context, series models.PriceSeries) (int64, error) {
	query := `
		INSERT INTO daily_prices (symbol, trade_date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, trade_date)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = CURRENT_TIMESTAMP
	`

	var written int64
	for _, bar := range series.Bars {
		tag, err := r.pool.Exec(ctx, query,
			series.Symbol,
			bar.Date,
			nanToNull(bar.Open),
			nanToNull(bar.High),
			nanToNull(bar.Low),
			nanToNull(bar.Close),
			nanToNull(bar.Volume),
		)
		if err != nil {
			return written, fmt.Errorf("failed to save bar %s for %s: %w", bar.Date.Format("2006-01-02"), series.Symbol, err)
		}
		written += tag.RowsAffected()
	}

	return written, nil
}

// ListSymbols returns every symbol with at least one stored bar.
func (r *PriceRepository) ListSymbols(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func nanToNull(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
