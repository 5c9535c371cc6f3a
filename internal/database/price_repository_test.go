package database

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/utils"
)

var barColumns = []string{"trade_date", "open", "high", "low", "close", "volume"}

func ptr(v float64) *float64 { return &v }

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func newMockRepository(t *testing.T) (pgxmock.PgxPoolIface, *PriceRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPriceRepository(mock)
}

func TestPriceRepository_GetDailyBars(t *testing.T) {
	mock, repo := newMockRepository(t)
	from := day(2)

	mock.ExpectQuery("SELECT trade_date, open, high, low, close, volume").
		WithArgs("AAPL", &from, (*time.Time)(nil)).
		WillReturnRows(pgxmock.NewRows(barColumns).
			AddRow(day(2), ptr(100), ptr(102), ptr(99), ptr(101), ptr(1500)).
			AddRow(day(3), ptr(101), nil, ptr(100), ptr(102.5), ptr(1700)).
			AddRow(day(4), ptr(102.5), ptr(104), ptr(101), ptr(103), ptr(1600)))

	series, err := repo.GetDailyBars(context.Background(), "AAPL", from, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", series.Symbol)
	require.Equal(t, 3, series.Len())
	assert.Equal(t, models.Bar{Date: day(2), Open: 100, High: 102, Low: 99, Close: 101, Volume: 1500}, series.Bars[0])
	assert.True(t, math.IsNaN(series.Bars[1].High), "NULL maps to a missing value")
	assert.False(t, series.Bars[1].Complete())
	assert.Equal(t, 103.0, series.Bars[2].Close)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceRepository_GetDailyBars_Empty(t *testing.T) {
	mock, repo := newMockRepository(t)

	mock.ExpectQuery("SELECT trade_date").
		WithArgs("MSFT", (*time.Time)(nil), (*time.Time)(nil)).
		WillReturnRows(pgxmock.NewRows(barColumns))

	series, err := repo.GetDailyBars(context.Background(), "MSFT", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, series.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceRepository_GetDailyBars_RejectsUnorderedRows(t *testing.T) {
	mock, repo := newMockRepository(t)

	mock.ExpectQuery("SELECT trade_date").
		WithArgs("AAPL", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(barColumns).
			AddRow(day(5), ptr(1), ptr(1), ptr(1), ptr(1), ptr(1)).
			AddRow(day(5), ptr(1), ptr(1), ptr(1), ptr(1), ptr(1)))

	_, err := repo.GetDailyBars(context.Background(), "AAPL", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestPriceRepository_GetDailyBars_QueryError(t *testing.T) {
	mock, repo := newMockRepository(t)

	mock.ExpectQuery("SELECT trade_date").
		WithArgs("AAPL", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetDailyBars(context.Background(), "AAPL", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get daily bars for AAPL")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPriceRepository_SaveDailyBars(t *testing.T) {
	mock, repo := newMockRepository(t)
	series := models.PriceSeries{
		Symbol: "AAPL",
		Bars: []models.Bar{
			{Date: day(2), Open: 100, High: 102, Low: 99, Close: 101, Volume: 1500},
			{Date: day(3), Open: 101, High: math.NaN(), Low: 100, Close: 102, Volume: 1700},
		},
	}

	mock.ExpectExec("INSERT INTO daily_prices").
		WithArgs("AAPL", day(2), ptr(100), ptr(102), ptr(99), ptr(101), ptr(1500)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO daily_prices").
		WithArgs("AAPL", day(3), ptr(101), (*float64)(nil), ptr(100), ptr(102), ptr(1700)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	written, err := repo.SaveDailyBars(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, int64(2), written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceRepository_SaveDailyBars_StopsOnError(t *testing.T) {
	mock, repo := newMockRepository(t)
	series := models.PriceSeries{
		Symbol: "AAPL",
		Bars: []models.Bar{
			{Date: day(2), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
			{Date: day(3), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		},
	}

	mock.ExpectExec("INSERT INTO daily_prices").
		WithArgs("AAPL", day(2), ptr(1), ptr(1), ptr(1), ptr(1), ptr(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO daily_prices").
		WithArgs("AAPL", day(3), ptr(1), ptr(1), ptr(1), ptr(1), ptr(1)).
		WillReturnError(errors.New("disk full"))

	written, err := repo.SaveDailyBars(context.Background(), series)
	require.Error(t, err)
	assert.Equal(t, int64(1), written)
	assert.Contains(t, err.Error(), "2024-01-03")
}

func TestPriceRepository_ListSymbols(t *testing.T) {
	mock, repo := newMockRepository(t)

	mock.ExpectQuery("SELECT DISTINCT symbol").
		WillReturnRows(pgxmock.NewRows([]string{"symbol"}).AddRow("AAPL").AddRow("MSFT"))

	symbols, err := repo.ListSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
	assert.NoError(t, mock.ExpectationsWereMet())
}
