package features

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/utils"
)

// WarningNumericDegeneracy marks RSI steps clamped to 100 because the
// average loss over the window was zero.
const WarningNumericDegeneracy = "numeric_degeneracy"

// atrPeriod is the indicator library's default ATR period.
const atrPeriod = 14

var paramsValidator = validator.New()

// Params holds the window sizes of the indicator catalog.
type Params struct {
	// Moving Averages
	SMAPeriods []int `json:"sma_periods" validate:"dive,gt=0"`
	EMAPeriods []int `json:"ema_periods" validate:"dive,gt=0"`

	// Momentum Indicators
	RSIPeriod      int `json:"rsi_period" validate:"gt=0"`
	MomentumPeriod int `json:"momentum_period" validate:"gt=0"`
	ROCPeriod      int `json:"roc_period" validate:"gt=0"`

	// Trend Indicators
	MACDFast   int `json:"macd_fast" validate:"gt=0"`
	MACDSlow   int `json:"macd_slow" validate:"gtfield=MACDFast"`
	MACDSignal int `json:"macd_signal" validate:"gt=0"`

	// Volatility Indicators
	BBPeriod int     `json:"bb_period" validate:"gt=1"`
	BBStdDev float64 `json:"bb_std_dev" validate:"gte=0"`

	// Extended adds ATR and OBV columns after the fixed catalog.
	Extended bool `json:"extended"`
}

// DefaultParams returns the standard catalog windows.
func DefaultParams() Params {
	return Params{
		SMAPeriods:     []int{5, 10},
		EMAPeriods:     []int{10, 20},
		RSIPeriod:      14,
		MomentumPeriod: 10,
		ROCPeriod:      10,
		MACDFast:       12,
		MACDSlow:       26,
		MACDSignal:     9,
		BBPeriod:       20,
		BBStdDev:       2.0,
	}
}

// Warning is a non-fatal condition met while computing a column.
type Warning struct {
	Kind   string `json:"kind"`
	Column string `json:"column"`
	Count  int    `json:"count"`
}

// EnrichReport describes what Enrich did to the series.
type EnrichReport struct {
	RowsIn        int       `json:"rows_in"`
	RowsOut       int       `json:"rows_out"`
	WarmupDropped int       `json:"warmup_dropped"`
	FirstDate     time.Time `json:"first_date"`
	Warnings      []Warning `json:"warnings,omitempty"`
}

// Engine computes the indicator catalog. It holds only immutable parameters,
// so one Engine can serve any number of goroutines.
type Engine struct {
	params Params
}

// NewEngine validates params and returns an engine using a private copy.
func NewEngine(params Params) (*Engine, error) {
	if err := paramsValidator.Struct(params); err != nil {
		return nil, utils.NewValidationErrorf("invalid indicator parameters: %v", err)
	}
	params.SMAPeriods = append([]int(nil), params.SMAPeriods...)
	params.EMAPeriods = append([]int(nil), params.EMAPeriods...)
	return &Engine{params: params}, nil
}

// Params returns a copy of the engine parameters.
func (e *Engine) Params() Params {
	p := e.params
	p.SMAPeriods = append([]int(nil), p.SMAPeriods...)
	p.EMAPeriods = append([]int(nil), p.EMAPeriods...)
	return p
}

// WarmupRows returns the longest leading undefined run of the catalog, which
// is how many rows Enrich drops from a clean series.
func (e *Engine) WarmupRows() int {
	p := e.params
	longest := max(p.RSIPeriod-1, p.BBPeriod-1, p.MomentumPeriod, p.ROCPeriod)
	for _, period := range p.SMAPeriods {
		longest = max(longest, period-1)
	}
	return longest
}

// Enrich derives the indicator columns and calendar fields from a cleaned
// series and drops every row left with an undefined value. The input must
// not contain missing values.
func (e *Engine) Enrich(series models.PriceSeries) (*models.Frame, *EnrichReport, error) {
	n := series.Len()
	if n == 0 {
		return nil, nil, &utils.EmptyInputError{Stage: "enrich"}
	}
	if err := series.Validate(); err != nil {
		return nil, nil, err
	}
	for i, bar := range series.Bars {
		if !bar.Complete() {
			return nil, nil, utils.NewValidationErrorf("bar %d dated %s has missing values; clean the series first",
				i, bar.Date.Format(time.DateOnly))
		}
	}

	frame := series.Frame()
	open, _ := frame.Column(models.ColumnOpen)
	high, _ := frame.Column(models.ColumnHigh)
	low, _ := frame.Column(models.ColumnLow)
	closing, _ := frame.Column(models.ColumnClose)
	volumes, _ := frame.Column(models.ColumnVolume)

	p := e.params
	report := &EnrichReport{RowsIn: n}

	type column struct {
		name   string
		values []float64
	}
	var derived []column
	add := func(name string, values []float64) {
		derived = append(derived, column{name: name, values: values})
	}

	for _, period := range p.SMAPeriods {
		add(models.SMAColumn(period), SMA(closing, period))
	}
	for _, period := range p.EMAPeriods {
		add(models.EMAColumn(period), EMA(closing, period))
	}

	rsiName := models.RSIColumn(p.RSIPeriod)
	rsiValues, clamped := rsi(closing, p.RSIPeriod)
	add(rsiName, rsiValues)
	if clamped > 0 {
		report.Warnings = append(report.Warnings, Warning{Kind: WarningNumericDegeneracy, Column: rsiName, Count: clamped})
	}

	line, signal, hist := MACD(closing, p.MACDFast, p.MACDSlow, p.MACDSignal)
	add(models.ColumnMACD, line)
	add(models.ColumnMACDSignal, signal)
	add(models.ColumnMACDHist, hist)

	upper, lower := BollingerBands(closing, p.BBPeriod, p.BBStdDev)
	add(models.ColumnBBUpper, upper)
	add(models.ColumnBBLower, lower)

	add(models.MomentumColumn(p.MomentumPeriod), Momentum(closing, p.MomentumPeriod))
	add(models.ROCColumn(p.ROCPeriod), RateOfChange(closing, p.ROCPeriod))

	add(models.ColumnHLRatio, Ratio(high, low))
	add(models.ColumnCORatio, Ratio(closing, open))

	dayOfMonth, weekday, month, quarter := Calendar(series.Dates())
	add(models.ColumnDay, dayOfMonth)
	add(models.ColumnWeekday, weekday)
	add(models.ColumnMonth, month)
	add(models.ColumnQuarter, quarter)

	if p.Extended {
		add(models.ATRColumn(atrPeriod), ATR(high, low, closing))
		add(models.ColumnOBV, OBV(closing, volumes))
	}

	var err error
	for _, col := range derived {
		frame, err = frame.WithColumn(col.name, col.values)
		if err != nil {
			return nil, nil, fmt.Errorf("add column %s: %w", col.name, err)
		}
	}

	enriched, dropped := frame.DropIncompleteRows()
	report.WarmupDropped = dropped
	report.RowsOut = enriched.Len()
	if enriched.Len() == 0 {
		return nil, report, &utils.EmptyInputError{Stage: "enrich", Rows: n}
	}
	report.FirstDate = enriched.Index()[0]

	return enriched, report, nil
}
