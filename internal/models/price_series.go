package models

import (
	"math"
	"time"

	"github.com/acoplu/borsa-aslani/internal/utils"
)

// Canonical raw column names, in the order every matrix built from a
// PriceSeries uses.
const (
	ColumnOpen   = "Open"
	ColumnHigh   = "High"
	ColumnLow    = "Low"
	ColumnClose  = "Close"
	ColumnVolume = "Volume"
)

// OHLCVColumns is the canonical raw column ordering.
var OHLCVColumns = []string{ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnVolume}

// CloseColumnIndex is the position of Close in OHLCVColumns.
const CloseColumnIndex = 3

// Bar is one daily OHLCV row. Missing values are NaN.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Values returns the bar's fields in OHLCVColumns order.
func (b Bar) Values() [5]float64 {
	return [5]float64{b.Open, b.High, b.Low, b.Close, b.Volume}
}

// Complete reports whether no field of the bar is missing.
func (b Bar) Complete() bool {
	for _, v := range b.Values() {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// PriceSeries is a chronologically ordered run of daily bars for one symbol.
type PriceSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// NewPriceSeries builds a series and checks its date ordering.
func NewPriceSeries(symbol string, bars []Bar) (PriceSeries, error) {
	s := PriceSeries{Symbol: symbol, Bars: bars}
	if err := s.Validate(); err != nil {
		return PriceSeries{}, err
	}
	return s, nil
}

// Validate checks that dates are strictly increasing, which also rules out
// duplicate keys.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		prev, cur := s.Bars[i-1].Date, s.Bars[i].Date
		if !cur.After(prev) {
			return utils.NewValidationErrorf("bar %d dated %s does not follow %s",
				i, cur.Format(time.DateOnly), prev.Format(time.DateOnly))
		}
	}
	return nil
}

// Len returns the number of bars.
func (s PriceSeries) Len() int {
	return len(s.Bars)
}

// Dates returns the date index.
func (s PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		dates[i] = b.Date
	}
	return dates
}

// Frame converts the series into a frame with the five OHLCV columns.
func (s PriceSeries) Frame() *Frame {
	n := len(s.Bars)
	columns := make([][]float64, len(OHLCVColumns))
	for j := range columns {
		columns[j] = make([]float64, n)
	}
	for i, b := range s.Bars {
		for j, v := range b.Values() {
			columns[j][i] = v
		}
	}
	return newFrameUnchecked(s.Dates(), append([]string(nil), OHLCVColumns...), columns)
}

// Between returns the bars dated in [from, to). A zero bound is open.
func (s PriceSeries) Between(from, to time.Time) PriceSeries {
	out := PriceSeries{Symbol: s.Symbol}
	for _, b := range s.Bars {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !b.Date.Before(to) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}
