// Package ingest decodes daily OHLCV exports into price series.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/utils"
)

const dateColumn = "Date"

var dateLayouts = []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04:05-07:00"}

// ReadCSVFile reads path and names the series after the file name, so
// data/aapl.csv becomes symbol AAPL.
func ReadCSVFile(path string) (models.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	series, err := ReadCSV(f, SymbolFromPath(path))
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

// SymbolFromPath returns the upper-cased base name of path without its
// extension.
func SymbolFromPath(path string) string {
	base := filepath.Base(path)
	return cases.Upper(language.English).String(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ReadCSV decodes a header row with Date and the five OHLCV columns in any
// order and case, followed by one row per trading day. Empty, "null" and
// "NaN" cells become missing values for the cleaner to drop. Any other
// column is a SchemaMismatchError and dates must be strictly increasing.
func ReadCSV(r io.Reader, symbol string) (models.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return models.PriceSeries{}, &utils.EmptyInputError{Stage: "ingest"}
	}
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("failed to read header: %w", err)
	}

	positions, err := mapHeader(header)
	if err != nil {
		return models.PriceSeries{}, err
	}

	var bars []models.Bar
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.PriceSeries{}, utils.NewValidationErrorf("line %d: %v", line, err)
		}

		bar, err := parseRecord(record, positions, line)
		if err != nil {
			return models.PriceSeries{}, err
		}
		bars = append(bars, bar)
	}

	return models.NewPriceSeries(symbol, bars)
}

// mapHeader returns the record index of Date followed by the OHLCV columns.
func mapHeader(header []string) ([6]int, error) {
	expected := append([]string{dateColumn}, models.OHLCVColumns...)
	var positions [6]int
	for i := range positions {
		positions[i] = -1
	}

	// cases.Caser keeps state, so each decode gets its own.
	caser := cases.Title(language.English)
	var got []string
	for i, raw := range header {
		name := caser.String(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
		got = append(got, name)

		slot := -1
		for j, want := range expected {
			if name == want {
				slot = j
				break
			}
		}
		if slot < 0 {
			return positions, &utils.SchemaMismatchError{Expected: expected, Got: got}
		}
		if positions[slot] >= 0 {
			return positions, utils.NewValidationErrorf("duplicate column %q", name)
		}
		positions[slot] = i
	}

	for j, pos := range positions {
		if pos < 0 {
			return positions, &utils.SchemaMismatchError{Column: expected[j]}
		}
	}
	return positions, nil
}

func parseRecord(record []string, positions [6]int, line int) (models.Bar, error) {
	date, err := ParseDate(record[positions[0]])
	if err != nil {
		return models.Bar{}, utils.NewValidationErrorf("line %d: %v", line, err)
	}

	var values [5]float64
	for j := range values {
		name := models.OHLCVColumns[j]
		v, err := parseNumber(record[positions[j+1]])
		if err != nil {
			return models.Bar{}, utils.NewValidationErrorf("line %d column %s: %v", line, name, err)
		}
		values[j] = v
	}

	return models.Bar{
		Date:   date,
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// ParseDate accepts a calendar date or a timestamp and returns the calendar
// date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "nan":
		return math.NaN(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return d.InexactFloat64(), nil
}
