package models

import "fmt"

// Fixed indicator column names.
const (
	ColumnMACD       = "MACD"
	ColumnMACDSignal = "MACD_signal"
	ColumnMACDHist   = "MACD_hist"
	ColumnBBUpper    = "BB_upper"
	ColumnBBLower    = "BB_lower"
	ColumnHLRatio    = "HL_ratio"
	ColumnCORatio    = "CO_ratio"
	ColumnOBV        = "OBV"

	ColumnDay     = "Day"
	ColumnWeekday = "Weekday"
	ColumnMonth   = "Month"
	ColumnQuarter = "Quarter"
)

// CalendarColumns lists the date-derived columns in output order.
var CalendarColumns = []string{ColumnDay, ColumnWeekday, ColumnMonth, ColumnQuarter}

// SMAColumn names a simple moving average column, e.g. SMA_5.
func SMAColumn(period int) string { return fmt.Sprintf("SMA_%d", period) }

// EMAColumn names an exponential moving average column, e.g. EMA_10.
func EMAColumn(period int) string { return fmt.Sprintf("EMA_%d", period) }

// RSIColumn names a relative strength index column, e.g. RSI_14.
func RSIColumn(period int) string { return fmt.Sprintf("RSI_%d", period) }

// MomentumColumn names a momentum column, e.g. Momentum_10.
func MomentumColumn(period int) string { return fmt.Sprintf("Momentum_%d", period) }

// ROCColumn names a rate-of-change column, e.g. ROC_10.
func ROCColumn(period int) string { return fmt.Sprintf("ROC_%d", period) }

// ATRColumn names an average true range column, e.g. ATR_14.
func ATRColumn(period int) string { return fmt.Sprintf("ATR_%d", period) }
