package features

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/cinar/indicator/v2/volume"
)

// Every function here returns a slice of the same length as its input, with
// NaN where the value is undefined (warm-up or degenerate arithmetic).

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// alignTail places computed, which covers the last len(computed) positions of
// an n-long input, at the end of an n-long NaN slice.
func alignTail(n int, computed []float64) []float64 {
	out := nanSlice(n)
	if len(computed) > n {
		computed = computed[len(computed)-n:]
	}
	copy(out[n-len(computed):], computed)
	return out
}

// SMA returns the arithmetic mean of the trailing period values, undefined
// for the first period-1 positions.
func SMA(values []float64, period int) []float64 {
	n := len(values)
	if period <= 0 || n < period {
		return nanSlice(n)
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	computed := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))

	valid := n - period + 1
	if len(computed) < valid {
		return rollingMean(values, period)
	}
	out := nanSlice(n)
	copy(out[period-1:], computed[len(computed)-valid:])
	return out
}

// rollingMean sums each window directly, so an all-zero window is exactly 0.
func rollingMean(values []float64, period int) []float64 {
	n := len(values)
	out := nanSlice(n)
	if period <= 0 {
		return out
	}
	for t := period - 1; t < n; t++ {
		sum := 0.0
		for _, v := range values[t-period+1 : t+1] {
			sum += v
		}
		out[t] = sum / float64(period)
	}
	return out
}

// RollingStd returns the sample standard deviation (n-1 denominator) of the
// trailing period values, undefined for the first period-1 positions.
func RollingStd(values []float64, period int) []float64 {
	n := len(values)
	out := nanSlice(n)
	if period < 2 {
		return out
	}
	for t := period - 1; t < n; t++ {
		out[t] = sampleStdDev(values[t-period+1 : t+1])
	}
	return out
}

func sampleStdDev(window []float64) float64 {
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	variance := 0.0
	for _, v := range window {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(window) - 1)

	return math.Sqrt(variance)
}

// EMA returns the exponential moving average with smoothing 2/(period+1),
// seeded with the first defined input so that output starts where the input
// does. A missing input carries the previous average forward.
func EMA(values []float64, period int) []float64 {
	n := len(values)
	out := nanSlice(n)
	if period <= 0 {
		return out
	}

	start := 0
	for start < n && math.IsNaN(values[start]) {
		start++
	}
	if start == n {
		return out
	}

	alpha := 2.0 / float64(period+1)
	out[start] = values[start]
	for i := start + 1; i < n; i++ {
		if math.IsNaN(values[i]) {
			out[i] = out[i-1]
			continue
		}
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI returns the relative strength index over simple rolling averages of
// gains and losses. The first step has no predecessor and counts as a zero
// change, so the first period-1 positions are undefined.
func RSI(values []float64, period int) []float64 {
	out, _ := rsi(values, period)
	return out
}

// rsi also returns how many steps were clamped to 100 because the average
// loss was zero while the average gain was not.
func rsi(values []float64, period int) ([]float64, int) {
	n := len(values)
	out := nanSlice(n)
	if period <= 0 || n < period {
		return out, 0
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := values[i] - values[i-1]
		switch {
		case delta > 0:
			gains[i] = delta
		case delta < 0:
			losses[i] = -delta
		}
	}

	avgGain := rollingMean(gains, period)
	avgLoss := rollingMean(losses, period)

	clamped := 0
	for t := period - 1; t < n; t++ {
		gain, loss := avgGain[t], avgLoss[t]
		switch {
		case math.IsNaN(gain) || math.IsNaN(loss):
			// undefined input inside the window
		case loss == 0 && gain == 0:
			// flat window: RS is 0/0
		case loss == 0:
			out[t] = 100
			clamped++
		default:
			rs := gain / loss
			out[t] = 100 - 100/(1+rs)
		}
	}
	return out, clamped
}

// MACD returns the MACD line EMA(fast)-EMA(slow), its signal line
// EMA(signal) of the MACD line, and the histogram line-signal.
func MACD(values []float64, fast, slow, signal int) (line, signalLine, hist []float64) {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	line = make([]float64, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine = EMA(line, signal)

	hist = make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - signalLine[i]
	}
	return line, signalLine, hist
}

// BollingerBands returns SMA(period) plus and minus nStd rolling standard
// deviations over the same window.
func BollingerBands(values []float64, period int, nStd float64) (upper, lower []float64) {
	middle := SMA(values, period)
	std := RollingStd(values, period)

	upper = make([]float64, len(values))
	lower = make([]float64, len(values))
	for i := range values {
		upper[i] = middle[i] + nStd*std[i]
		lower[i] = middle[i] - nStd*std[i]
	}
	return upper, lower
}

// Momentum returns values[t]-values[t-period], undefined for the first
// period positions.
func Momentum(values []float64, period int) []float64 {
	n := len(values)
	out := nanSlice(n)
	if period <= 0 {
		return out
	}
	for t := period; t < n; t++ {
		out[t] = values[t] - values[t-period]
	}
	return out
}

// RateOfChange returns the fractional change values[t]/values[t-period]-1,
// undefined for the first period positions and where the base is zero.
func RateOfChange(values []float64, period int) []float64 {
	n := len(values)
	out := nanSlice(n)
	if period <= 0 {
		return out
	}
	for t := period; t < n; t++ {
		base := values[t-period]
		if base == 0 {
			continue
		}
		out[t] = values[t]/base - 1
	}
	return out
}

// Ratio divides num by den element-wise; a zero denominator is undefined.
func Ratio(num, den []float64) []float64 {
	out := nanSlice(len(num))
	for i := range num {
		if den[i] == 0 {
			continue
		}
		out[i] = num[i] / den[i]
	}
	return out
}

// ATR returns the average true range with the indicator library's default
// period, aligned to the input length.
func ATR(high, low, closing []float64) []float64 {
	atr := volatility.NewAtr[float64]()
	computed := helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(high),
		helper.SliceToChan(low),
		helper.SliceToChan(closing),
	))
	return alignTail(len(closing), computed)
}

// OBV returns on-balance volume aligned to the input length.
func OBV(closing, volumes []float64) []float64 {
	obv := volume.NewObv[float64]()
	computed := helper.ChanToSlice(obv.Compute(
		helper.SliceToChan(closing),
		helper.SliceToChan(volumes),
	))
	return alignTail(len(closing), computed)
}
