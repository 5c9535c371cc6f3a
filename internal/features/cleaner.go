package features

import "github.com/acoplu/borsa-aslani/internal/models"

// Clean returns the series without the bars that are missing any OHLCV
// value. Order and dates of the remaining bars are kept, and cleaning an
// already clean series returns an identical series. Clean never fails; an
// empty result is reported by whichever stage consumes it.
func Clean(series models.PriceSeries) models.PriceSeries {
	out := models.PriceSeries{Symbol: series.Symbol, Bars: make([]models.Bar, 0, len(series.Bars))}
	for _, bar := range series.Bars {
		if bar.Complete() {
			out.Bars = append(out.Bars, bar)
		}
	}
	return out
}
