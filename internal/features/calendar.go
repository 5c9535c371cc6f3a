package features

import "time"

// Calendar extracts day-of-month, weekday (Monday = 0 ... Sunday = 6), month
// and quarter from each date.
func Calendar(dates []time.Time) (dayOfMonth, weekday, month, quarter []float64) {
	n := len(dates)
	dayOfMonth = make([]float64, n)
	weekday = make([]float64, n)
	month = make([]float64, n)
	quarter = make([]float64, n)

	for i, d := range dates {
		dayOfMonth[i] = float64(d.Day())
		weekday[i] = float64((int(d.Weekday()) + 6) % 7)
		month[i] = float64(d.Month())
		quarter[i] = float64((int(d.Month())-1)/3 + 1)
	}
	return dayOfMonth, weekday, month, quarter
}
