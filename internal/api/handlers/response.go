package handlers

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/acoplu/borsa-aslani/internal/cache"
	"github.com/acoplu/borsa-aslani/internal/ingest"
	"github.com/acoplu/borsa-aslani/internal/middleware"
	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/services"
	"github.com/acoplu/borsa-aslani/internal/utils"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// BarPayload is one daily bar in a request body. A null value is a missing
// value and is removed by the cleaner.
type BarPayload struct {
	Date   string   `json:"date" binding:"required"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
}

// toSeries converts request bars into a validated series.
func toSeries(symbol string, payload []BarPayload) (models.PriceSeries, error) {
	bars := make([]models.Bar, len(payload))
	for i, p := range payload {
		date, err := ingest.ParseDate(p.Date)
		if err != nil {
			return models.PriceSeries{}, utils.NewValidationErrorf("bar %d: %v", i, err)
		}
		bars[i] = models.Bar{
			Date:   date,
			Open:   valueOrMissing(p.Open),
			High:   valueOrMissing(p.High),
			Low:    valueOrMissing(p.Low),
			Close:  valueOrMissing(p.Close),
			Volume: valueOrMissing(p.Volume),
		}
	}
	return models.NewPriceSeries(symbol, bars)
}

// fromSeries is the inverse of toSeries; missing values become null.
func fromSeries(series models.PriceSeries) []BarPayload {
	out := make([]BarPayload, len(series.Bars))
	for i, b := range series.Bars {
		out[i] = BarPayload{
			Date:   b.Date.Format(time.DateOnly),
			Open:   missingAsNull(b.Open),
			High:   missingAsNull(b.High),
			Low:    missingAsNull(b.Low),
			Close:  missingAsNull(b.Close),
			Volume: missingAsNull(b.Volume),
		}
	}
	return out
}

func missingAsNull(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func valueOrMissing(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// parseOptionalDate parses a YYYY-MM-DD query or body value. Empty means no
// bound.
func parseOptionalDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := ingest.ParseDate(value)
	if err != nil {
		return time.Time{}, utils.NewValidationErrorf("%s: %v", field, err)
	}
	return t, nil
}

// respondError maps err onto a status code and writes an ErrorResponse.
// Caller mistakes are 400 or 422; anything else is logged and hidden
// behind a generic 500.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status, kind := http.StatusInternalServerError, utils.ErrorKind(err)
	switch {
	case errors.Is(err, cache.ErrScalerNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrNoScalerStore), errors.Is(err, errNoPriceSource):
		status, kind = http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, utils.ErrValidation):
		status = http.StatusBadRequest
	case utils.IsClientError(err):
		status = http.StatusUnprocessableEntity
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).WithError(err).Error("Request failed")
		middleware.RecordError(c, err, "request failed")
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Kind: kind})
}

// bindJSON decodes the request body into req and reports a validation error
// when it does not parse or fails its binding rules.
func bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return utils.NewValidationErrorf("invalid request body: %v", err)
	}
	return nil
}
