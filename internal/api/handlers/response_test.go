package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acoplu/borsa-aslani/internal/cache"
	"github.com/acoplu/borsa-aslani/internal/services"
	"github.com/acoplu/borsa-aslani/internal/utils"
)

func ptr(v float64) *float64 { return &v }

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tests := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{"validation", utils.NewValidationError("bad input"), http.StatusBadRequest, "validation", "bad input"},
		{"empty input", &utils.EmptyInputError{Stage: "enrich"}, http.StatusUnprocessableEntity, "empty_input", ""},
		{"insufficient history", fmt.Errorf("AAPL: %w", &utils.InsufficientHistoryError{Stage: "sequence", Required: 61, Available: 40}), http.StatusUnprocessableEntity, "insufficient_history", ""},
		{"degenerate column", &utils.DegenerateColumnError{Column: "Volume"}, http.StatusUnprocessableEntity, "degenerate_column", ""},
		{"schema mismatch", &utils.SchemaMismatchError{Column: "Adj Close"}, http.StatusUnprocessableEntity, "schema_mismatch", ""},
		{"scaler not found", fmt.Errorf("%w: abc", cache.ErrScalerNotFound), http.StatusNotFound, "not_found", ""},
		{"no store", services.ErrNoScalerStore, http.StatusServiceUnavailable, "unavailable", ""},
		{"no database", errNoPriceSource, http.StatusServiceUnavailable, "unavailable", ""},
		{"internal", errors.New("dial tcp: refused"), http.StatusInternalServerError, "internal", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, logger, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.kind, resp.Kind)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Error)
			}
		})
	}
}

func TestToSeries(t *testing.T) {
	series, err := toSeries("AAPL", []BarPayload{
		{Date: "2024-01-02", Open: ptr(1), High: ptr(2), Low: ptr(0.5), Close: ptr(1.5), Volume: ptr(100)},
		{Date: "2024-01-03T00:00:00Z", Open: ptr(1.5), High: nil, Low: ptr(1), Close: ptr(2), Volume: ptr(120)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC), series.Bars[1].Date)
	assert.True(t, math.IsNaN(series.Bars[1].High))

	payload := fromSeries(series)
	assert.Equal(t, "2024-01-03", payload[1].Date)
	assert.Nil(t, payload[1].High)
	assert.Equal(t, 2.0, *payload[1].Close)

	_, err = toSeries("AAPL", []BarPayload{{Date: "soon"}})
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = toSeries("AAPL", []BarPayload{{Date: "2024-01-03"}, {Date: "2024-01-02"}})
	assert.ErrorIs(t, err, utils.ErrValidation)
}
