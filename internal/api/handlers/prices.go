package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PriceHandler stores and lists daily bars in the price database.
type PriceHandler struct {
	prices PriceSource
	logger *logrus.Logger
}

// SavePricesRequest is the body of PUT /prices/:symbol.
type SavePricesRequest struct {
	Bars []BarPayload `json:"bars" binding:"required,min=1,dive"`
}

// NewPriceHandler creates a handler. A nil source answers 503.
func NewPriceHandler(prices PriceSource, logger *logrus.Logger) *PriceHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PriceHandler{prices: prices, logger: logger}
}

// ListSymbols handles GET /api/v1/prices.
func (h *PriceHandler) ListSymbols(c *gin.Context) {
	if h.prices == nil {
		respondError(c, h.logger, errNoPriceSource)
		return
	}
	symbols, err := h.prices.ListSymbols(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols, "count": len(symbols)})
}

// GetPrices handles GET /api/v1/prices/:symbol?from=&to=.
func (h *PriceHandler) GetPrices(c *gin.Context) {
	if h.prices == nil {
		respondError(c, h.logger, errNoPriceSource)
		return
	}
	from, err := parseOptionalDate("from", c.Query("from"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	to, err := parseOptionalDate("to", c.Query("to"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	series, err := h.prices.GetDailyBars(c.Request.Context(), strings.ToUpper(c.Param("symbol")), from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": series.Symbol, "count": series.Len(), "bars": fromSeries(series)})
}

// SavePrices handles PUT /api/v1/prices/:symbol.
func (h *PriceHandler) SavePrices(c *gin.Context) {
	if h.prices == nil {
		respondError(c, h.logger, errNoPriceSource)
		return
	}
	var req SavePricesRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	series, err := toSeries(strings.ToUpper(c.Param("symbol")), req.Bars)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	written, err := h.prices.SaveDailyBars(c.Request.Context(), series)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": series.Symbol, "written": written})
}
