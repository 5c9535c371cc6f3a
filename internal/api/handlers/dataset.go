package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/acoplu/borsa-aslani/internal/middleware"
	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/services"
)

var errNoPriceSource = errors.New("price database not configured")

// PriceSource loads and stores daily bars.
type PriceSource interface {
	GetDailyBars(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error)
	SaveDailyBars(ctx context.Context, series models.PriceSeries) (int64, error)
	ListSymbols(ctx context.Context) ([]string, error)
}

// DatasetHandler serves the tree-ensemble and sequence model datasets.
type DatasetHandler struct {
	preparation *services.PreparationService
	prices      PriceSource
	logger      *logrus.Logger
}

// SeriesRequest names the bars to prepare. Bars in the body take
// precedence; without them the bars of Symbol between From and To are
// loaded from the price database.
type SeriesRequest struct {
	Symbol string       `json:"symbol" binding:"required"`
	Bars   []BarPayload `json:"bars" binding:"dive"`
	From   string       `json:"from"`
	To     string       `json:"to"`
}

// TreeRequest is the body of POST /datasets/tree.
type TreeRequest struct {
	SeriesRequest
	TargetColumn string `json:"target_column"`
}

// SequenceRequest is the body of POST /datasets/sequence.
type SequenceRequest struct {
	SeriesRequest
	SeqLength    int    `json:"seq_length" binding:"gte=0"`
	MinWindows   int    `json:"min_windows" binding:"gte=0"`
	TargetColumn string `json:"target_column"`
	SplitDate    string `json:"split_date"`
}

// InferenceRequest is the body of POST /datasets/sequence/inference.
type InferenceRequest struct {
	SeriesRequest
	SeqLength    int    `json:"seq_length" binding:"gte=0"`
	TargetColumn string `json:"target_column"`
	ScalerID     string `json:"scaler_id" binding:"required,uuid"`
}

// SequenceResponse is a sequence dataset with the scaler state id that
// inference requests must present.
type SequenceResponse struct {
	*services.SequenceDataset
	ScalerID string `json:"scaler_id"`
}

// NewDatasetHandler creates a handler. prices may be nil, in which case
// requests must carry their bars.
func NewDatasetHandler(preparation *services.PreparationService, prices PriceSource, logger *logrus.Logger) *DatasetHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DatasetHandler{preparation: preparation, prices: prices, logger: logger}
}

// PrepareTree handles POST /api/v1/datasets/tree.
func (h *DatasetHandler) PrepareTree(c *gin.Context) {
	var req TreeRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	series, err := h.loadSeries(c, req.SeriesRequest)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ds, err := h.preparation.PrepareTreeDataset(c.Request.Context(), series, req.TargetColumn)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

// PrepareSequence handles POST /api/v1/datasets/sequence.
func (h *DatasetHandler) PrepareSequence(c *gin.Context) {
	var req SequenceRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	splitDate, err := parseOptionalDate("split_date", req.SplitDate)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	series, err := h.loadSeries(c, req.SeriesRequest)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ds, err := h.preparation.PrepareSequenceDataset(c.Request.Context(), series, services.SequenceRequest{
		SeqLength:    req.SeqLength,
		MinWindows:   req.MinWindows,
		TargetColumn: req.TargetColumn,
		SplitDate:    splitDate,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SequenceResponse{SequenceDataset: ds, ScalerID: ds.Scaler.ID().String()})
}

// PrepareInference handles POST /api/v1/datasets/sequence/inference.
func (h *DatasetHandler) PrepareInference(c *gin.Context) {
	var req InferenceRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	series, err := h.loadSeries(c, req.SeriesRequest)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ds, err := h.preparation.PrepareSequenceInference(c.Request.Context(), series, services.SequenceRequest{
		SeqLength:    req.SeqLength,
		TargetColumn: req.TargetColumn,
	}, req.ScalerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

func (h *DatasetHandler) loadSeries(c *gin.Context, req SeriesRequest) (models.PriceSeries, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	middleware.AddSpanAttribute(c, "pipeline.symbol", symbol)
	middleware.AddSpanAttribute(c, "pipeline.bars", len(req.Bars))
	if len(req.Bars) > 0 {
		return toSeries(symbol, req.Bars)
	}
	if h.prices == nil {
		return models.PriceSeries{}, errNoPriceSource
	}

	from, err := parseOptionalDate("from", req.From)
	if err != nil {
		return models.PriceSeries{}, err
	}
	to, err := parseOptionalDate("to", req.To)
	if err != nil {
		return models.PriceSeries{}, err
	}
	return h.prices.GetDailyBars(c.Request.Context(), symbol, from, to)
}
