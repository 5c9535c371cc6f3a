package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/acoplu/borsa-aslani/internal/scaler"
	"github.com/acoplu/borsa-aslani/internal/services"
)

// ScalerRegistry reads and removes stored scaler states.
type ScalerRegistry interface {
	Load(ctx context.Context, id string) (*scaler.State, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// ScalerHandler exposes stored scaler states and converts model output back
// to price units.
type ScalerHandler struct {
	registry ScalerRegistry
	logger   *logrus.Logger
}

// InverseRequest is the body of POST /scalers/:id/inverse.
type InverseRequest struct {
	Column string    `json:"column" binding:"required"`
	Values []float64 `json:"values" binding:"required"`
}

// InverseResponse holds values in original units.
type InverseResponse struct {
	ScalerID string    `json:"scaler_id"`
	Column   string    `json:"column"`
	Values   []float64 `json:"values"`
}

// EvaluateRequest is the body of POST /evaluate. When ScalerID is set both
// series are in scaled units and are converted through Column first.
type EvaluateRequest struct {
	YTrue    []float64 `json:"y_true" binding:"required"`
	YPred    []float64 `json:"y_pred" binding:"required"`
	ScalerID string    `json:"scaler_id"`
	Column   string    `json:"column"`
}

// NewScalerHandler creates a handler. A nil registry answers 503.
func NewScalerHandler(registry ScalerRegistry, logger *logrus.Logger) *ScalerHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ScalerHandler{registry: registry, logger: logger}
}

// ListScalers handles GET /api/v1/scalers.
func (h *ScalerHandler) ListScalers(c *gin.Context) {
	if h.registry == nil {
		respondError(c, h.logger, services.ErrNoScalerStore)
		return
	}
	ids, err := h.registry.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"scalers": ids, "count": len(ids)})
}

// GetScaler handles GET /api/v1/scalers/:id.
func (h *ScalerHandler) GetScaler(c *gin.Context) {
	state, err := h.load(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// DeleteScaler handles DELETE /api/v1/scalers/:id.
func (h *ScalerHandler) DeleteScaler(c *gin.Context) {
	if h.registry == nil {
		respondError(c, h.logger, services.ErrNoScalerStore)
		return
	}
	if err := h.registry.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Inverse handles POST /api/v1/scalers/:id/inverse.
func (h *ScalerHandler) Inverse(c *gin.Context) {
	var req InverseRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	state, err := h.load(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	values, err := state.InverseColumn(req.Column, req.Values)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, InverseResponse{ScalerID: state.ID().String(), Column: req.Column, Values: values})
}

// Evaluate handles POST /api/v1/evaluate.
func (h *ScalerHandler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	yTrue, yPred := req.YTrue, req.YPred
	if req.ScalerID != "" {
		if h.registry == nil {
			respondError(c, h.logger, services.ErrNoScalerStore)
			return
		}
		state, err := h.registry.Load(c.Request.Context(), req.ScalerID)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		column := req.Column
		if column == "" {
			column = "Close"
		}
		if yTrue, err = state.InverseColumn(column, yTrue); err != nil {
			respondError(c, h.logger, err)
			return
		}
		if yPred, err = state.InverseColumn(column, yPred); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	result, err := services.ComputeMetrics(yTrue, yPred)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ScalerHandler) load(c *gin.Context) (*scaler.State, error) {
	if h.registry == nil {
		return nil, services.ErrNoScalerStore
	}
	return h.registry.Load(c.Request.Context(), c.Param("id"))
}
