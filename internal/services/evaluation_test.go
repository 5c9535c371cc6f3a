package services

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acoplu/borsa-aslani/internal/utils"
)

func TestComputeMetrics(t *testing.T) {
	m, err := ComputeMetrics([]float64{1, 2, 3}, []float64{1, 2, 5})
	require.NoError(t, err)

	assert.Equal(t, 3, m.Samples)
	assert.True(t, m.MSE.Equal(decimal.RequireFromString("1.333333")), m.MSE.String())
	assert.True(t, m.RMSE.Equal(decimal.RequireFromString("1.154701")), m.RMSE.String())
	assert.True(t, m.MAE.Equal(decimal.RequireFromString("0.666667")), m.MAE.String())
}

func TestComputeMetrics_PerfectPrediction(t *testing.T) {
	values := []float64{101.5, 102.25, 99.75}
	m, err := ComputeMetrics(values, values)
	require.NoError(t, err)
	assert.True(t, m.MSE.IsZero())
	assert.True(t, m.RMSE.IsZero())
	assert.True(t, m.MAE.IsZero())
}

func TestComputeMetrics_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		yPred []float64
	}{
		{"empty", nil, nil},
		{"length mismatch", []float64{1, 2}, []float64{1}},
		{"not finite", []float64{1, math.NaN()}, []float64{1, 2}},
		{"infinite prediction", []float64{1, 2}, []float64{1, math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeMetrics(tt.yTrue, tt.yPred)
			assert.ErrorIs(t, err, utils.ErrValidation)
		})
	}
}
