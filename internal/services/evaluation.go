package services

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/acoplu/borsa-aslani/internal/utils"
)

// metricsPrecision is the number of decimal places kept in reported errors.
const metricsPrecision = 6

// EvaluationMetrics summarises prediction error in the units of the target.
type EvaluationMetrics struct {
	Samples int             `json:"samples"`
	MSE     decimal.Decimal `json:"mse"`
	RMSE    decimal.Decimal `json:"rmse"`
	MAE     decimal.Decimal `json:"mae"`
}

// ComputeMetrics compares predictions with observed values. Both slices must
// be non-empty, of equal length and finite.
func ComputeMetrics(yTrue, yPred []float64) (*EvaluationMetrics, error) {
	if len(yTrue) == 0 {
		return nil, utils.NewValidationError("no samples to evaluate")
	}
	if len(yTrue) != len(yPred) {
		return nil, utils.NewValidationErrorf("%d observed values but %d predictions", len(yTrue), len(yPred))
	}

	var sumSquared, sumAbs float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		if math.IsNaN(diff) || math.IsInf(diff, 0) {
			return nil, utils.NewValidationErrorf("sample %d is not a finite number", i)
		}
		sumSquared += diff * diff
		sumAbs += math.Abs(diff)
	}

	n := float64(len(yTrue))
	mse := sumSquared / n
	return &EvaluationMetrics{
		Samples: len(yTrue),
		MSE:     decimal.NewFromFloat(mse).Round(metricsPrecision),
		RMSE:    decimal.NewFromFloat(math.Sqrt(mse)).Round(metricsPrecision),
		MAE:     decimal.NewFromFloat(sumAbs / n).Round(metricsPrecision),
	}, nil
}
