package features

import (
	"github.com/acoplu/borsa-aslani/internal/models"
)

// SplitFeaturesTarget separates the target column from the feature table.
// Rows stay aligned; a missing target column is a schema mismatch.
func SplitFeaturesTarget(frame *models.Frame, targetColumn string) (*models.FeatureTarget, error) {
	target, err := frame.Column(targetColumn)
	if err != nil {
		return nil, err
	}
	features, err := frame.Drop(targetColumn)
	if err != nil {
		return nil, err
	}
	return &models.FeatureTarget{
		Features:   features,
		Target:     target,
		TargetName: targetColumn,
	}, nil
}
