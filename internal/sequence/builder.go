// Package sequence turns a scaled feature frame into fixed-length sliding
// windows paired with the next-step value of a target column.
package sequence

import (
	"time"

	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/utils"
)

// Build produces max(0, n-seqLength) windows. Window k holds rows
// [k, k+seqLength) of every column and its target is row k+seqLength of
// targetColumn, so no window ever contains its own target row.
func Build(frame *models.Frame, seqLength int, targetColumn string) (*models.SequenceSet, error) {
	if seqLength <= 0 {
		return nil, utils.NewValidationErrorf("sequence length must be positive, got %d", seqLength)
	}
	target := frame.ColumnIndex(targetColumn)
	if target < 0 {
		return nil, &utils.SchemaMismatchError{Column: targetColumn}
	}

	n := frame.Len()
	count := max(0, n-seqLength)
	index := frame.Index()
	rows := frame.Rows()

	set := &models.SequenceSet{
		Windows:      make([][][]float64, count),
		Targets:      make([]float64, count),
		WindowStarts: make([]time.Time, count),
		TargetDates:  make([]time.Time, count),
		SeqLength:    seqLength,
		Columns:      frame.Columns(),
		TargetColumn: target,
	}
	for k := 0; k < count; k++ {
		set.Windows[k] = rows[k : k+seqLength : k+seqLength]
		set.Targets[k] = rows[k+seqLength][target]
		set.WindowStarts[k] = index[k]
		set.TargetDates[k] = index[k+seqLength]
	}
	return set, nil
}

// BuildAtLeast is Build with a floor on the number of windows. It returns an
// InsufficientHistoryError when the frame cannot supply minWindows windows.
func BuildAtLeast(frame *models.Frame, seqLength int, targetColumn string, minWindows int) (*models.SequenceSet, error) {
	set, err := Build(frame, seqLength, targetColumn)
	if err != nil {
		return nil, err
	}
	if set.Len() < minWindows {
		return nil, &utils.InsufficientHistoryError{
			Stage:     "sequence",
			Required:  seqLength + minWindows,
			Available: frame.Len(),
		}
	}
	return set, nil
}

// Latest returns the final seqLength rows of frame as a single window, the
// input for a next-step prediction past the end of the data.
func Latest(frame *models.Frame, seqLength int) ([][]float64, error) {
	if seqLength <= 0 {
		return nil, utils.NewValidationErrorf("sequence length must be positive, got %d", seqLength)
	}
	if frame.Len() < seqLength {
		return nil, &utils.InsufficientHistoryError{Stage: "sequence", Required: seqLength, Available: frame.Len()}
	}
	return frame.Slice(frame.Len()-seqLength, frame.Len()).Rows(), nil
}
