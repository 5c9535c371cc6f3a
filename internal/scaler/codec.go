package scaler

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/acoplu/borsa-aslani/internal/utils"
)

// record is the persisted form of a State. Column names are stored next to
// the arrays so a loader can check the layout it is about to apply.
type record struct {
	ID         string    `json:"id"`
	Columns    []string  `json:"columns"`
	Min        []float64 `json:"min"`
	Scale      []float64 `json:"scale"`
	Degenerate []string  `json:"degenerate,omitempty"`
	Rows       int       `json:"rows"`
	FittedAt   time.Time `json:"fitted_at"`
}

// MarshalJSON encodes the state as a record.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{
		ID:         s.id.String(),
		Columns:    s.columns,
		Min:        s.min,
		Scale:      s.scale,
		Degenerate: s.degenerate,
		Rows:       s.rows,
		FittedAt:   s.fittedAt,
	})
}

// UnmarshalJSON restores a state and rejects records that could not have
// come from Fit.
func (s *State) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return utils.NewValidationErrorf("scaler state id %q: %v", r.ID, err)
	}
	if len(r.Columns) == 0 {
		return utils.NewValidationError("scaler state has no columns")
	}
	if len(r.Min) != len(r.Columns) || len(r.Scale) != len(r.Columns) {
		return utils.NewValidationErrorf("scaler state has %d columns, %d minimums and %d scales",
			len(r.Columns), len(r.Min), len(r.Scale))
	}

	seen := make(map[string]struct{}, len(r.Columns))
	for j, name := range r.Columns {
		if _, dup := seen[name]; dup {
			return utils.NewValidationErrorf("scaler state repeats column %q", name)
		}
		seen[name] = struct{}{}
		if math.IsNaN(r.Min[j]) || math.IsInf(r.Min[j], 0) {
			return utils.NewValidationErrorf("scaler state min for %q is not finite", name)
		}
		if r.Scale[j] == 0 || math.IsNaN(r.Scale[j]) || math.IsInf(r.Scale[j], 0) {
			return utils.NewValidationErrorf("scaler state scale for %q is not a finite non-zero number", name)
		}
	}

	*s = State{
		id:         id,
		columns:    r.Columns,
		min:        r.Min,
		scale:      r.Scale,
		degenerate: r.Degenerate,
		rows:       r.Rows,
		fittedAt:   r.FittedAt,
	}
	return nil
}
