// Package scaler implements the invertible per-column min-max transform used
// on the sequence-model branch. A State is fit once on a reference
// distribution and then reused unchanged for every transform and inverse.
package scaler

import (
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/utils"
)

// DegeneratePolicy decides what Fit does with a constant column.
type DegeneratePolicy string

const (
	// DegenerateFail rejects a constant column with a DegenerateColumnError.
	DegenerateFail DegeneratePolicy = "fail"
	// DegenerateUnitScale uses scale 1 for a constant column, so its fitted
	// value maps to 0, and records the column on the state.
	DegenerateUnitScale DegeneratePolicy = "unit_scale"
)

// ParseDegeneratePolicy maps a config string to a policy.
func ParseDegeneratePolicy(s string) (DegeneratePolicy, error) {
	switch DegeneratePolicy(s) {
	case "", DegenerateFail:
		return DegenerateFail, nil
	case DegenerateUnitScale:
		return DegenerateUnitScale, nil
	default:
		return "", utils.NewValidationErrorf("unknown degenerate column policy %q", s)
	}
}

type fitOptions struct {
	policy DegeneratePolicy
	now    func() time.Time
}

// Option configures Fit.
type Option func(*fitOptions)

// WithDegeneratePolicy sets the constant-column policy. The default is
// DegenerateFail.
func WithDegeneratePolicy(policy DegeneratePolicy) Option {
	return func(o *fitOptions) { o.policy = policy }
}

// WithClock overrides the fit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *fitOptions) { o.now = now }
}

// State is a fitted min-max transform. Its fields are unexported and no
// method modifies them, so a State can be shared freely.
type State struct {
	id         uuid.UUID
	columns    []string
	min        []float64
	scale      []float64
	degenerate []string
	rows       int
	fittedAt   time.Time
}

// Fit computes per-column min and scale = 1/(max-min) over frame.
func Fit(frame *models.Frame, opts ...Option) (*State, error) {
	o := fitOptions{policy: DegenerateFail, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if frame.Len() == 0 {
		return nil, &utils.EmptyInputError{Stage: "scale"}
	}

	columns := frame.Columns()
	state := &State{
		id:       uuid.New(),
		columns:  columns,
		min:      make([]float64, len(columns)),
		scale:    make([]float64, len(columns)),
		rows:     frame.Len(),
		fittedAt: o.now().UTC(),
	}

	for j, name := range columns {
		values, err := frame.Column(name)
		if err != nil {
			return nil, err
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for i, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, utils.NewValidationErrorf("column %q row %d is not a finite number", name, i)
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}

		state.min[j] = lo
		scale := 1 / (hi - lo)
		if hi == lo || math.IsInf(scale, 0) {
			if o.policy != DegenerateUnitScale {
				return nil, &utils.DegenerateColumnError{Column: name, Value: lo}
			}
			scale = 1
			state.degenerate = append(state.degenerate, name)
		}
		state.scale[j] = scale
	}

	return state, nil
}

// ID identifies the state in storage.
func (s *State) ID() uuid.UUID { return s.id }

// Columns returns the column order the state was fit on.
func (s *State) Columns() []string { return slices.Clone(s.columns) }

// Min returns the per-column minimums.
func (s *State) Min() []float64 { return slices.Clone(s.min) }

// Scale returns the per-column scale factors.
func (s *State) Scale() []float64 { return slices.Clone(s.scale) }

// DegenerateColumns lists columns that were constant at fit time.
func (s *State) DegenerateColumns() []string { return slices.Clone(s.degenerate) }

// Rows is the number of rows the state was fit on.
func (s *State) Rows() int { return s.rows }

// FittedAt is when the state was fit.
func (s *State) FittedAt() time.Time { return s.fittedAt }

// Conforms checks that columns match the fit-time layout exactly.
func (s *State) Conforms(columns []string) error {
	if !slices.Equal(s.columns, columns) {
		return &utils.SchemaMismatchError{Expected: s.Columns(), Got: slices.Clone(columns)}
	}
	return nil
}

// Transform maps each value v to (v-min)*scale. Values outside the fitted
// range land outside [0, 1].
func (s *State) Transform(frame *models.Frame) (*models.Frame, error) {
	return s.apply(frame, func(j int, v float64) float64 {
		return (v - s.min[j]) * s.scale[j]
	})
}

// Inverse maps each value v back to v/scale+min.
func (s *State) Inverse(frame *models.Frame) (*models.Frame, error) {
	return s.apply(frame, func(j int, v float64) float64 {
		return v/s.scale[j] + s.min[j]
	})
}

// InverseColumn converts values of a single column, such as model
// predictions of Close, back to original units.
func (s *State) InverseColumn(column string, values []float64) ([]float64, error) {
	j := slices.Index(s.columns, column)
	if j < 0 {
		return nil, &utils.SchemaMismatchError{Column: column}
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v/s.scale[j] + s.min[j]
	}
	return out, nil
}

func (s *State) apply(frame *models.Frame, fn func(j int, v float64) float64) (*models.Frame, error) {
	if err := s.Conforms(frame.Columns()); err != nil {
		return nil, err
	}
	columns := make([][]float64, len(s.columns))
	for j, name := range s.columns {
		values, err := frame.Column(name)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = fn(j, v)
		}
		columns[j] = values
	}
	return models.NewFrame(frame.Index(), s.Columns(), columns)
}
