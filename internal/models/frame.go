package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/acoplu/borsa-aslani/internal/utils"
)

// Frame is an immutable date-indexed table of named float64 columns.
// Every operation returns a new Frame; column slices are shared between
// frames but never written after construction, and accessors hand out copies.
type Frame struct {
	index   []time.Time
	names   []string
	columns [][]float64
	lookup  map[string]int
}

// NewFrame validates the shapes and builds a frame. Column values are copied.
func NewFrame(index []time.Time, names []string, columns [][]float64) (*Frame, error) {
	if len(names) != len(columns) {
		return nil, utils.NewValidationErrorf("%d column names for %d columns", len(names), len(columns))
	}
	seen := make(map[string]struct{}, len(names))
	copied := make([][]float64, len(columns))
	for j, col := range columns {
		if _, dup := seen[names[j]]; dup {
			return nil, utils.NewValidationErrorf("duplicate column %q", names[j])
		}
		seen[names[j]] = struct{}{}
		if len(col) != len(index) {
			return nil, utils.NewValidationErrorf("column %q has %d values, index has %d", names[j], len(col), len(index))
		}
		copied[j] = append([]float64(nil), col...)
	}
	return newFrameUnchecked(append([]time.Time(nil), index...), append([]string(nil), names...), copied), nil
}

func newFrameUnchecked(index []time.Time, names []string, columns [][]float64) *Frame {
	lookup := make(map[string]int, len(names))
	for j, name := range names {
		lookup[name] = j
	}
	return &Frame{index: index, names: names, columns: columns, lookup: lookup}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.index)
}

// Width returns the number of columns.
func (f *Frame) Width() int {
	return len(f.names)
}

// Index returns a copy of the date index.
func (f *Frame) Index() []time.Time {
	return append([]time.Time(nil), f.index...)
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.names...)
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.lookup[name]
	return ok
}

// ColumnIndex returns the position of name, or -1.
func (f *Frame) ColumnIndex(name string) int {
	if j, ok := f.lookup[name]; ok {
		return j
	}
	return -1
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]float64, error) {
	j, ok := f.lookup[name]
	if !ok {
		return nil, &utils.SchemaMismatchError{Column: name}
	}
	return append([]float64(nil), f.columns[j]...), nil
}

// At returns the value at row i, column j.
func (f *Frame) At(i, j int) float64 {
	return f.columns[j][i]
}

// Row returns row i in column order.
func (f *Frame) Row(i int) []float64 {
	row := make([]float64, len(f.columns))
	for j, col := range f.columns {
		row[j] = col[i]
	}
	return row
}

// Rows returns the frame as a row-major matrix.
func (f *Frame) Rows() [][]float64 {
	rows := make([][]float64, f.Len())
	for i := range rows {
		rows[i] = f.Row(i)
	}
	return rows
}

// WithColumn returns a frame with values appended as column name, or
// replacing an existing column of that name in place.
func (f *Frame) WithColumn(name string, values []float64) (*Frame, error) {
	if len(values) != f.Len() {
		return nil, utils.NewValidationErrorf("column %q has %d values, index has %d", name, len(values), f.Len())
	}
	names := append([]string(nil), f.names...)
	columns := append([][]float64(nil), f.columns...)
	col := append([]float64(nil), values...)
	if j, ok := f.lookup[name]; ok {
		columns[j] = col
	} else {
		names = append(names, name)
		columns = append(columns, col)
	}
	return newFrameUnchecked(f.index, names, columns), nil
}

// Drop returns a frame without the named column.
func (f *Frame) Drop(name string) (*Frame, error) {
	j, ok := f.lookup[name]
	if !ok {
		return nil, &utils.SchemaMismatchError{Column: name}
	}
	names := make([]string, 0, len(f.names)-1)
	columns := make([][]float64, 0, len(f.columns)-1)
	names = append(append(names, f.names[:j]...), f.names[j+1:]...)
	columns = append(append(columns, f.columns[:j]...), f.columns[j+1:]...)
	return newFrameUnchecked(f.index, names, columns), nil
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	columns := make([][]float64, len(names))
	for k, name := range names {
		j, ok := f.lookup[name]
		if !ok {
			return nil, &utils.SchemaMismatchError{Column: name}
		}
		columns[k] = f.columns[j]
	}
	return newFrameUnchecked(f.index, append([]string(nil), names...), columns), nil
}

// Slice returns rows [start, end).
func (f *Frame) Slice(start, end int) *Frame {
	columns := make([][]float64, len(f.columns))
	for j, col := range f.columns {
		columns[j] = col[start:end:end]
	}
	return newFrameUnchecked(f.index[start:end:end], f.names, columns)
}

// DropIncompleteRows returns a frame without the rows that hold a NaN in any
// column, plus the number of rows removed. Row order is preserved.
func (f *Frame) DropIncompleteRows() (*Frame, int) {
	keep := make([]int, 0, f.Len())
	for i := range f.index {
		complete := true
		for _, col := range f.columns {
			if math.IsNaN(col[i]) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}
	if len(keep) == f.Len() {
		return f, 0
	}

	index := make([]time.Time, len(keep))
	for k, i := range keep {
		index[k] = f.index[i]
	}
	columns := make([][]float64, len(f.columns))
	for j, col := range f.columns {
		out := make([]float64, len(keep))
		for k, i := range keep {
			out[k] = col[i]
		}
		columns[j] = out
	}
	return newFrameUnchecked(index, f.names, columns), f.Len() - len(keep)
}

type frameJSON struct {
	Index   []string    `json:"index"`
	Columns []string    `json:"columns"`
	Data    [][]float64 `json:"data"`
}

// MarshalJSON encodes the frame as {index, columns, data} with row-major data
// and dates formatted as YYYY-MM-DD.
func (f *Frame) MarshalJSON() ([]byte, error) {
	index := make([]string, len(f.index))
	for i, d := range f.index {
		index[i] = d.Format(time.DateOnly)
	}
	return json.Marshal(frameJSON{Index: index, Columns: f.names, Data: f.Rows()})
}
