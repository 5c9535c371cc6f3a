package models

import "time"

// SequenceSet holds sliding windows for the sequence model. Window k covers
// rows [k, k+SeqLength) of the source matrix and Targets[k] is the value of
// TargetColumn at row k+SeqLength.
type SequenceSet struct {
	Windows      [][][]float64 `json:"windows"`
	Targets      []float64     `json:"targets"`
	WindowStarts []time.Time   `json:"window_starts"`
	TargetDates  []time.Time   `json:"target_dates"`
	SeqLength    int           `json:"seq_length"`
	Columns      []string      `json:"columns"`
	TargetColumn int           `json:"target_column"`
}

// Len returns the number of windows.
func (s *SequenceSet) Len() int {
	return len(s.Targets)
}

// Shape returns (num_windows, seq_length, num_columns).
func (s *SequenceSet) Shape() [3]int {
	return [3]int{len(s.Windows), s.SeqLength, len(s.Columns)}
}

// FeatureTarget is the tree-ensemble input: the feature table and the target
// values, aligned row for row.
type FeatureTarget struct {
	Features   *Frame    `json:"features"`
	Target     []float64 `json:"target"`
	TargetName string    `json:"target_name"`
}
