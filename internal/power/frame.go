package power

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Frame is the feature table a model scores: one row per datapoint, the
// request metrics first and the system features broadcast as constant
// columns after them.
type Frame struct {
	index   map[string]int
	labels  map[string]string
	Columns []string
	Rows    [][]float64
}

// NewFrame builds a frame from a metric table and its system features.
// Every row must have one value per metric and every system feature one
// value. Non-numeric system values are kept as labels and read as NaN.
func NewFrame(metrics []string, values [][]float64, systemFeatures []string, systemValues []any) (*Frame, error) {
	if len(systemFeatures) != len(systemValues) {
		return nil, fmt.Errorf("got %d system values for %d system features", len(systemValues), len(systemFeatures))
	}

	columns := make([]string, 0, len(metrics)+len(systemFeatures))
	columns = append(columns, metrics...)
	columns = append(columns, systemFeatures...)

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate feature %q", c)
		}
		index[c] = i
	}

	labels := make(map[string]string, len(systemFeatures))
	constants := make([]float64, len(systemFeatures))
	for i, feature := range systemFeatures {
		label, number, err := systemValue(systemValues[i])
		if err != nil {
			return nil, fmt.Errorf("system feature %q: %w", feature, err)
		}
		labels[feature] = label
		constants[i] = number
	}

	rows := make([][]float64, len(values))
	for i, row := range values {
		if len(row) != len(metrics) {
			return nil, fmt.Errorf("row %d has %d values for %d metrics", i, len(row), len(metrics))
		}
		full := make([]float64, 0, len(columns))
		full = append(full, row...)
		full = append(full, constants...)
		rows[i] = full
	}

	return &Frame{
		index:   index,
		labels:  labels,
		Columns: columns,
		Rows:    rows,
	}, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Column returns the values of the named column.
func (f *Frame) Column(name string) ([]float64, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}

	out := make([]float64, len(f.Rows))
	for r, row := range f.Rows {
		out[r] = row[i]
	}
	return out, true
}

// Label returns the raw string form of a system feature value.
func (f *Frame) Label(feature string) (string, bool) {
	label, ok := f.labels[feature]
	return label, ok
}

func systemValue(v any) (string, float64, error) {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return "", 0, err
		}
		return x.String(), n, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), x, nil
	case int:
		return strconv.Itoa(x), float64(x), nil
	case string:
		if n, err := strconv.ParseFloat(x, 64); err == nil {
			return x, n, nil
		}
		return x, math.NaN(), nil
	case bool:
		if x {
			return "true", 1, nil
		}
		return "false", 0, nil
	default:
		return "", 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}
