package provider

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// encodeValue converts a row-map value into a driver argument. jsonText
// selects the SQLite convention: everything structured becomes JSON text and
// UUIDs/times become strings.
func encodeValue(v any, jsonText bool) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		if jsonText {
			return x.String(), nil
		}
		return x, nil
	case time.Time:
		if jsonText {
			if x.IsZero() {
				return "", nil
			}
			return x.UTC().Format(time.RFC3339Nano), nil
		}
		return x, nil
	case string, bool, int, int32, int64, float32, float64, []byte:
		return x, nil
	default:
		// Maps, slices and structs persist as JSON.
		data, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value %T: %w", v, err)
		}
		return string(data), nil
	}
}

// encodeRow encodes every schema column present in the row, in column order.
func encodeRow(columns []string, row map[string]any, jsonText bool) ([]any, error) {
	args := make([]any, 0, len(columns))
	for _, col := range columns {
		v, err := encodeValue(row[col], jsonText)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// Distance functions for the in-process SQLite search path. Result ordering
// matches the pgvector operators: cosine distance in [0,2], l2 >= 0, inner
// product negated so smaller is more similar.

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func innerProductDistance(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return -dot
}

func distanceFunc(metric string) func(a, b []float32) float64 {
	switch metric {
	case MetricL2:
		return l2Distance
	case MetricInnerProduct:
		return innerProductDistance
	default:
		return cosineDistance
	}
}
