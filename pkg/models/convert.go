package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Row scan helpers. Providers hand back column-value maps whose concrete
// types differ by driver (pgx returns native types, sqlite returns TEXT for
// JSON columns), so scanning is tolerant of the common encodings.

func rowUUID(row map[string]any, col string) (uuid.UUID, error) {
	v, ok := row[col]
	if !ok || v == nil {
		return uuid.Nil, nil
	}
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case [16]byte:
		return uuid.UUID(t), nil
	case string:
		return uuid.Parse(t)
	case []byte:
		return uuid.ParseBytes(t)
	default:
		return uuid.Nil, fmt.Errorf("column %s: cannot scan %T as uuid", col, v)
	}
}

func rowString(row map[string]any, col string) string {
	v, ok := row[col]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func rowInt64(row map[string]any, col string) int64 {
	switch t := row[col].(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func rowFloat64(row map[string]any, col string) float64 {
	switch t := row[col].(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func rowTime(row map[string]any, col string) time.Time {
	switch t := row[col].(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func rowJSON(row map[string]any, col string, out any) error {
	v, ok := row[col]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []byte:
		if len(t) == 0 {
			return nil
		}
		return json.Unmarshal(t, out)
	case string:
		if t == "" {
			return nil
		}
		return json.Unmarshal([]byte(t), out)
	case map[string]any:
		// pgx decodes jsonb to map[string]any directly
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	case []any:
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	default:
		return fmt.Errorf("column %s: cannot scan %T as json", col, v)
	}
}

func rowStrings(row map[string]any, col string) []string {
	var out []string
	_ = rowJSON(row, col, &out)
	return out
}
