package filters

import (
	"encoding/json"
	"time"

	"github.com/spf13/cast"
)

// NormalizeValue applies structural value normalization:
//
//   - booleans become 0/1 (the Check column representation)
//   - maps serialize to JSON text
//   - slices normalize element-wise; an empty slice becomes a single
//     empty-string element so IN () is never rendered
//   - everything else passes through unchanged
//
// Metadata-dependent conversions (date truncation on Date fields, between
// range expansion on Datetime fields) are applied later by the engine,
// which has access to field definitions.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case bool:
		return int64(cast.ToInt(val))
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		return string(b)
	case []any:
		if len(val) == 0 {
			return []any{""}
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	case time.Time:
		return val
	default:
		return v
	}
}

// IsEmptyValue reports whether a filter value is nil or an empty
// collection after normalization.
func IsEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.([]any); ok {
		return len(s) == 0
	}
	return false
}
