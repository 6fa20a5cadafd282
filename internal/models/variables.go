package models

import (
	"strconv"
	"strings"
	"time"
)

// VariableTable maps placeholder names to resolved values for one generation request.
// Values are string, time.Time, numeric, bool, or nil.
type VariableTable map[string]any

// ValueFormat controls how non-string values are rendered into documents.
type ValueFormat struct {
	DateLayout string
	TrueLabel  string
	FalseLabel string
}

// DefaultValueFormat is used when no format is configured.
var DefaultValueFormat = ValueFormat{DateLayout: "02/01/2006", TrueLabel: "Sí", FalseLabel: "No"}

// FormatValue renders v as document text. The second result is false for nil.
func (f ValueFormat) FormatValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.Format(f.DateLayout), true
	case *time.Time:
		if x == nil || x.IsZero() {
			return "", false
		}
		return x.Format(f.DateLayout), true
	case bool:
		if x {
			return f.TrueLabel, true
		}
		return f.FalseLabel, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case interface{ String() string }:
		return x.String(), true
	default:
		return "", false
	}
}

// IsEmptyValue reports whether v counts as "no data" for validation.
func IsEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case time.Time:
		return x.IsZero()
	case *time.Time:
		return x == nil || x.IsZero()
	}
	return false
}
