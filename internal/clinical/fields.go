package clinical

import (
	"time"
)

// Float64 coerces an Avro-decoded field value (float64, float32, int64,
// int32, or int) to float64. ok is false if absent or of an unexpected type.
func Float64(rec map[string]interface{}, key string) (float64, bool) {
	v, present := rec[key]
	if !present || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// String coerces a field to string. ok is false if absent or not a string.
func String(rec map[string]interface{}, key string) (string, bool) {
	v, present := rec[key]
	if !present || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Timestamp coerces a field to time.Time, accepting epoch-millisecond
// numbers, RFC3339 strings, or an already-decoded time.Time.
func Timestamp(rec map[string]interface{}, key string) (time.Time, bool) {
	v, present := rec[key]
	if !present || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		return time.UnixMilli(t).UTC(), true
	}
	return time.Time{}, false
}

// FirstFloat64 tries each key in order, returning the first present value —
// the Go equivalent of the reference extractor's multi-schema-format
// fallback (new flat field name, then older nested alias).
func FirstFloat64(rec map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := Float64(rec, k); ok {
			return v, ok
		}
	}
	return 0, false
}

// FirstTimestamp is Timestamp's multi-key counterpart.
func FirstTimestamp(rec map[string]interface{}, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		if v, ok := Timestamp(rec, k); ok {
			return v, ok
		}
	}
	return time.Time{}, false
}
