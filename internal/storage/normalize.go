package storage

import "fmt"

// NormalizeValue converts a driver-scanned value to one of nil, int64,
// float64 or string, so catalog readers see the same Go types from every
// backend.
//
// Backends must not assume a particular underlying type for scanned values;
// this helper keeps SelectAll results consistent.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int64, float64, string:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint8:
		return int64(t)
	case float32:
		return float64(t)
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}
