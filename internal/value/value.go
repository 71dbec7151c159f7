// Package value normalizes and compares column values so that values set in code
// and values read back from a store agree.
package value

import (
	"math"
	"reflect"
	"time"
)

// Normalize widens integers to int64 and float32 to float64. Unsigned values
// above math.MaxInt64 are kept as uint64.
func Normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		if uint64(n) > math.MaxInt64 {
			return uint64(n)
		}
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return n
		}
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// Equal reports whether a and b hold the same column value. Times are equal when
// they denote the same instant, whatever their location or monotonic reading.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if ta, ok := asTime(a); ok {
		tb, ok := asTime(b)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	default:
		return time.Time{}, false
	}
}
