package backend

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Row is a single record as column name to value.
type Row map[string]any

// Has reports whether the column is present and non-nil.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	return ok && v != nil
}

// String returns the column as a string, or "" when missing.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the column as a bool. Integers are true when non-zero.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case []byte:
		b, _ := strconv.ParseBool(string(v))
		return b
	}
	return false
}

// Int64 returns the column as an int64, or 0 when missing or unparsable.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	}
	return 0
}

// Time reads a unix-millisecond column.
func (r Row) Time(col string) time.Time {
	ms := r.Int64(col)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// normalize folds the value shapes drivers and JSON decoders produce so that
// equality filters compare consistently.
func normalize(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		if x == math.Trunc(x) {
			return int64(x)
		}
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UnixMilli()
	}
	return v
}

// Equal compares two column values after normalization.
func Equal(a, b any) bool {
	return normalize(a) == normalize(b)
}
