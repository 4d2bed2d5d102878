// Package safe provides overflow checked integer conversions.
package safe

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow reports a value outside the target type's range.
var ErrOverflow = errors.New("integer out of range")

// Integer is any built-in integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Int32 converts v to int32, the width of the height and size columns.
func Int32[T Integer](v T) (int32, error) {
	if !fits(v, math.MinInt32, math.MaxInt32) {
		return 0, fmt.Errorf("%w: %d does not fit int32", ErrOverflow, v)
	}
	return int32(v), nil
}

func fits[T Integer](v T, lo int64, hi uint64) bool {
	if v < 0 {
		return int64(v) >= lo
	}
	return uint64(v) <= hi
}
