package domain

import "math"

// AddPoints returns a+b, failing with ErrValidation when the sum does not fit in int64.
func AddPoints(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, Invalid("points total %d%+d is out of range", a, b)
	}
	return a + b, nil
}
