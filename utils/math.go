package utils

import "math"

// Mean2 is the arithmetic mean of two values
func Mean2(a, b float64) float64 {
	return 0.5 * (a + b)
}

// Round returns the nearest integer to x
func Round(x float64) int {
	return int(math.Floor(x + 0.5))
}
