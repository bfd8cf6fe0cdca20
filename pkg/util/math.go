package util

import "math"

// Round rounds half away from zero to the given number of decimals.
func Round(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}

// Trunc drops digits past the given number of decimals.
func Trunc(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Trunc(x*p) / p
}

// Finite reports whether x is neither NaN nor infinite.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
