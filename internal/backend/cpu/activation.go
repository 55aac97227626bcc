package cpu

import (
	"github.com/chewxy/math32"
)

// Sigmoid returns 1 / (1 + exp(-x)).
func Sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// Tanh returns the hyperbolic tangent of x.
func Tanh(x float32) float32 {
	return math32.Tanh(x)
}

// ClipByValue clamps every element of x into [lower, upper] in place.
func ClipByValue(lower, upper float32, x []float32) {
	for i, v := range x {
		switch {
		case v < lower:
			x[i] = lower
		case v > upper:
			x[i] = upper
		}
	}
}

// Sign returns -1, 0 or 1 according to the sign of x.
func Sign(x float32) float32 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
