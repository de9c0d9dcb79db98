package vector

import "math"

// Epsilon keeps normalization finite for zero vectors.
const Epsilon = 1e-12

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns v / (‖v‖ + Epsilon) as a new slice.
// A zero vector stays zero.
func Normalize(v []float32) []float32 {
	d := Norm(v) + Epsilon
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / d)
	}
	return out
}

// Dot returns the inner product of a and b. Both must have the same length.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
