package fu

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

func Mean(a []float64) float64 {
	if len(a) == 0 {
		return math.NaN()
	}
	return floats.Sum(a) / float64(len(a))
}

func Mse(a, b []float64) float64 {
	var c float64
	for i, x := range a {
		q := x - b[i]
		c += q * q
	}
	return c / float64(len(a))
}

/*
Rmse is the root of mean squared error between prediction and truth
*/
func Rmse(a, b []float64) float64 {
	return math.Sqrt(Mse(a, b))
}

/*
Indmind returns index of the minimal value, the first one if there are several
*/
func Indmind(a []float64) int {
	if len(a) == 0 {
		return -1
	}
	return floats.MinIdx(a)
}

/*
Fnzd returns the first non-zero value
*/
func Fnzd(a ...float64) float64 {
	for _, x := range a {
		if x != 0 {
			return x
		}
	}
	return 0
}

func Finite(a []float64) bool {
	for _, x := range a {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func Clampd(x, min, max float64) float64 {
	return math.Max(min, math.Min(max, x))
}
