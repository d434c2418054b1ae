package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Summary returns the mean of values and its standard error sd/sqrt(n),
// with sd the sample standard deviation. The standard error is NaN when
// fewer than two values are given; both are NaN for no values.
func Summary(values []float64) (mean, stdErr float64) {
	switch len(values) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return values[0], math.NaN()
	}
	mean, sd := stat.MeanStdDev(values, nil)
	return mean, sd / math.Sqrt(float64(len(values)))
}
