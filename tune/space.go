// Package tune searches boosted-tree hyperparameters: a six-parameter
// search space, a Latin hypercube grid over it, resampled evaluation of every
// candidate on cross-validation folds, and selection of the best candidate.
package tune

import (
	"math"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// Parameter names.
const (
	TreeDepth     = "tree_depth"
	MinN          = "min_n"
	LossReduction = "loss_reduction"
	SampleSize    = "sample_size"
	Mtry          = "mtry"
	LearnRate     = "learn_rate"
)

// Scale is how a parameter range is traversed.
type Scale int

const (
	// Linear samples uniformly between the bounds.
	Linear Scale = iota
	// Log10 samples uniformly between the bounds in log10 units; the bounds
	// are exponents.
	Log10
)

// Param is one dimension of the search space.
type Param struct {
	Name    string
	Lower   float64
	Upper   float64
	Scale   Scale
	Integer bool
	// Unknown is set while a bound depends on the data (mtry's upper bound
	// is the number of predictors).
	Unknown bool
}

// Value maps p in [0, 1) onto the parameter range. Integer parameters take
// each integer in [Lower, Upper] with equal probability.
func (prm Param) Value(p float64) float64 {
	switch {
	case prm.Integer:
		v := math.Floor(prm.Lower + p*(prm.Upper-prm.Lower+1))
		return math.Min(math.Max(v, prm.Lower), prm.Upper)
	case prm.Scale == Log10:
		return math.Pow(10, prm.Lower+p*(prm.Upper-prm.Lower))
	default:
		return prm.Lower + p*(prm.Upper-prm.Lower)
	}
}

// Space is an ordered set of parameters.
type Space []Param

// DefaultSpace returns the boosted-tree space:
//
//	tree_depth      integer [1, 15]
//	min_n           integer [2, 40]
//	loss_reduction  log10   [-10, 1.5]
//	sample_size     [0.1, 1]
//	mtry            integer [1, ?]   (finalized from the predictors)
//	learn_rate      log10   [-10, -1]
func DefaultSpace() Space {
	return Space{
		{Name: TreeDepth, Lower: 1, Upper: 15, Integer: true},
		{Name: MinN, Lower: 2, Upper: 40, Integer: true},
		{Name: LossReduction, Lower: -10, Upper: 1.5, Scale: Log10},
		{Name: SampleSize, Lower: 0.1, Upper: 1},
		{Name: Mtry, Lower: 1, Integer: true, Unknown: true},
		{Name: LearnRate, Lower: -10, Upper: -1, Scale: Log10},
	}
}

// Finalize returns a copy of s with data-dependent bounds set from the
// number of predictors.
func (s Space) Finalize(nPredictors int) (Space, error) {
	if nPredictors < 1 {
		return nil, vberrors.NewValidationError("predictors", "must be at least 1", nPredictors)
	}
	out := make(Space, len(s))
	copy(out, s)
	for i := range out {
		if out[i].Name == Mtry && out[i].Unknown {
			out[i].Upper = float64(nPredictors)
			out[i].Unknown = false
		}
	}
	return out, nil
}

// Validate reports unknown bounds and empty ranges.
func (s Space) Validate() error {
	if len(s) == 0 {
		return vberrors.NewValidationError("space", "no parameters", 0)
	}
	for _, p := range s {
		if p.Unknown {
			return vberrors.NewValidationError(p.Name, "range has an unknown bound; call Finalize first", p.Upper)
		}
		if p.Upper < p.Lower {
			return vberrors.NewValidationError(p.Name, "upper bound below lower bound", p.Upper)
		}
	}
	return nil
}

// Quantile implements distmv.Quantiler: x[i] is parameter i evaluated at
// the unit quantile p[i].
func (s Space) Quantile(x, p []float64) []float64 {
	if x == nil {
		x = make([]float64, len(s))
	}
	for i, prm := range s {
		x[i] = prm.Value(p[i])
	}
	return x
}

// Dim returns the number of parameters.
func (s Space) Dim() int {
	return len(s)
}
