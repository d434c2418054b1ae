package tune

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/YuminosukeSato/vbtune/boost"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

var _ distmv.Quantiler = Space(nil)

// Candidate is one hyperparameter configuration of the grid.
type Candidate struct {
	// ID is "Model01".."ModelNN" in grid order.
	ID string `json:"id"`

	TreeDepth     int     `json:"tree_depth"`
	MinN          int     `json:"min_n"`
	LossReduction float64 `json:"loss_reduction"`
	SampleSize    float64 `json:"sample_size"`
	Mtry          int     `json:"mtry"`
	LearnRate     float64 `json:"learn_rate"`
}

// Value returns the parameter called name.
func (c Candidate) Value(name string) (float64, bool) {
	switch name {
	case TreeDepth:
		return float64(c.TreeDepth), true
	case MinN:
		return float64(c.MinN), true
	case LossReduction:
		return c.LossReduction, true
	case SampleSize:
		return c.SampleSize, true
	case Mtry:
		return float64(c.Mtry), true
	case LearnRate:
		return c.LearnRate, true
	}
	return 0, false
}

// String renders the parameters compactly for logs and reports.
func (c Candidate) String() string {
	return fmt.Sprintf("%s{mtry=%d min_n=%d tree_depth=%d learn_rate=%.3g loss_reduction=%.3g sample_size=%.3f}",
		c.ID, c.Mtry, c.MinN, c.TreeDepth, c.LearnRate, c.LossReduction, c.SampleSize)
}

// Finalize turns c into classifier parameters, taking the fixed settings
// (number of trees, seed) from base.
func Finalize(c Candidate, base boost.Params) boost.Params {
	p := base
	p.TreeDepth = c.TreeDepth
	p.MinN = c.MinN
	p.LossReduction = c.LossReduction
	p.SampleSize = c.SampleSize
	p.Mtry = c.Mtry
	p.LearnRate = c.LearnRate
	return p
}

// CandidateIDs names n candidates "Model01".."ModelNN".
func CandidateIDs(n int) []string {
	return sequenceIDs("Model", n)
}

// LatinHypercube draws size candidates from space with gonum's Latin
// hypercube sampler, so each parameter's range is split into size strata
// and every stratum is used once. The space must be finalized and contain
// the six boosted-tree parameters.
func LatinHypercube(space Space, size int, seed int64) ([]Candidate, error) {
	if size < 1 {
		return nil, vberrors.NewValidationError("grid_size", "must be at least 1", size)
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	col := make(map[string]int, len(space))
	for i, p := range space {
		col[p.Name] = i
	}
	for _, name := range []string{TreeDepth, MinN, LossReduction, SampleSize, Mtry, LearnRate} {
		if _, ok := col[name]; !ok {
			return nil, vberrors.NewValidationError(name, "missing from search space", nil)
		}
	}

	batch := mat.NewDense(size, space.Dim(), nil)
	samplemv.LatinHypercube{
		Q:   space,
		Src: rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15),
	}.Sample(batch)

	ids := CandidateIDs(size)
	out := make([]Candidate, size)
	for i := range out {
		row := batch.RawRowView(i)
		out[i] = Candidate{
			ID:            ids[i],
			TreeDepth:     int(row[col[TreeDepth]]),
			MinN:          int(row[col[MinN]]),
			LossReduction: row[col[LossReduction]],
			SampleSize:    row[col[SampleSize]],
			Mtry:          int(row[col[Mtry]]),
			LearnRate:     row[col[LearnRate]],
		}
	}
	return out, nil
}
