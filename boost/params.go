// Package boost wraps the scigo LightGBM trainer as a binary classifier with
// tree-model hyperparameter names (tree_depth, min_n, loss_reduction,
// sample_size, mtry, learn_rate).
package boost

import (
	"math"

	"github.com/YuminosukeSato/scigo/sklearn/lightgbm"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// maxTreeDepth caps TreeDepth; NumLeaves is derived from it as 2^depth.
const maxTreeDepth = 15

// Params are the hyperparameters of one classifier.
type Params struct {
	// Trees is the number of boosting iterations.
	Trees int `json:"trees"`
	// TreeDepth is the maximum depth of each tree.
	TreeDepth int `json:"tree_depth"`
	// MinN is the minimum number of rows in a leaf.
	MinN int `json:"min_n"`
	// LossReduction is the minimum gain required to split a node.
	LossReduction float64 `json:"loss_reduction"`
	// SampleSize is the fraction of rows drawn for each tree.
	SampleSize float64 `json:"sample_size"`
	// Mtry is the number of predictors drawn for each tree.
	Mtry int `json:"mtry"`
	// LearnRate is the shrinkage applied to each tree.
	LearnRate float64 `json:"learn_rate"`
	// Seed drives row and column sampling.
	Seed int64 `json:"seed"`
}

// DefaultParams mirrors the fixed settings of the tuned workflow with
// mid-range values for the tuned ones. Mtry of 0 means all predictors.
func DefaultParams() Params {
	return Params{
		Trees:         1000,
		TreeDepth:     6,
		MinN:          20,
		LossReduction: 0,
		SampleSize:    1,
		LearnRate:     0.1,
		Seed:          1,
	}
}

// Validate checks the parameters against the number of predictors p.
func (p Params) Validate(nFeatures int) error {
	switch {
	case p.Trees < 1:
		return vberrors.NewValidationError("trees", "must be at least 1", p.Trees)
	case p.TreeDepth < 1 || p.TreeDepth > maxTreeDepth:
		return vberrors.NewValidationError("tree_depth", "must be in [1, 15]", p.TreeDepth)
	case p.MinN < 1:
		return vberrors.NewValidationError("min_n", "must be at least 1", p.MinN)
	case p.LossReduction < 0 || math.IsNaN(p.LossReduction):
		return vberrors.NewValidationError("loss_reduction", "must be non-negative", p.LossReduction)
	case p.SampleSize <= 0 || p.SampleSize > 1:
		return vberrors.NewValidationError("sample_size", "must be in (0, 1]", p.SampleSize)
	case p.Mtry < 0 || p.Mtry > nFeatures:
		return vberrors.NewValidationError("mtry", "must be in [1, number of predictors]", p.Mtry)
	case p.LearnRate <= 0 || math.IsNaN(p.LearnRate):
		return vberrors.NewValidationError("learn_rate", "must be positive", p.LearnRate)
	}
	return nil
}

// minGainToSplit is the smallest split gain the trainer accepts; a
// loss_reduction below it is raised to it.
const minGainToSplit = 1e-7

// TrainingParams maps p onto the scigo trainer for nFeatures predictors.
// Binning and the gain floor match lightgbm.LGBMClassifier.
//
// mtry becomes a feature fraction. The trainer draws int(p*fraction)
// columns, so half a column is added to land exactly on mtry; a fraction of
// 1 or more disables column sampling.
func (p Params) TrainingParams(nFeatures int) lightgbm.TrainingParams {
	featureFraction := 1.0
	if p.Mtry > 0 && p.Mtry < nFeatures {
		featureFraction = (float64(p.Mtry) + 0.5) / float64(nFeatures)
	}
	baggingFreq := 0
	if p.SampleSize < 1 {
		baggingFreq = 1
	}

	return lightgbm.TrainingParams{
		NumIterations:   p.Trees,
		LearningRate:    p.LearnRate,
		NumLeaves:       1 << p.TreeDepth,
		MaxDepth:        p.TreeDepth,
		MinDataInLeaf:   p.MinN,
		MinGainToSplit:  math.Max(p.LossReduction, minGainToSplit),
		BaggingFraction: p.SampleSize,
		BaggingFreq:     baggingFreq,
		FeatureFraction: featureFraction,
		MaxBin:          255,
		MinDataInBin:    3,
		Objective:       string(lightgbm.BinaryLogistic),
		NumClass:        1,
		Seed:            int(p.Seed),
		Deterministic:   true,
		Verbosity:       -1,
	}
}
