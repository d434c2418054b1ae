package boost

import (
	"fmt"
	"time"

	"github.com/YuminosukeSato/scigo/sklearn/lightgbm"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/vbtune/core/model"
	"github.com/YuminosukeSato/vbtune/pkg/log"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// Threshold is the probability at or above which Predict returns a win.
const Threshold = 0.5

// Classifier is a boosted-tree binary classifier. Labels are 0/1; predicted
// probabilities are for class 1.
type Classifier struct {
	params       Params
	featureNames []string
	state        *model.StateManager
	model        *lightgbm.Model
	predictor    *lightgbm.Predictor
	logger       log.Logger
}

var _ model.Classifier = (*Classifier)(nil)

// New creates an unfitted Classifier.
func New(params Params) *Classifier {
	return &Classifier{
		params: params,
		state:  model.NewStateManager("boost.Classifier"),
		logger: log.GetLoggerWithName("boost"),
	}
}

// Params returns the hyperparameters the classifier was built with.
func (c *Classifier) Params() Params {
	return c.params
}

// SetFeatureNames records predictor names written by Save.
func (c *Classifier) SetFeatureNames(names []string) {
	c.featureNames = append([]string(nil), names...)
	if c.model != nil {
		c.model.FeatureNames = c.featureNames
	}
}

// Fit trains on X (n × p) and the 0/1 labels in y (n × 1).
func (c *Classifier) Fit(X, y mat.Matrix) (err error) {
	defer vberrors.Recover(&err, "boost.Fit")

	n, p := X.Dims()
	if n == 0 || p == 0 {
		return vberrors.NewModelError("boost.Fit", "empty data", vberrors.ErrEmptyData)
	}
	if yn, _ := y.Dims(); yn != n {
		return vberrors.NewDimensionError("boost.Fit", n, yn, 0)
	}
	if err := c.params.Validate(p); err != nil {
		return err
	}

	start := time.Now()
	trainer := lightgbm.NewTrainer(c.params.TrainingParams(p))
	if err := trainer.Fit(X, y); err != nil {
		return vberrors.NewModelError("boost.Fit", "training failed", err)
	}
	c.setModel(trainer.GetModel())
	c.state.SetFitted(p, n)

	c.logger.Debug("model fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// PredictProba returns the probability of a win for each row of X.
func (c *Classifier) PredictProba(X mat.Matrix) (proba []float64, err error) {
	defer vberrors.Recover(&err, "boost.PredictProba")

	if err := c.state.RequireFitted("PredictProba"); err != nil {
		return nil, err
	}
	_, p := X.Dims()
	if err := c.state.RequireFeatures("boost.PredictProba", p); err != nil {
		return nil, err
	}

	// Model.Predict skips the per-tree shrinkage; the Predictor applies it.
	out, err := c.predictor.PredictProba(X)
	if err != nil {
		return nil, vberrors.NewModelError("boost.PredictProba", "prediction failed", err)
	}
	proba = mat.Col(nil, 1, out)
	if err := vberrors.CheckValues("predict_proba", proba, -1); err != nil {
		return nil, err
	}
	return proba, nil
}

// Predict returns 1 where the win probability is at least Threshold, else 0.
func (c *Classifier) Predict(X mat.Matrix) ([]float64, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return ClassesFromProba(proba), nil
}

// ClassesFromProba thresholds probabilities at Threshold.
func ClassesFromProba(proba []float64) []float64 {
	classes := make([]float64, len(proba))
	for i, p := range proba {
		if p >= Threshold {
			classes[i] = 1
		}
	}
	return classes
}

// FeatureImportance returns the gain importance of each predictor,
// normalised to sum to one (all zeros when no tree split).
func (c *Classifier) FeatureImportance() ([]float64, error) {
	if err := c.state.RequireFitted("FeatureImportance"); err != nil {
		return nil, err
	}
	return c.model.GetFeatureImportance("gain"), nil
}

func (c *Classifier) setModel(m *lightgbm.Model) {
	if len(c.featureNames) == m.NumFeatures {
		m.FeatureNames = c.featureNames
	}
	c.model = m
	c.predictor = lightgbm.NewPredictor(m)
	c.predictor.SetDeterministic(true)
}

// snapshotVersion is bumped whenever snapshot changes incompatibly.
const snapshotVersion = 1

// snapshot is the gob form of a fitted Classifier. lightgbm.Model is not
// stored whole because its Parameters map holds arbitrary values.
type snapshot struct {
	Version       int
	Params        Params
	FeatureNames  []string
	NumFeatures   int
	NumClass      int
	NumIteration  int
	BestIteration int
	LearningRate  float64
	InitScore     float64
	Objective     string
	Trees         []lightgbm.Tree
}

// Save writes the fitted classifier to path (gob).
func (c *Classifier) Save(path string) error {
	if err := c.state.RequireFitted("Save"); err != nil {
		return err
	}
	snap := snapshot{
		Version:       snapshotVersion,
		Params:        c.params,
		FeatureNames:  c.featureNames,
		NumFeatures:   c.model.NumFeatures,
		NumClass:      c.model.NumClass,
		NumIteration:  c.model.NumIteration,
		BestIteration: c.model.BestIteration,
		LearningRate:  c.model.LearningRate,
		InitScore:     c.model.InitScore,
		Objective:     string(c.model.Objective),
		Trees:         c.model.Trees,
	}
	if err := model.SaveModel(&snap, path); err != nil {
		return vberrors.Wrapf(err, "save model to %s", path)
	}
	return nil
}

// Load restores a classifier written by Save. It predicts and reports
// importance exactly as the saved one did; Params are restored for reference.
func Load(path string) (c *Classifier, err error) {
	defer vberrors.Recover(&err, "boost.Load")

	var snap snapshot
	if err := model.LoadModel(&snap, path); err != nil {
		return nil, vberrors.Wrapf(err, "load model from %s", path)
	}
	switch {
	case snap.Version != snapshotVersion:
		return nil, vberrors.NewValueError("boost.Load",
			fmt.Sprintf("unsupported model version %d", snap.Version))
	case snap.NumFeatures < 1:
		return nil, vberrors.NewValueError("boost.Load", "model has no features")
	case len(snap.Trees) == 0:
		return nil, vberrors.NewValueError("boost.Load", "model has no trees")
	}

	m := lightgbm.NewModel()
	m.Objective = lightgbm.ObjectiveType(snap.Objective)
	m.NumClass = snap.NumClass
	m.NumIteration = snap.NumIteration
	m.BestIteration = snap.BestIteration
	m.LearningRate = snap.LearningRate
	m.InitScore = snap.InitScore
	m.NumFeatures = snap.NumFeatures
	m.Trees = snap.Trees

	c = New(snap.Params)
	c.featureNames = snap.FeatureNames
	c.setModel(m)
	c.state.SetFitted(m.NumFeatures, 0)
	return c, nil
}

// FeatureNames returns the predictor names recorded for the model.
func (c *Classifier) FeatureNames() []string {
	return c.featureNames
}
