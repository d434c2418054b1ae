package tune

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/vbtune/boost"
	"github.com/YuminosukeSato/vbtune/core/model"
	"github.com/YuminosukeSato/vbtune/metrics"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
	"github.com/YuminosukeSato/vbtune/pkg/log"
)

// Dataset is a design matrix with its 0/1 labels.
type Dataset struct {
	X *mat.Dense
	Y *mat.VecDense
}

func (d Dataset) check(op string) error {
	if d.X == nil || d.Y == nil {
		return vberrors.NewModelError(op, "empty data", vberrors.ErrEmptyData)
	}
	n, _ := d.X.Dims()
	if n == 0 {
		return vberrors.NewModelError(op, "empty data", vberrors.ErrEmptyData)
	}
	if d.Y.Len() != n {
		return vberrors.NewDimensionError(op, n, d.Y.Len(), 0)
	}
	return nil
}

// FinalFit is a model fitted on the whole training set and assessed on the
// held-out test set.
type FinalFit struct {
	Model  model.Classifier
	Params boost.Params
	// Metrics are computed on the test set.
	Metrics metrics.Scores
	// Proba, Pred and Truth are aligned with the test rows.
	Proba []float64
	Pred  []float64
	Truth []float64
	// Importance is the gain importance per predictor.
	Importance []float64
}

// Confusion tabulates the test-set predictions.
func (f *FinalFit) Confusion() (metrics.ConfusionMatrix, error) {
	return metrics.Confusion(f.Truth, f.Pred)
}

// ROC returns the test-set ROC curve.
func (f *FinalFit) ROC() ([]metrics.ROCPoint, error) {
	return metrics.ROCCurve(f.Truth, f.Proba)
}

// LastFit fits params on train and evaluates the model once on test.
func (t *Tuner) LastFit(ctx context.Context, params boost.Params, train, test Dataset) (*FinalFit, error) {
	if err := train.check("tune.LastFit"); err != nil {
		return nil, err
	}
	if err := test.check("tune.LastFit"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, vberrors.Wrap(err, "tune.LastFit")
	}

	logger := t.log()
	m := t.build(params)
	start := time.Now()
	if err := m.Fit(train.X, train.Y); err != nil {
		return nil, vberrors.Wrap(err, "last fit")
	}

	proba, err := m.PredictProba(test.X)
	if err != nil {
		return nil, vberrors.Wrap(err, "last fit")
	}
	truth := mat.Col(nil, 0, test.Y)
	scores, err := metrics.Evaluate(truth, proba, boost.Threshold)
	if err != nil {
		return nil, err
	}
	importance, err := m.FeatureImportance()
	if err != nil {
		return nil, err
	}

	logger.Info("last fit finished",
		log.OperationKey, log.OperationLastFit,
		log.SamplesKey, train.Y.Len(),
		log.AccuracyKey, scores[metrics.MetricAccuracy],
		log.AUCKey, scores[metrics.MetricRocAUC],
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &FinalFit{
		Model:      m,
		Params:     params,
		Metrics:    scores,
		Proba:      proba,
		Pred:       boost.ClassesFromProba(proba),
		Truth:      truth,
		Importance: importance,
	}, nil
}
