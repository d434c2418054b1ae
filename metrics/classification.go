// Package metrics computes the classification metrics reported by the tuner
// and the final fit. Point metrics are delegated to scigo/metrics; this
// package adds the ROC curve, the confusion matrix and resample summaries.
package metrics

import (
	scimetrics "github.com/YuminosukeSato/scigo/metrics"
	"gonum.org/v1/gonum/mat"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// Metric names, as printed in reports and stored per fold.
const (
	MetricRocAUC    = "roc_auc"
	MetricAccuracy  = "accuracy"
	MetricMnLogLoss = "mn_log_loss"
)

// Names lists the metrics evaluated on every assessment set.
var Names = []string{MetricAccuracy, MetricMnLogLoss, MetricRocAUC}

// HigherIsBetter reports the optimisation direction of metric.
func HigherIsBetter(metric string) bool {
	return metric != MetricMnLogLoss
}

// Known reports whether metric is one of Names.
func Known(metric string) bool {
	for _, n := range Names {
		if n == metric {
			return true
		}
	}
	return false
}

func checkInputs(op string, yTrue, yPred *mat.VecDense) error {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 || yPred.Len() == 0 {
		return vberrors.NewModelError(op, "empty data", vberrors.ErrEmptyData)
	}
	if yTrue.Len() != yPred.Len() {
		return vberrors.NewDimensionError(op, yTrue.Len(), yPred.Len(), 0)
	}
	return nil
}

func hasBothClasses(yTrue *mat.VecDense) bool {
	var pos, neg bool
	for i := 0; i < yTrue.Len(); i++ {
		switch yTrue.AtVec(i) {
		case 1:
			pos = true
		case 0:
			neg = true
		}
	}
	return pos && neg
}

// AUC returns the area under the ROC curve of probabilities yPred for the
// 0/1 labels yTrue. With a single class present the value is 0.5 and an
// UndefinedMetricWarning is raised.
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	if err := checkInputs("metrics.AUC", yTrue, yPred); err != nil {
		return 0, err
	}
	auc, err := scimetrics.AUC(yTrue, yPred)
	if err != nil {
		return 0, vberrors.Wrap(err, MetricRocAUC)
	}
	if !hasBothClasses(yTrue) {
		vberrors.Warn(vberrors.NewUndefinedMetricWarning(MetricRocAUC, "only one class present in y_true", auc))
	}
	return auc, nil
}

// Accuracy returns the share of yPred equal to yTrue.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	if err := checkInputs("metrics.Accuracy", yTrue, yPred); err != nil {
		return 0, err
	}
	acc, err := scimetrics.Accuracy(yTrue, yPred)
	if err != nil {
		return 0, vberrors.Wrap(err, MetricAccuracy)
	}
	return acc, nil
}

// BinaryLogLoss returns the mean negative log-likelihood of probabilities
// yPred for the 0/1 labels yTrue.
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	if err := checkInputs("metrics.BinaryLogLoss", yTrue, yPred); err != nil {
		return 0, err
	}
	loss, err := scimetrics.BinaryLogLoss(yTrue, yPred)
	if err != nil {
		return 0, vberrors.Wrap(err, MetricMnLogLoss)
	}
	return loss, nil
}

// Scores are the metrics of one assessment set.
type Scores map[string]float64

// Evaluate computes every metric in Names from labels and win
// probabilities. Hard classes for accuracy use threshold.
func Evaluate(y, proba []float64, threshold float64) (Scores, error) {
	if len(y) == 0 || len(y) != len(proba) {
		return nil, vberrors.NewDimensionError("metrics.Evaluate", len(y), len(proba), 0)
	}
	yTrue := mat.NewVecDense(len(y), append([]float64(nil), y...))
	yProb := mat.NewVecDense(len(proba), append([]float64(nil), proba...))

	classes := make([]float64, len(proba))
	for i, p := range proba {
		if p >= threshold {
			classes[i] = 1
		}
	}

	auc, err := AUC(yTrue, yProb)
	if err != nil {
		return nil, err
	}
	acc, err := Accuracy(yTrue, mat.NewVecDense(len(classes), classes))
	if err != nil {
		return nil, err
	}
	loss, err := BinaryLogLoss(yTrue, yProb)
	if err != nil {
		return nil, err
	}

	s := Scores{MetricRocAUC: auc, MetricAccuracy: acc, MetricMnLogLoss: loss}
	for name, v := range s {
		if err := vberrors.CheckScalar(name, v, -1); err != nil {
			return nil, err
		}
	}
	return s, nil
}
