package metrics

import (
	"fmt"
	"strings"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// ConfusionMatrix counts predictions against truth for the win class.
type ConfusionMatrix struct {
	TrueNegative  int
	FalsePositive int
	FalseNegative int
	TruePositive  int
}

// Confusion tallies the 0/1 predictions pred against the labels y.
func Confusion(y, pred []float64) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	if len(y) != len(pred) {
		return cm, vberrors.NewDimensionError("metrics.Confusion", len(y), len(pred), 0)
	}
	for i := range y {
		switch {
		case y[i] == 1 && pred[i] == 1:
			cm.TruePositive++
		case y[i] == 1:
			cm.FalseNegative++
		case pred[i] == 1:
			cm.FalsePositive++
		default:
			cm.TrueNegative++
		}
	}
	return cm, nil
}

// Total returns the number of tallied rows.
func (cm ConfusionMatrix) Total() int {
	return cm.TrueNegative + cm.FalsePositive + cm.FalseNegative + cm.TruePositive
}

// String renders the matrix with predictions as rows and truth as columns:
//
//	          Truth
//	Prediction lose  win
//	      lose  ...  ...
//	       win  ...  ...
func (cm ConfusionMatrix) String() string {
	w := len(fmt.Sprint(max(cm.TrueNegative, cm.FalsePositive, cm.FalseNegative, cm.TruePositive)))
	w = max(w, 4)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%10s %s\n", "", "Truth")
	fmt.Fprintf(&sb, "%-10s %*s %*s\n", "Prediction", w, "lose", w, "win")
	fmt.Fprintf(&sb, "%10s %*d %*d\n", "lose", w, cm.TrueNegative, w, cm.FalseNegative)
	fmt.Fprintf(&sb, "%10s %*d %*d\n", "win", w, cm.FalsePositive, w, cm.TruePositive)
	return sb.String()
}
