package metrics

import (
	"math"
	"sort"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// ROCPoint is one point of an ROC curve: rows with probability >= Threshold
// are predicted as wins.
type ROCPoint struct {
	Threshold   float64
	Specificity float64
	Sensitivity float64
}

// ROCCurve returns the ROC curve of probabilities p for the 0/1 labels y,
// one point per distinct probability plus the (-Inf, 0, 1) and (+Inf, 1, 0)
// endpoints, in increasing threshold order. Both classes must be present.
func ROCCurve(y, p []float64) ([]ROCPoint, error) {
	if len(y) == 0 || len(y) != len(p) {
		return nil, vberrors.NewDimensionError("metrics.ROCCurve", len(y), len(p), 0)
	}

	idx := make([]int, len(p))
	var nPos, nNeg float64
	for i := range idx {
		idx[i] = i
		switch y[i] {
		case 1:
			nPos++
		case 0:
			nNeg++
		default:
			return nil, vberrors.NewValueError("metrics.ROCCurve", "labels must be 0 or 1")
		}
	}
	if nPos == 0 || nNeg == 0 {
		return nil, vberrors.NewValueError("metrics.ROCCurve", "both classes must be present")
	}
	sort.Slice(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })

	points := []ROCPoint{{Threshold: math.Inf(-1), Specificity: 0, Sensitivity: 1}}

	// Sweep thresholds upwards; rows below the current threshold are
	// predicted as losses.
	var fn, tn float64
	for k := 0; k < len(idx); {
		t := p[idx[k]]
		points = append(points, ROCPoint{
			Threshold:   t,
			Specificity: tn / nNeg,
			Sensitivity: (nPos - fn) / nPos,
		})
		for ; k < len(idx) && p[idx[k]] == t; k++ {
			if y[idx[k]] == 1 {
				fn++
			} else {
				tn++
			}
		}
	}

	points = append(points, ROCPoint{Threshold: math.Inf(1), Specificity: 1, Sensitivity: 0})
	return points, nil
}
