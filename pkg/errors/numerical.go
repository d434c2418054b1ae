package errors

import (
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

// NumericalInstabilityError は評価値にNaNやInfが含まれていた場合のエラーです。
type NumericalInstabilityError struct {
	Operation string    // 発生した操作（例: "roc_auc", "predict_proba"）
	Values    []float64 // 問題のある値（先頭のみ）
	Fold      int       // 発生したフォールド番号（不明な場合は -1）
}

func (e *NumericalInstabilityError) Error() string {
	parts := make([]string, 0, len(e.Values))
	for i, v := range e.Values {
		if i >= 5 {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprintf("%.6g", v))
	}
	return fmt.Sprintf("vbtune: numerical instability detected in %s at fold %d. Values: [%s]",
		e.Operation, e.Fold, strings.Join(parts, ", "))
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, fold int) error {
	return errors.WithStack(&NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Fold:      fold,
	})
}

// CheckScalar checks a single scalar value for NaN or Inf.
func CheckScalar(operation string, value float64, fold int) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewNumericalInstabilityError(operation, []float64{value}, fold)
	}
	return nil
}

// CheckValues checks a slice for NaN or Inf and reports at most ten offending values.
func CheckValues(operation string, values []float64, fold int) error {
	var bad []float64
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad = append(bad, v)
			if len(bad) >= 10 {
				break
			}
		}
	}
	if len(bad) > 0 {
		return NewNumericalInstabilityError(operation, bad, fold)
	}
	return nil
}
