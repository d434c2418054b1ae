package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "vbtune: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "PredictProba",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "vbtune: PredictProba: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Classifier.PredictProba", 13, 11, 1)

	want := "vbtune: Classifier.PredictProba: dimension mismatch on axis 1 (features). Expected 13, got 11"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Fatal("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 13 || dimErr.Got != 11 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("OneHotEncoder", "Transform")

	want := "vbtune: OneHotEncoder: this model is not fitted yet. Call Fit() before using Transform()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("tune.folds", "must be at least 2", 1)

	want := "vbtune: validation failed for parameter 'tune.folds': must be at least 2 (got: 1)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var valErr *ValidationError
	if !As(err, &valErr) {
		t.Error("Error should be castable to *ValidationError")
	}
}

func TestNewFetchError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		cause   error
		wantMsg string
	}{
		{
			name:    "bad status",
			status:  404,
			wantMsg: "vbtune: fetch http://example.test/vb.csv: unexpected status 404",
		},
		{
			name:    "transport error",
			cause:   fmt.Errorf("connection refused"),
			wantMsg: "vbtune: fetch http://example.test/vb.csv: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFetchError("http://example.test/vb.csv", tt.status, tt.cause)
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}
			var fetchErr *FetchError
			if !As(err, &fetchErr) {
				t.Fatal("Error should be castable to *FetchError")
			}
			if fetchErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, tt.status)
			}
			if tt.cause != nil && !Is(err, tt.cause) {
				t.Error("Expected Is(err, cause) to be true")
			}
		})
	}
}

func TestNewParseError(t *testing.T) {
	cause := fmt.Errorf("strconv.ParseFloat: parsing \"x\": invalid syntax")
	err := NewParseError(12, "w_p1_tot_kills", cause)

	if !strings.Contains(err.Error(), `line 12, column "w_p1_tot_kills"`) {
		t.Errorf("unexpected message: %v", err)
	}
	if !Is(err, cause) {
		t.Error("ParseError should unwrap to its cause")
	}
}

func TestWarnUsesHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(error) {})

	Warn(NewUnknownCategoryWarning("circuit", "NVL"))

	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got))
	}
	want := `unknown level "NVL" in column "circuit" encoded as all zeros`
	if got[0].Error() != want {
		t.Errorf("warning = %q, want %q", got[0].Error(), want)
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d rows, got %d", "Split", 10, 0)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	expectedMsg := "in Split: expected 10 rows, got 0"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestErrorChaining(t *testing.T) {
	err1 := fmt.Errorf("base error")
	err2 := Wrap(err1, "wrapped once")
	err3 := NewModelError("Operation", "failed", err2)

	if !strings.Contains(err3.Error(), "base error") {
		t.Error("Expected error chain to contain base error")
	}

	formatted := fmt.Sprintf("%+v", err3)
	if !strings.Contains(formatted, "errors_test.go") {
		t.Error("Expected detailed error to contain stack trace")
	}
}

func TestCheckScalar(t *testing.T) {
	if err := CheckScalar("roc_auc", 0.8, 3); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	nan := 0.0
	nan = nan / nan
	err := CheckScalar("roc_auc", nan, 3)
	if err == nil {
		t.Fatal("expected error for NaN")
	}
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %T", err)
	}
	if numErr.Fold != 3 || numErr.Operation != "roc_auc" {
		t.Errorf("unexpected fields: %+v", numErr)
	}
}

func TestCheckValues(t *testing.T) {
	if err := CheckValues("predict_proba", []float64{0.1, 0.9}, -1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	inf := math.Inf(1)
	values := []float64{0.2, -inf}
	for i := 0; i < 12; i++ {
		values = append(values, inf)
	}
	err := CheckValues("predict_proba", values, -1)
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if len(numErr.Values) != 10 {
		t.Errorf("reported %d values, want 10", len(numErr.Values))
	}
	if !strings.Contains(err.Error(), "predict_proba at fold -1") || !strings.Contains(err.Error(), "...") {
		t.Errorf("message = %q", err.Error())
	}
}
