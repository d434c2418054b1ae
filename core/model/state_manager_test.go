package model

import (
	"sync"
	"testing"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager("OneHotEncoder")

	if s.IsFitted() {
		t.Fatal("new StateManager should not be fitted")
	}

	err := s.RequireFitted("Transform")
	var nf *vberrors.NotFittedError
	if !vberrors.As(err, &nf) {
		t.Fatalf("expected NotFittedError, got %v", err)
	}
	if nf.ModelName != "OneHotEncoder" || nf.Method != "Transform" {
		t.Errorf("unexpected error fields: %+v", nf)
	}

	s.SetFitted(13, 200)
	if err := s.RequireFitted("Transform"); err != nil {
		t.Errorf("RequireFitted after SetFitted: %v", err)
	}
	nFeatures, nSamples := s.GetDimensions()
	if nFeatures != 13 || nSamples != 200 {
		t.Errorf("GetDimensions() = (%d, %d), want (13, 200)", nFeatures, nSamples)
	}

	state := s.GetState()
	if !state.Fitted || state.Name != "OneHotEncoder" {
		t.Errorf("unexpected state %+v", state)
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset should clear the fitted flag")
	}
}

func TestStateManagerRequireFeatures(t *testing.T) {
	s := NewStateManager("boost.Classifier")
	s.SetFitted(13, 100)

	tests := []struct {
		name    string
		got     int
		wantErr bool
	}{
		{"same width", 13, false},
		{"too few", 11, true},
		{"too many", 14, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RequireFeatures("Predict", tt.got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RequireFeatures(%d) error = %v, wantErr %v", tt.got, err, tt.wantErr)
			}
			if err != nil {
				var de *vberrors.DimensionError
				if !vberrors.As(err, &de) {
					t.Fatalf("expected DimensionError, got %T", err)
				}
				if de.Expected != 13 || de.Got != tt.got || de.Axis != 1 {
					t.Errorf("unexpected DimensionError %+v", de)
				}
			}
		})
	}
}

func TestStateManagerConcurrentAccess(t *testing.T) {
	s := NewStateManager("boost.Classifier")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.SetFitted(n, n*10)
		}(i + 1)
		go func() {
			defer wg.Done()
			_ = s.IsFitted()
			_, _ = s.GetDimensions()
		}()
	}
	wg.Wait()

	if !s.IsFitted() {
		t.Error("expected fitted state after concurrent SetFitted")
	}
}
