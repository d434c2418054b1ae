// Package model provides the estimator interfaces shared by the encoder and
// the boosted-tree classifier, plus fitted-state bookkeeping.
package model

import (
	"sync"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// StateManager tracks whether an estimator has been fitted and the shape it
// was fitted on. It is safe for concurrent use; the tuner reads the state of
// a classifier from the goroutine that fitted it while the report code may
// read it later from another.
type StateManager struct {
	name string
	mu   sync.RWMutex

	fitted    bool
	nFeatures int
	nSamples  int
}

// NewStateManager creates a StateManager for the estimator called name.
// The name appears in NotFittedError messages.
func NewStateManager(name string) *StateManager {
	return &StateManager{name: name}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// SetFitted marks the model as fitted on nSamples rows of nFeatures columns.
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = true
	s.nFeatures = nFeatures
	s.nSamples = nSamples
}

// Reset clears the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = false
	s.nFeatures = 0
	s.nSamples = 0
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// RequireFitted returns a NotFittedError naming method if Fit has not run.
func (s *StateManager) RequireFitted(method string) error {
	if !s.IsFitted() {
		return vberrors.NewNotFittedError(s.name, method)
	}
	return nil
}

// RequireFeatures checks that X has the column count seen during fitting.
func (s *StateManager) RequireFeatures(op string, got int) error {
	nFeatures, _ := s.GetDimensions()
	if got != nFeatures {
		return vberrors.NewDimensionError(op, nFeatures, got, 1)
	}
	return nil
}

// ModelState is a snapshot of the fitted state, used for logging and for
// persisting alongside a saved model.
type ModelState struct {
	Name      string `json:"name"`
	Fitted    bool   `json:"fitted"`
	NFeatures int    `json:"n_features,omitempty"`
	NSamples  int    `json:"n_samples,omitempty"`
}

// GetState returns the current state.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ModelState{
		Name:      s.name,
		Fitted:    s.fitted,
		NFeatures: s.nFeatures,
		NSamples:  s.nSamples,
	}
}
