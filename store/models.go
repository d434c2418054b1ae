// Package store persists tuning runs in SQLite through GORM: the run, its
// candidates with their parameters, per-fold metrics and the final test-set
// metrics.
package store

import (
	"time"

	"gorm.io/datatypes"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Run is one execution of the pipeline.
type Run struct {
	ID         string     `gorm:"primaryKey;type:text" json:"id"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DataURL    string     `gorm:"not null" json:"data_url"`
	Rows       int        `json:"rows"`
	TrainRows  int        `json:"train_rows"`
	TestRows   int        `json:"test_rows"`
	Seed       int64      `json:"seed"`
	GridSize   int        `json:"grid_size"`
	Folds      int        `json:"folds"`
	// BestCandidate is the name of the candidate chosen for the last fit.
	BestCandidate string `json:"best_candidate"`
	Status        string `gorm:"not null;index" json:"status"`
	// Error holds the failure message of a failed run.
	Error string `json:"error,omitempty"`

	Candidates   []Candidate   `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"candidates,omitempty"`
	FinalMetrics []FinalMetric `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"final_metrics,omitempty"`
}

// Candidate is one hyperparameter configuration of a run.
type Candidate struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	RunID  string `gorm:"type:text;not null;index:idx_run_candidate,unique" json:"run_id"`
	Name   string `gorm:"not null;index:idx_run_candidate,unique" json:"name"`
	Params datatypes.JSON `json:"params"`

	FoldMetrics []FoldMetric `gorm:"foreignKey:CandidateID;constraint:OnDelete:CASCADE" json:"fold_metrics,omitempty"`
}

// FoldMetric is one metric of one candidate on one assessment fold.
type FoldMetric struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	CandidateID uint    `gorm:"not null;index" json:"candidate_id"`
	Fold        string  `gorm:"not null" json:"fold"`
	Metric      string  `gorm:"not null" json:"metric"`
	Value       float64 `json:"value"`
}

// FinalMetric is one test-set metric of the last fit.
type FinalMetric struct {
	ID     uint    `gorm:"primaryKey" json:"id"`
	RunID  string  `gorm:"type:text;not null;index" json:"run_id"`
	Metric string  `gorm:"not null" json:"metric"`
	Value  float64 `json:"value"`
}
