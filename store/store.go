package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/YuminosukeSato/vbtune/metrics"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
	"github.com/YuminosukeSato/vbtune/pkg/log"
	"github.com/YuminosukeSato/vbtune/tune"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = vberrors.New("run not found")

// Store wraps a GORM connection to the run database.
type Store struct {
	db     *gorm.DB
	logger log.Logger
}

// Open connects to the SQLite database at dsn (":memory:" for a private
// in-memory database) and migrates the schema.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, vberrors.NewValidationError("store_dsn", "must not be empty", dsn)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, vberrors.Wrapf(err, "open store %s", dsn)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, vberrors.Wrap(err, "open store")
	}
	// SQLite allows one writer; an in-memory database exists per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Run{}, &Candidate{}, &FoldMetric{}, &FinalMetric{}); err != nil {
		_ = sqlDB.Close()
		return nil, vberrors.Wrap(err, "migrate store")
	}
	return &Store{db: db, logger: log.GetLoggerWithName("store")}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	DataURL   string
	Rows      int
	TrainRows int
	TestRows  int
	Seed      int64
	GridSize  int
	Folds     int
}

// StartRun records a new run and returns it with a fresh id.
func (s *Store) StartRun(ctx context.Context, info RunInfo) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
		DataURL:   info.DataURL,
		Rows:      info.Rows,
		TrainRows: info.TrainRows,
		TestRows:  info.TestRows,
		Seed:      info.Seed,
		GridSize:  info.GridSize,
		Folds:     info.Folds,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, vberrors.Wrap(err, "create run")
	}
	s.logger.Debug("run started", log.RunIDKey, run.ID)
	return run, nil
}

// ResultSet is the part of tune.Results that is persisted.
type ResultSet interface {
	Candidates() []tune.Candidate
	Metrics() []tune.FoldMetric
}

var _ ResultSet = (*tune.Results)(nil)

// SaveResults stores every candidate of res with its per-fold metrics in a
// single transaction.
func (s *Store) SaveResults(ctx context.Context, runID string, res ResultSet) error {
	byCandidate := make(map[string][]FoldMetric)
	for _, m := range res.Metrics() {
		byCandidate[m.Candidate] = append(byCandidate[m.Candidate], FoldMetric{
			Fold:   m.Fold,
			Metric: m.Metric,
			Value:  m.Value,
		})
	}

	rows := make([]Candidate, 0, len(res.Candidates()))
	for _, c := range res.Candidates() {
		params, err := json.Marshal(c)
		if err != nil {
			return vberrors.Wrapf(err, "encode %s", c.ID)
		}
		rows = append(rows, Candidate{
			RunID:       runID,
			Name:        c.ID,
			Params:      datatypes.JSON(params),
			FoldMetrics: byCandidate[c.ID],
		})
	}
	if len(rows) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Run{}).Where("id = ?", runID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return vberrors.Wrapf(ErrRunNotFound, "run %s", runID)
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return vberrors.Wrap(err, "save results")
	}
	s.logger.Debug("results saved", log.RunIDKey, runID, log.GridSizeKey, len(rows))
	return nil
}

// FinishRun stores the final test-set metrics, the chosen candidate and the
// finish time.
func (s *Store) FinishRun(ctx context.Context, runID, best string, scores metrics.Scores) error {
	names := make([]string, 0, len(scores))
	for m := range scores {
		names = append(names, m)
	}
	sort.Strings(names)
	final := make([]FinalMetric, len(names))
	for i, m := range names {
		final[i] = FinalMetric{RunID: runID, Metric: m, Value: scores[m]}
	}

	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Run{}).Where("id = ?", runID).Updates(map[string]any{
			"finished_at":    now,
			"best_candidate": best,
			"status":         StatusFinished,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return vberrors.Wrapf(ErrRunNotFound, "run %s", runID)
		}
		if len(final) == 0 {
			return nil
		}
		return tx.Create(&final).Error
	})
	if err != nil {
		return vberrors.Wrap(err, "finish run")
	}
	return nil
}

// FailRun marks a run as failed with the message of cause. A run that
// already finished is left as it is.
func (s *Store) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res := s.db.WithContext(ctx).Model(&Run{}).
		Where("id = ? AND status = ?", runID, StatusRunning).
		Updates(map[string]any{
			"finished_at": time.Now().UTC(),
			"status":      StatusFailed,
			"error":       msg,
		})
	if res.Error != nil {
		return vberrors.Wrap(res.Error, "fail run")
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&Run{}).Where("id = ?", runID).Count(&n).Error; err != nil {
			return vberrors.Wrap(err, "fail run")
		}
		if n == 0 {
			return vberrors.Wrapf(ErrRunNotFound, "run %s", runID)
		}
		return nil
	}
	s.logger.Warn("run failed", log.RunIDKey, runID, log.ErrAttrKey, msg)
	return nil
}

// Runs lists every run without its children, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := s.db.WithContext(ctx).Order("started_at, id").Find(&runs).Error; err != nil {
		return nil, vberrors.Wrap(err, "list runs")
	}
	return runs, nil
}

// LoadRun returns a run with its candidates, fold metrics and final metrics.
func (s *Store) LoadRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Preload("Candidates", func(db *gorm.DB) *gorm.DB { return db.Order("name") }).
		Preload("Candidates.FoldMetrics", func(db *gorm.DB) *gorm.DB { return db.Order("fold, metric") }).
		Preload("FinalMetrics", func(db *gorm.DB) *gorm.DB { return db.Order("metric") }).
		First(&run, "id = ?", runID).Error
	if vberrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vberrors.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, vberrors.Wrap(err, "load run")
	}
	return &run, nil
}

// DecodeParams returns the candidate stored in c.Params.
func (c Candidate) DecodeParams() (tune.Candidate, error) {
	var out tune.Candidate
	if err := json.Unmarshal(c.Params, &out); err != nil {
		return out, vberrors.Wrapf(err, "decode %s", c.Name)
	}
	return out, nil
}
