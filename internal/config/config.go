// Package config defines the run configuration of the tuning pipeline and
// how it is loaded.
//
// Conventions:
//   - New(ctx) builds a Config holding the defaults of the reference analysis
//     (30 candidates, 10 folds, 1000 trees, 3/4 training split).
//   - Load(ctx) layers a YAML file and VBTUNE_* environment variables on top.
//   - Validate reports the first invalid field as a ValidationError marked
//     with ErrInvalidConfig.
package config

import (
	"context"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// DefaultDataURL is the TidyTuesday beach volleyball match file (2020-05-19).
const DefaultDataURL = "https://raw.githubusercontent.com/rfordatascience/tidytuesday/master/data/2020/2020-05-19/vb_matches.csv"

// Cache backends.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DataURL is an http(s) URL, a file:// URL or a bare path to vb_matches.csv.
	DataURL string `koanf:"data_url"`

	// FetchTimeout bounds a single HTTP attempt.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	// FetchRetries is the number of retries after the first failed attempt.
	FetchRetries int `koanf:"fetch_retries"`

	// CacheBackend is one of none, file, redis.
	CacheBackend string        `koanf:"cache_backend"`
	CacheDir     string        `koanf:"cache_dir"`
	RedisAddr    string        `koanf:"redis_addr"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`

	// SplitProp is the share of each outcome stratum kept for training.
	SplitProp float64 `koanf:"split_prop"`

	// GridSize is the number of Latin hypercube candidates.
	GridSize int `koanf:"grid_size"`
	// Folds is the number of cross-validation folds.
	Folds int `koanf:"folds"`
	// Trees is the number of boosting iterations for every candidate.
	Trees int `koanf:"trees"`
	// Workers bounds the number of concurrently fitted models.
	Workers int `koanf:"workers"`
	// Seed drives the split, the fold assignment, the grid and the trainer.
	Seed int64 `koanf:"seed"`
	// SavePred keeps the out-of-fold predictions of every candidate.
	SavePred bool `koanf:"save_pred"`

	// OutputDir receives plots, CSV exports and the saved model.
	OutputDir string `koanf:"output_dir"`
	// SaveModel writes the final model to OutputDir/final_model.gob.
	SaveModel bool `koanf:"save_model"`
	// StoreDSN is a SQLite DSN; empty disables persistence.
	StoreDSN string `koanf:"store_dsn"`
	// MetricsTextfile is a path for the Prometheus textfile; empty disables it.
	MetricsTextfile string `koanf:"metrics_textfile"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:     "info",
		DataURL:      DefaultDataURL,
		FetchTimeout: 30 * time.Second,
		FetchRetries: 2,
		CacheBackend: CacheFile,
		CacheDir:     ".vbtune-cache",
		RedisAddr:    "localhost:6379",
		CacheTTL:     24 * time.Hour,
		SplitProp:    0.75,
		GridSize:     30,
		Folds:        10,
		Trees:        1000,
		Workers:      runtime.NumCPU(),
		Seed:         123,
		SavePred:     true,
		OutputDir:    "out",
		SaveModel:    true,
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	invalid := func(param, reason string, value any) error {
		return errors.Mark(vberrors.NewValidationError(param, reason, value), ErrInvalidConfig)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level", "must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.DataURL == "" {
		return invalid("data_url", "must not be empty", c.DataURL)
	}
	if c.FetchRetries < 0 {
		return invalid("fetch_retries", "must not be negative", c.FetchRetries)
	}
	switch c.CacheBackend {
	case CacheNone, CacheFile, CacheRedis:
	default:
		return invalid("cache_backend", "must be one of none, file, redis", c.CacheBackend)
	}
	if c.SplitProp <= 0 || c.SplitProp >= 1 {
		return invalid("split_prop", "must be in (0, 1)", c.SplitProp)
	}
	if c.GridSize < 1 {
		return invalid("grid_size", "must be at least 1", c.GridSize)
	}
	if c.Folds < 2 {
		return invalid("folds", "must be at least 2", c.Folds)
	}
	if c.Trees < 1 {
		return invalid("trees", "must be at least 1", c.Trees)
	}
	if c.Workers < 1 {
		return invalid("workers", "must be at least 1", c.Workers)
	}
	return nil
}
