// Package log defines standard attribute keys for the tuning pipeline.
//
// Keys follow a hierarchical naming convention (e.g. "data.samples",
// "tune.candidate") to keep the JSON output filterable.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator, e.g. "boost.Classifier".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "fetch", "tune", "last_fit"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the pipeline phase.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"

	// DroppedKey counts records removed by missing-value filtering.
	DroppedKey = "data.dropped"

	// SourceKey is the URL or path data was read from.
	SourceKey = "data.source"

	// CacheKey reports whether a fetch was served from cache ("hit", "miss").
	CacheKey = "data.cache"
)

// Tuning
const (
	// RunIDKey is the uuid of a tuning run as persisted by the store.
	RunIDKey = "tune.run_id"

	// CandidateKey is the candidate name, e.g. "Model07".
	CandidateKey = "tune.candidate"

	// FoldKey is the 1-based resample index.
	FoldKey = "tune.fold"

	// GridSizeKey is the number of candidates in the grid.
	GridSizeKey = "tune.grid_size"

	// WorkersKey is the size of the evaluation worker pool.
	WorkersKey = "tune.workers"

	// MetricKey and ValueKey name a metric and its value.
	MetricKey = "metrics.name"
	ValueKey  = "metrics.value"
)

// Performance Metrics
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	AUCKey        = "metrics.roc_auc"
	LossKey       = "metrics.loss"
)

// Hyperparameters and Configuration
const (
	HyperParamsKey  = "model.hyperparams"
	LearningRateKey = "hyperparams.learning_rate"
	RandomSeedKey   = "config.random_seed"
)

// Error and Warning Context
const (
	ErrorCodeKey  = "error.code"
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationFetch     = "fetch"
	OperationTune      = "tune"
	OperationLastFit   = "last_fit"

	PhasePreprocessing = "preprocessing"
	PhaseResampling    = "resampling"
	PhaseTesting       = "testing"
	PhaseReporting     = "reporting"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
)
