package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/YuminosukeSato/vbtune/metrics"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
	"github.com/YuminosukeSato/vbtune/tune"
)

// Manager owns the run's collectors. All methods are safe for concurrent
// use; Manager implements tune.Observer.
type Manager struct {
	namespace   string
	subsystem   string
	buckets     []float64
	constLabels prometheus.Labels
	registry    *prometheus.Registry

	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	fitDuration   prometheus.Histogram
	foldAUC       prometheus.Histogram
	bestAUC       prometheus.Gauge
	finalMetric   *prometheus.GaugeVec
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

var _ tune.Observer = (*Manager)(nil)

// NewManager creates a Manager on a private registry unless WithRegistry is
// given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "vbtune",
		subsystem: "tune",
		buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.jobsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "jobs_completed_total",
		Help:        "Resampling jobs (candidate x fold) that were fitted and scored",
		ConstLabels: m.constLabels,
	})
	m.jobsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "jobs_failed_total",
		Help:        "Resampling jobs that returned an error",
		ConstLabels: m.constLabels,
	})
	m.fitDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "fit_duration_seconds",
		Help:        "Time spent fitting one model on one analysis set",
		Buckets:     m.buckets,
		ConstLabels: m.constLabels,
	})
	m.foldAUC = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "fold_roc_auc",
		Help:        "ROC AUC of each resampling job on its assessment set",
		Buckets:     prometheus.LinearBuckets(0.5, 0.05, 10),
		ConstLabels: m.constLabels,
	})
	m.bestAUC = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "best_roc_auc",
		Help:        "Mean resampled ROC AUC of the best candidate",
		ConstLabels: m.constLabels,
	})
	m.finalMetric = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "final_metric",
		Help:        "Test-set metric of the last fit",
		ConstLabels: m.constLabels,
	}, []string{"metric"})
	m.runDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "run_duration_seconds",
		Help:        "Wall time of the whole run",
		ConstLabels: m.constLabels,
	})
	m.lastSuccess = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_success_timestamp_seconds",
		Help:        "Unix time at which the last run finished without error",
		ConstLabels: m.constLabels,
	})
}

// Registry returns the registry the metrics live on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// JobDone records a scored job.
func (m *Manager) JobDone(_, _ string, fit time.Duration, scores metrics.Scores) {
	m.jobsCompleted.Inc()
	m.fitDuration.Observe(fit.Seconds())
	if auc, ok := scores[metrics.MetricRocAUC]; ok {
		m.foldAUC.Observe(auc)
	}
}

// JobFailed records a failed job.
func (m *Manager) JobFailed(_, _ string, _ error) {
	m.jobsFailed.Inc()
}

// SetBestAUC records the mean resampled AUC of the selected candidate.
func (m *Manager) SetBestAUC(v float64) {
	m.bestAUC.Set(v)
}

// SetFinalMetrics records the test-set metrics of the last fit.
func (m *Manager) SetFinalMetrics(scores metrics.Scores) {
	for name, v := range scores {
		m.finalMetric.WithLabelValues(name).Set(v)
	}
}

// RunFinished records the run duration and, when the run succeeded, the
// success timestamp.
func (m *Manager) RunFinished(d time.Duration, ok bool) {
	m.runDuration.Set(d.Seconds())
	if ok {
		m.lastSuccess.SetToCurrentTime()
	}
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (m *Manager) WriteTextfile(path string) error {
	if path == "" {
		return vberrors.NewValidationError("metrics_textfile", "must not be empty", path)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return vberrors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
