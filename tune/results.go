package tune

import (
	"sort"

	"github.com/YuminosukeSato/vbtune/metrics"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// slot holds the outcome of one (candidate, fold) job. Each job writes only
// its own slot.
type slot struct {
	scores   metrics.Scores
	proba    []float64
	keepPred bool
}

// Note records a failed job.
type Note struct {
	Candidate string
	Fold      string
	Err       error
}

// FoldMetric is one metric of one candidate on one fold.
type FoldMetric struct {
	Candidate string
	Fold      string
	Metric    string
	Value     float64
}

// MetricSummary aggregates one metric of one candidate across folds.
type MetricSummary struct {
	Candidate Candidate
	Metric    string
	Mean      float64
	// N is the number of folds that produced the metric.
	N      int
	StdErr float64
}

// Prediction is an out-of-fold prediction for one training row.
type Prediction struct {
	Candidate string
	Fold      string
	// Row indexes the matrix passed to Run.
	Row   int
	Truth float64
	Proba float64
}

// Results holds the resampled performance of every candidate.
type Results struct {
	candidates []Candidate
	folds      []fold
	slots      []slot
	notes      []Note
}

func newResults(candidates []Candidate, folds []fold, keepPred bool) *Results {
	r := &Results{
		candidates: candidates,
		folds:      folds,
		slots:      make([]slot, len(candidates)*len(folds)),
	}
	for i := range r.slots {
		r.slots[i].keepPred = keepPred
	}
	return r
}

func (r *Results) slot(ci, fi int) *slot {
	return &r.slots[ci*len(r.folds)+fi]
}

// Candidates returns the evaluated candidates in grid order.
func (r *Results) Candidates() []Candidate {
	return r.candidates
}

// Folds returns the fold identifiers.
func (r *Results) Folds() []string {
	ids := make([]string, len(r.folds))
	for i, f := range r.folds {
		ids[i] = f.id
	}
	return ids
}

// Notes returns the failed jobs.
func (r *Results) Notes() []Note {
	return r.notes
}

// Metrics returns every per-fold metric, ordered by candidate, fold and
// metric name.
func (r *Results) Metrics() []FoldMetric {
	var out []FoldMetric
	for ci, c := range r.candidates {
		for fi, f := range r.folds {
			s := r.slot(ci, fi)
			if s.scores == nil {
				continue
			}
			for _, m := range metrics.Names {
				out = append(out, FoldMetric{Candidate: c.ID, Fold: f.id, Metric: m, Value: s.scores[m]})
			}
		}
	}
	return out
}

// Collect summarises every metric of every candidate over the folds where
// the job succeeded: mean, count and standard error. Rows are ordered by
// candidate, then metric name.
func (r *Results) Collect() []MetricSummary {
	out := make([]MetricSummary, 0, len(r.candidates)*len(metrics.Names))
	for ci, c := range r.candidates {
		for _, m := range metrics.Names {
			var vals []float64
			for fi := range r.folds {
				if s := r.slot(ci, fi); s.scores != nil {
					vals = append(vals, s.scores[m])
				}
			}
			mean, se := metrics.Summary(vals)
			out = append(out, MetricSummary{Candidate: c, Metric: m, Mean: mean, N: len(vals), StdErr: se})
		}
	}
	return out
}

// ShowBest returns the n best candidates by mean of metric: descending for
// roc_auc and accuracy, ascending for mn_log_loss. Candidates without any
// successful fold are left out; ties keep grid order. n <= 0 returns all.
func (r *Results) ShowBest(metric string, n int) ([]MetricSummary, error) {
	if !metrics.Known(metric) {
		return nil, vberrors.NewValidationError("metric", "unknown metric", metric)
	}
	var rows []MetricSummary
	for _, s := range r.Collect() {
		if s.Metric == metric && s.N > 0 {
			rows = append(rows, s)
		}
	}
	higher := metrics.HigherIsBetter(metric)
	sort.SliceStable(rows, func(i, j int) bool {
		if higher {
			return rows[i].Mean > rows[j].Mean
		}
		return rows[i].Mean < rows[j].Mean
	})
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows, nil
}

// SelectBest returns the candidate with the best mean of metric.
func (r *Results) SelectBest(metric string) (Candidate, error) {
	best, err := r.ShowBest(metric, 1)
	if err != nil {
		return Candidate{}, err
	}
	if len(best) == 0 {
		return Candidate{}, vberrors.Wrapf(vberrors.ErrAllJobsFailed, "no candidate has %s", metric)
	}
	return best[0].Candidate, nil
}

// Predictions returns the saved out-of-fold predictions, or nil when the
// tuner ran without SavePred.
func (r *Results) Predictions() []Prediction {
	var out []Prediction
	for ci, c := range r.candidates {
		for fi := range r.folds {
			f := &r.folds[fi]
			s := r.slot(ci, fi)
			if s.proba == nil {
				continue
			}
			for k, row := range f.rows {
				out = append(out, Prediction{
					Candidate: c.ID,
					Fold:      f.id,
					Row:       row,
					Truth:     f.testY[k],
					Proba:     s.proba[k],
				})
			}
		}
	}
	return out
}
