// Package report renders the pipeline's results: console tables, CSV
// exports and PNG plots.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/YuminosukeSato/vbtune/features"
	"github.com/YuminosukeSato/vbtune/metrics"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
	"github.com/YuminosukeSato/vbtune/tune"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// num formats v with four significant digits, "NA" for NaN.
func num(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func row(w io.Writer, cells ...string) {
	for _, c := range cells {
		fmt.Fprint(w, c, "\t")
	}
	fmt.Fprintln(w)
}

// EDA writes count, mean and median of every stat by gender and outcome.
func EDA(w io.Writer, summaries []features.Summary) error {
	tw := newTable(w)
	row(tw, "stat", "gender", "outcome", "n", "mean", "median")
	for _, s := range summaries {
		row(tw, s.Stat.String(), s.Gender, features.Outcome(s.Win), strconv.Itoa(s.N), num(s.Mean), num(s.Median))
	}
	return tw.Flush()
}

var paramHeader = []string{"mtry", "min_n", "tree_depth", "learn_rate", "loss_reduction", "sample_size"}

func paramCells(c tune.Candidate) []string {
	return []string{
		strconv.Itoa(c.Mtry),
		strconv.Itoa(c.MinN),
		strconv.Itoa(c.TreeDepth),
		num(c.LearnRate),
		num(c.LossReduction),
		num(c.SampleSize),
	}
}

func summaryTable(w io.Writer, rows []tune.MetricSummary) error {
	tw := newTable(w)
	row(tw, append(append([]string{}, paramHeader...), ".metric", "mean", "n", "std_err", ".config")...)
	for _, s := range rows {
		cells := append(paramCells(s.Candidate), s.Metric, num(s.Mean), strconv.Itoa(s.N), num(s.StdErr), s.Candidate.ID)
		row(tw, cells...)
	}
	return tw.Flush()
}

// CollectedMetrics writes the per-candidate metric summaries.
func CollectedMetrics(w io.Writer, rows []tune.MetricSummary) error {
	return summaryTable(w, rows)
}

// ShowBest writes the top candidates for one metric.
func ShowBest(w io.Writer, metric string, rows []tune.MetricSummary) error {
	if _, err := fmt.Fprintf(w, "best candidates by %s\n", metric); err != nil {
		return err
	}
	return summaryTable(w, rows)
}

// Notes writes the failed tuning jobs.
func Notes(w io.Writer, notes []tune.Note) error {
	if len(notes) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row(tw, "candidate", "fold", "error")
	for _, n := range notes {
		row(tw, n.Candidate, n.Fold, fmt.Sprint(n.Err))
	}
	return tw.Flush()
}

// FinalMetrics writes the test-set metrics of the last fit.
func FinalMetrics(w io.Writer, scores metrics.Scores) error {
	tw := newTable(w)
	row(tw, ".metric", ".estimate")
	for _, m := range metrics.Names {
		v, ok := scores[m]
		if !ok {
			continue
		}
		row(tw, m, num(v))
	}
	return tw.Flush()
}

// Confusion writes the confusion matrix of the last fit.
func Confusion(w io.Writer, cm metrics.ConfusionMatrix) error {
	_, err := fmt.Fprint(w, cm.String())
	return err
}

// Importance is the importance of one predictor.
type Importance struct {
	Feature string
	Value   float64
}

// RankImportance pairs names with values and sorts by decreasing importance.
// Equal values keep column order.
func RankImportance(names []string, values []float64) ([]Importance, error) {
	if len(names) != len(values) {
		return nil, vberrors.NewDimensionError("report.RankImportance", len(names), len(values), 0)
	}
	out := make([]Importance, len(names))
	for i := range names {
		out[i] = Importance{Feature: names[i], Value: values[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out, nil
}

// ImportanceTable writes the ranked importances.
func ImportanceTable(w io.Writer, ranked []Importance) error {
	tw := newTable(w)
	row(tw, "variable", "importance")
	for _, imp := range ranked {
		row(tw, imp.Feature, num(imp.Value))
	}
	return tw.Flush()
}
