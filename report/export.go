package report

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
	"github.com/YuminosukeSato/vbtune/tune"
)

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteMetricsCSV writes collected metrics with one column per parameter.
// NaN is written as "NA".
func WriteMetricsCSV(w io.Writer, rows []tune.MetricSummary) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, paramHeader...), ".metric", "mean", "n", "std_err", ".config")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range rows {
		c := s.Candidate
		rec := []string{
			strconv.Itoa(c.Mtry),
			strconv.Itoa(c.MinN),
			strconv.Itoa(c.TreeDepth),
			ftoa(c.LearnRate),
			ftoa(c.LossReduction),
			ftoa(c.SampleSize),
			s.Metric,
			na(s.Mean),
			strconv.Itoa(s.N),
			na(s.StdErr),
			c.ID,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func na(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return ftoa(v)
}

// WritePredictionsCSV writes out-of-fold predictions. row is 1-based to
// match the training set's row numbers.
func WritePredictionsCSV(w io.Writer, preds []tune.Prediction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{".config", "id", ".row", "win", ".pred_win"}); err != nil {
		return err
	}
	for _, p := range preds {
		rec := []string{p.Candidate, p.Fold, strconv.Itoa(p.Row + 1), ftoa(p.Truth), ftoa(p.Proba)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates path (and its directory) and fills it with write.
func WriteFile(path string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vberrors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return vberrors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = vberrors.Wrapf(cerr, "close %s", path)
		}
	}()
	if err := write(f); err != nil {
		return vberrors.Wrapf(err, "write %s", path)
	}
	return nil
}
