package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/YuminosukeSato/vbtune/data"
	"github.com/YuminosukeSato/vbtune/features"
	"github.com/YuminosukeSato/vbtune/metrics"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
	"github.com/YuminosukeSato/vbtune/tune"
)

const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// savePlot writes p as PNG. gonum/plot panics on some degenerate axes, so
// drawing runs under SafeExecute.
func savePlot(p *plot.Plot, w, h vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vberrors.Wrapf(err, "create directory for %s", path)
	}
	return vberrors.SafeExecute("report.savePlot", func() error {
		if err := p.Save(w, h, path); err != nil {
			return vberrors.Wrapf(err, "save plot %s", path)
		}
		return nil
	})
}

// StatBoxPlot draws the distribution of stat s for each gender × outcome
// group of rows.
func StatBoxPlot(rows []features.TeamRow, s data.Stat, path string) error {
	groups := features.StatValues(rows, s)
	if len(groups) == 0 {
		return vberrors.NewModelError("report.StatBoxPlot", "empty data", vberrors.ErrEmptyData)
	}
	keys := make([]features.GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Gender != keys[j].Gender {
			return keys[i].Gender < keys[j].Gender
		}
		return !keys[i].Win && keys[j].Win
	})

	p := plot.New()
	p.Title.Text = s.String() + " by gender and outcome"
	p.Y.Label.Text = s.String()

	names := make([]string, len(keys))
	for i, k := range keys {
		b, err := plotter.NewBoxPlot(vg.Points(20), float64(i), plotter.Values(groups[k]))
		if err != nil {
			return vberrors.Wrapf(err, "box plot %s %s", k.Gender, features.Outcome(k.Win))
		}
		p.Add(b)
		names[i] = fmt.Sprintf("%s/%s", k.Gender, features.Outcome(k.Win))
	}
	p.NominalX(names...)
	return savePlot(p, plotWidth, plotHeight, path)
}

// EDABoxPlots writes one box plot per stat into dir and returns the paths.
func EDABoxPlots(rows []features.TeamRow, dir string) ([]string, error) {
	paths := make([]string, 0, data.NumStats)
	for _, s := range data.Stats {
		path := filepath.Join(dir, "eda_"+s.String()+".png")
		if err := StatBoxPlot(rows, s, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// facetOrder is the panel order of the tuning plot, two rows of three.
var facetOrder = [][]string{
	{tune.LearnRate, tune.LossReduction, tune.MinN},
	{tune.Mtry, tune.SampleSize, tune.TreeDepth},
}

func logScaled(param string) bool {
	return param == tune.LearnRate || param == tune.LossReduction
}

// TuningPlot draws the mean of metric for every candidate against each of
// the six parameters, one panel per parameter.
func TuningPlot(rows []tune.MetricSummary, metric, path string) error {
	var pts []tune.MetricSummary
	for _, r := range rows {
		if r.Metric == metric && !math.IsNaN(r.Mean) {
			pts = append(pts, r)
		}
	}
	if len(pts) == 0 {
		return vberrors.NewValueError("report.TuningPlot", "no "+metric+" values to plot")
	}

	plots := make([][]*plot.Plot, len(facetOrder))
	for i, line := range facetOrder {
		plots[i] = make([]*plot.Plot, len(line))
		for j, param := range line {
			p := plot.New()
			p.Title.Text = param
			p.Y.Label.Text = metric
			xys := make(plotter.XYs, len(pts))
			for k, r := range pts {
				x, _ := r.Candidate.Value(param)
				xys[k] = plotter.XY{X: x, Y: r.Mean}
			}
			sc, err := plotter.NewScatter(xys)
			if err != nil {
				return vberrors.Wrapf(err, "tuning panel %s", param)
			}
			sc.GlyphStyle.Color = plotutil.Color(i*len(line) + j)
			p.Add(sc)
			if logScaled(param) {
				p.X.Scale = plot.LogScale{}
				p.X.Tick.Marker = plot.LogTicks{}
			}
			plots[i][j] = p
		}
	}

	return vberrors.SafeExecute("report.TuningPlot", func() error {
		img := vgimg.New(12*vg.Inch, 7*vg.Inch)
		dc := draw.New(img)
		tiles := draw.Tiles{
			Rows:      len(facetOrder),
			Cols:      len(facetOrder[0]),
			PadX:      vg.Millimeter * 4,
			PadY:      vg.Millimeter * 4,
			PadTop:    vg.Millimeter * 2,
			PadBottom: vg.Millimeter * 2,
			PadLeft:   vg.Millimeter * 2,
			PadRight:  vg.Millimeter * 2,
		}
		canvases := plot.Align(plots, tiles, dc)
		for i := range plots {
			for j := range plots[i] {
				plots[i][j].Draw(canvases[i][j])
			}
		}
		return WriteFile(path, func(w io.Writer) error {
			_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
			return err
		})
	})
}

// ImportancePlot draws the ranked importances as points, most important at
// the top.
func ImportancePlot(ranked []Importance, path string) error {
	if len(ranked) == 0 {
		return vberrors.NewModelError("report.ImportancePlot", "empty data", vberrors.ErrEmptyData)
	}
	n := len(ranked)
	xys := make(plotter.XYs, n)
	names := make([]string, n)
	for i, imp := range ranked {
		// 重要度の高い変数を上に描く
		y := n - 1 - i
		xys[i] = plotter.XY{X: imp.Value, Y: float64(y)}
		names[y] = imp.Feature
	}

	p := plot.New()
	p.Title.Text = "Variable importance"
	p.X.Label.Text = "importance (gain)"
	p.X.Min = 0
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return vberrors.Wrap(err, "importance plot")
	}
	sc.GlyphStyle.Radius = vg.Points(3)
	p.Add(sc)
	p.NominalY(names...)
	return savePlot(p, plotWidth, vg.Length(n)*vg.Points(18)+vg.Inch, path)
}

// ROCPlot draws an ROC curve with the chance diagonal.
func ROCPlot(points []metrics.ROCPoint, auc float64, path string) error {
	if len(points) == 0 {
		return vberrors.NewModelError("report.ROCPlot", "empty data", vberrors.ErrEmptyData)
	}
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: 1 - pt.Specificity, Y: pt.Sensitivity}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("ROC curve (AUC = %.3f)", auc)
	p.X.Label.Text = "1 - specificity"
	p.Y.Label.Text = "sensitivity"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	curve, err := plotter.NewLine(xys)
	if err != nil {
		return vberrors.Wrap(err, "roc plot")
	}
	curve.LineStyle.Width = vg.Points(1.5)
	curve.LineStyle.Color = plotutil.Color(0)

	diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return vberrors.Wrap(err, "roc plot")
	}
	diag.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	p.Add(diag, curve)
	return savePlot(p, plotHeight, plotHeight, path)
}
