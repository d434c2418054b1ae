// Package pipeline runs the whole analysis: load the match file, reshape it
// to team rows, hold out a test set, tune the boosted-tree classifier by
// cross-validation, fit the best candidate once more and report.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/vbtune/boost"
	"github.com/YuminosukeSato/vbtune/data"
	"github.com/YuminosukeSato/vbtune/features"
	"github.com/YuminosukeSato/vbtune/internal/config"
	"github.com/YuminosukeSato/vbtune/metrics"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
	"github.com/YuminosukeSato/vbtune/pkg/log"
	"github.com/YuminosukeSato/vbtune/pkg/telemetry"
	"github.com/YuminosukeSato/vbtune/preprocessing"
	"github.com/YuminosukeSato/vbtune/report"
	"github.com/YuminosukeSato/vbtune/store"
	"github.com/YuminosukeSato/vbtune/tune"
)

// SelectMetric ranks candidates for the last fit.
const SelectMetric = metrics.MetricRocAUC

// showBestN is the number of rows printed by the show_best table.
const showBestN = 5

// Output file names inside the output directory.
const (
	MetricsCSV     = "tune_metrics.csv"
	PredictionsCSV = "tune_predictions.csv"
	TuningPNG      = "tuning_roc_auc.png"
	ImportancePNG  = "importance.png"
	ROCPNG         = "roc_curve.png"
	ModelFile      = "final_model.gob"
	EDADir         = "eda"
)

// Summary is what a finished run produced.
type Summary struct {
	RunID     string
	Teams     int
	Dropped   int
	Train     int
	Test      int
	Best      tune.Candidate
	Final     metrics.Scores
	Notes     int
	OutputDir string
}

// Pipeline wires the configured components together.
type Pipeline struct {
	cfg    *config.Config
	out    io.Writer
	source data.Source
	tel    *telemetry.Manager
	logger log.Logger
}

// New builds a Pipeline printing its tables to out. The data source honours
// the configured cache backend; a Redis server that cannot be reached is
// logged and the run continues without a cache.
func New(ctx context.Context, cfg *config.Config, out io.Writer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:    cfg,
		out:    out,
		tel:    telemetry.NewManager(),
		logger: log.GetLoggerWithName("pipeline"),
	}

	fetcher := data.NewFetcher(
		data.WithTimeout(cfg.FetchTimeout),
		data.WithRetries(cfg.FetchRetries),
	)
	p.source = fetcher
	switch cfg.CacheBackend {
	case config.CacheFile:
		p.source = data.NewCachedFetcher(fetcher, data.NewFileCache(cfg.CacheDir, cfg.CacheTTL))
	case config.CacheRedis:
		client, err := data.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			p.logger.Warn("redis cache unavailable, continuing without cache",
				log.CacheKey, cfg.RedisAddr, log.ErrAttrKey, err)
			break
		}
		p.source = data.NewCachedFetcher(fetcher, data.NewRedisCache(client, cfg.CacheTTL))
	}
	return p, nil
}

// WithSource replaces the data source.
func (p *Pipeline) WithSource(src data.Source) *Pipeline {
	p.source = src
	return p
}

// Telemetry returns the run's metrics manager.
func (p *Pipeline) Telemetry() *telemetry.Manager {
	return p.tel
}

func (p *Pipeline) path(name string) string {
	return filepath.Join(p.cfg.OutputDir, name)
}

func (p *Pipeline) section(title string) {
	fmt.Fprintf(p.out, "\n== %s ==\n", title)
}

// Run executes the analysis.
func (p *Pipeline) Run(ctx context.Context) (sum *Summary, err error) {
	start := time.Now()
	defer func() {
		p.tel.RunFinished(time.Since(start), err == nil)
		if p.cfg.MetricsTextfile == "" {
			return
		}
		if werr := p.tel.WriteTextfile(p.cfg.MetricsTextfile); werr != nil {
			p.logger.Warn("metrics textfile not written", log.ErrAttrKey, werr)
		}
	}()

	matches, err := data.Load(ctx, p.source, p.cfg.DataURL)
	if err != nil {
		return nil, err
	}
	rows, dropped := features.Pivot(matches)
	if len(rows) == 0 {
		return nil, vberrors.Wrap(vberrors.ErrEmptyData, "no complete team rows")
	}
	sum = &Summary{Teams: len(rows), Dropped: dropped, OutputDir: p.cfg.OutputDir}

	p.section("team stats by gender and outcome")
	if err := report.EDA(p.out, features.Summarize(rows)); err != nil {
		return nil, err
	}
	if _, err := report.EDABoxPlots(rows, p.path(EDADir)); err != nil {
		p.logger.Warn("eda plots not written", log.ErrAttrKey, err)
	}

	train, test, err := features.Split(rows, p.cfg.SplitProp, p.cfg.Seed)
	if err != nil {
		return nil, err
	}
	sum.Train, sum.Test = len(train), len(test)

	enc := preprocessing.NewOneHotEncoder()
	trainX, err := enc.FitTransform(train)
	if err != nil {
		return nil, err
	}
	testX, err := enc.Transform(test)
	if err != nil {
		return nil, err
	}
	trainY, testY := features.Labels(train), features.Labels(test)
	p.logger.Info("design matrix ready",
		log.OperationKey, log.OperationTransform,
		log.SamplesKey, len(train),
		log.FeaturesKey, enc.NumFeatures(),
		log.DroppedKey, dropped,
	)

	var db *store.Store
	var runID string
	if p.cfg.StoreDSN != "" {
		db, err = store.Open(p.cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		run, err := db.StartRun(ctx, store.RunInfo{
			DataURL:   p.cfg.DataURL,
			Rows:      len(rows),
			TrainRows: len(train),
			TestRows:  len(test),
			Seed:      p.cfg.Seed,
			GridSize:  p.cfg.GridSize,
			Folds:     p.cfg.Folds,
		})
		if err != nil {
			return nil, err
		}
		runID = run.ID
		sum.RunID = runID
		defer func() {
			if err == nil {
				return
			}
			// キャンセルされた実行も失敗として記録する
			if ferr := db.FailRun(context.WithoutCancel(ctx), runID, err); ferr != nil {
				p.logger.Warn("run failure not recorded", log.RunIDKey, runID, log.ErrAttrKey, ferr)
			}
		}()
	}

	best, res, err := p.tune(ctx, trainX, trainY, enc.FeatureNames())
	if err != nil {
		return nil, err
	}
	sum.Best = best
	sum.Notes = len(res.Notes())
	if db != nil {
		if err := db.SaveResults(ctx, runID, res); err != nil {
			return nil, err
		}
	}

	fit, err := p.lastFit(ctx, best, tune.Dataset{X: trainX, Y: trainY}, tune.Dataset{X: testX, Y: testY}, enc.FeatureNames())
	if err != nil {
		return nil, err
	}
	sum.Final = fit.Metrics
	if db != nil {
		if err := db.FinishRun(ctx, runID, best.ID, fit.Metrics); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func (p *Pipeline) newTuner(names []string) *tune.Tuner {
	base := boost.DefaultParams()
	base.Trees = p.cfg.Trees
	base.Seed = p.cfg.Seed

	t := tune.NewTuner(base, p.cfg.Seed)
	t.Folds = p.cfg.Folds
	t.Workers = p.cfg.Workers
	t.SavePred = p.cfg.SavePred
	t.FeatureNames = names
	t.Observer = p.tel
	return t
}

func (p *Pipeline) tune(ctx context.Context, X *mat.Dense, y *mat.VecDense, names []string) (tune.Candidate, *tune.Results, error) {
	space, err := tune.DefaultSpace().Finalize(len(names))
	if err != nil {
		return tune.Candidate{}, nil, err
	}
	grid, err := tune.LatinHypercube(space, p.cfg.GridSize, p.cfg.Seed)
	if err != nil {
		return tune.Candidate{}, nil, err
	}

	res, err := p.newTuner(names).Run(ctx, X, y, grid)
	if err != nil {
		return tune.Candidate{}, nil, err
	}

	collected := res.Collect()
	p.section("resampled metrics")
	if err := report.Notes(p.out, res.Notes()); err != nil {
		return tune.Candidate{}, nil, err
	}
	if err := report.CollectedMetrics(p.out, collected); err != nil {
		return tune.Candidate{}, nil, err
	}
	top, err := res.ShowBest(SelectMetric, showBestN)
	if err != nil {
		return tune.Candidate{}, nil, err
	}
	p.section("show best")
	if err := report.ShowBest(p.out, SelectMetric, top); err != nil {
		return tune.Candidate{}, nil, err
	}
	if len(top) == 0 {
		return tune.Candidate{}, nil, vberrors.Wrapf(vberrors.ErrAllJobsFailed, "no candidate has %s", SelectMetric)
	}
	p.tel.SetBestAUC(top[0].Mean)

	if err := report.WriteFile(p.path(MetricsCSV), func(w io.Writer) error {
		return report.WriteMetricsCSV(w, collected)
	}); err != nil {
		return tune.Candidate{}, nil, err
	}
	if p.cfg.SavePred {
		if err := report.WriteFile(p.path(PredictionsCSV), func(w io.Writer) error {
			return report.WritePredictionsCSV(w, res.Predictions())
		}); err != nil {
			return tune.Candidate{}, nil, err
		}
	}
	if err := report.TuningPlot(collected, SelectMetric, p.path(TuningPNG)); err != nil {
		// プロットの失敗は結果に影響しない
		p.logger.Warn("tuning plot not written", log.ErrAttrKey, err)
	}
	return top[0].Candidate, res, nil
}

type saver interface {
	Save(path string) error
}

func (p *Pipeline) lastFit(ctx context.Context, best tune.Candidate, train, test tune.Dataset, names []string) (*tune.FinalFit, error) {
	t := p.newTuner(names)
	fit, err := t.LastFit(ctx, tune.Finalize(best, t.Base), train, test)
	if err != nil {
		return nil, err
	}
	p.tel.SetFinalMetrics(fit.Metrics)

	p.section("last fit on the test set (" + best.ID + ")")
	if err := report.FinalMetrics(p.out, fit.Metrics); err != nil {
		return nil, err
	}
	cm, err := fit.Confusion()
	if err != nil {
		return nil, err
	}
	if err := report.Confusion(p.out, cm); err != nil {
		return nil, err
	}

	ranked, err := report.RankImportance(names, fit.Importance)
	if err != nil {
		return nil, err
	}
	p.section("variable importance")
	if err := report.ImportanceTable(p.out, ranked); err != nil {
		return nil, err
	}
	if err := report.ImportancePlot(ranked, p.path(ImportancePNG)); err != nil {
		p.logger.Warn("importance plot not written", log.ErrAttrKey, err)
	}

	if roc, err := fit.ROC(); err != nil {
		p.logger.Warn("roc curve undefined", log.ErrAttrKey, err)
	} else if err := report.ROCPlot(roc, fit.Metrics[metrics.MetricRocAUC], p.path(ROCPNG)); err != nil {
		p.logger.Warn("roc plot not written", log.ErrAttrKey, err)
	}

	if p.cfg.SaveModel {
		s, ok := fit.Model.(saver)
		if !ok {
			return nil, vberrors.NewValueError("pipeline.lastFit", "model cannot be saved")
		}
		if err := s.Save(p.path(ModelFile)); err != nil {
			return nil, err
		}
	}
	return fit, nil
}
