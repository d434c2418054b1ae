// Package vbtune predicts the winning team of a beach volleyball match from
// the teams' box-score totals, tuning a gradient-boosted tree classifier by
// cross-validation.
//
// vbtune reads the TidyTuesday beach volleyball match file (vb_matches.csv),
// reshapes every match into a winners row and a losers row of team totals,
// and searches six boosted-tree hyperparameters over a Latin hypercube grid.
// The best candidate by resampled ROC AUC is fitted once more on the whole
// training set and assessed on a held-out test set.
//
// # Installation
//
//	go install github.com/YuminosukeSato/vbtune/cmd/vbtune@latest
//
// # Quick Start
//
// Run the full analysis with the reference settings (30 candidates, 10 folds,
// 1000 trees):
//
//	vbtune -out out
//
// A faster run for a first look:
//
//	vbtune -grid 8 -folds 5 -trees 200 -out out
//
// The tuner is also usable as a library on any 0/1 labelled matrix:
//
//	space, _ := tune.DefaultSpace().Finalize(p)
//	grid, _ := tune.LatinHypercube(space, 30, 123)
//
//	tuner := tune.NewTuner(boost.DefaultParams(), 123)
//	res, err := tuner.Run(ctx, X, y, grid)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	best, _ := res.SelectBest(metrics.MetricRocAUC)
//	fit, _ := tuner.LastFit(ctx, tune.Finalize(best, tuner.Base), train, test)
//
// # Packages
//
//   - data: fetching (circuit breaker, file or Redis cache) and CSV parsing
//   - features: team rows, stratified split, summary statistics
//   - preprocessing: one-hot encoding into a design matrix
//   - boost: the boosted-tree classifier (scigo LightGBM trainer)
//   - tune: search space, Latin hypercube grid, cross-validated tuning, last fit
//   - metrics: ROC AUC, accuracy, log loss, ROC curve, confusion matrix
//   - report: console tables, CSV exports, PNG plots
//   - store: SQLite persistence of runs (GORM)
//   - pkg/telemetry: Prometheus metrics written as a node_exporter textfile
//   - pkg/log, pkg/errors: structured logging and error types
//   - core/model, core/parallel: model interfaces and worker pools
//
// # Configuration
//
// Defaults are overridden by a YAML file named by -config or VBTUNE_CONFIG,
// then by VBTUNE_* environment variables (VBTUNE_GRID_SIZE, VBTUNE_FOLDS,
// VBTUNE_CACHE_BACKEND, ...), then by command-line flags.
//
// # Outputs
//
// Tables are printed to stdout. The output directory receives EDA box plots,
// the tuning plot, the variable importance and ROC plots, the collected
// metrics and out-of-fold predictions as CSV, and the final model as a gob
// snapshot that boost.Load reads back.
package vbtune
