// Command vbtune tunes a boosted-tree classifier that predicts the winning
// team of a beach volleyball match from its box-score totals.
//
// Usage:
//
//	vbtune [-config file.yaml] [-log-level lvl] [-out dir] [-grid n]
//	       [-folds v] [-trees n] [-workers n] [-seed n]
//
// Settings come from defaults, then the YAML file (-config or VBTUNE_CONFIG),
// then VBTUNE_* environment variables; flags given on the command line win.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YuminosukeSato/vbtune/internal/config"
	"github.com/YuminosukeSato/vbtune/internal/pipeline"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
	"github.com/YuminosukeSato/vbtune/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if vberrors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "vbtune:", err)
		stop()
		os.Exit(1)
	}
}

type flags struct {
	config   string
	logLevel string
	out      string
	grid     int
	folds    int
	trees    int
	workers  int
	seed     int64
}

func parseFlags(args []string, stderr io.Writer) (*flags, *flag.FlagSet, error) {
	f := &flags{}
	fs := flag.NewFlagSet("vbtune", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML configuration file")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.out, "out", "", "output directory for plots, CSV files and the model")
	fs.IntVar(&f.grid, "grid", 0, "number of Latin hypercube candidates")
	fs.IntVar(&f.folds, "folds", 0, "number of cross-validation folds")
	fs.IntVar(&f.trees, "trees", 0, "boosting iterations per model")
	fs.IntVar(&f.workers, "workers", 0, "models fitted concurrently")
	fs.Int64Var(&f.seed, "seed", 0, "random seed")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

// apply copies the flags that were set on the command line into cfg.
func (f *flags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "out":
			cfg.OutputDir = f.out
		case "grid":
			cfg.GridSize = f.grid
		case "folds":
			cfg.Folds = f.folds
		case "trees":
			cfg.Trees = f.trees
		case "workers":
			cfg.Workers = f.workers
		case "seed":
			cfg.Seed = f.seed
		}
	})
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(ctx, f.config)
	if err != nil {
		return err
	}
	f.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := log.SetupLogger(cfg.LogLevel); err != nil {
		return err
	}
	logger := log.GetLoggerWithName("main")

	p, err := pipeline.New(ctx, cfg, stdout)
	if err != nil {
		return err
	}
	start := time.Now()
	sum, err := p.Run(ctx)
	if err != nil {
		logger.Error("run failed", log.ErrAttrKey, err)
		return err
	}
	logger.Info("run finished",
		log.RunIDKey, sum.RunID,
		log.CandidateKey, sum.Best.ID,
		log.AUCKey, sum.Final["roc_auc"],
		log.AccuracyKey, sum.Final["accuracy"],
		log.DurationMsKey, time.Since(start).Milliseconds(),
		"output_dir", sum.OutputDir,
	)
	return nil
}
