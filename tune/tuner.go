package tune

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sort"
	"time"

	"github.com/YuminosukeSato/scigo/sklearn/lightgbm"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/vbtune/boost"
	"github.com/YuminosukeSato/vbtune/core/model"
	"github.com/YuminosukeSato/vbtune/core/parallel"
	"github.com/YuminosukeSato/vbtune/metrics"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
	"github.com/YuminosukeSato/vbtune/pkg/log"
)

// DefaultFolds is the number of cross-validation folds used when
// Tuner.Folds is zero.
const DefaultFolds = 10

// Observer receives the outcome of every (candidate, fold) job. Methods are
// called from worker goroutines and must be safe for concurrent use.
type Observer interface {
	JobDone(candidate, fold string, fit time.Duration, scores metrics.Scores)
	JobFailed(candidate, fold string, err error)
}

// ModelFactory builds an unfitted classifier for a parameter set.
type ModelFactory func(boost.Params) model.Classifier

// BoostFactory builds boost.Classifier models.
func BoostFactory(p boost.Params) model.Classifier {
	return boost.New(p)
}

// Tuner evaluates candidates by V-fold cross-validation.
type Tuner struct {
	// Folds is V; DefaultFolds when zero.
	Folds int
	// Workers bounds the number of concurrent jobs; NumCPU when zero.
	Workers int
	// Seed drives the fold assignment.
	Seed int64
	// SavePred keeps the out-of-fold predictions of every job.
	SavePred bool
	// Base carries the fixed classifier settings (trees, seed).
	Base boost.Params
	// NewModel builds the classifier for a job; BoostFactory when nil.
	NewModel ModelFactory
	// FeatureNames are passed to models that accept them.
	FeatureNames []string
	// Observer is optional.
	Observer Observer

	logger log.Logger
}

// NewTuner returns a Tuner with default folds and workers.
func NewTuner(base boost.Params, seed int64) *Tuner {
	return &Tuner{
		Folds:    DefaultFolds,
		Workers:  runtime.NumCPU(),
		Seed:     seed,
		Base:     base,
		NewModel: BoostFactory,
	}
}

type featureNamer interface {
	SetFeatureNames(names []string)
}

func (t *Tuner) log() log.Logger {
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("tune")
	}
	return t.logger
}

func (t *Tuner) build(p boost.Params) model.Classifier {
	factory := t.NewModel
	if factory == nil {
		factory = BoostFactory
	}
	m := factory(p)
	if fn, ok := m.(featureNamer); ok && len(t.FeatureNames) > 0 {
		fn.SetFeatureNames(t.FeatureNames)
	}
	return m
}

// fold is one analysis/assessment partition, materialised once and shared
// read-only by every candidate.
type fold struct {
	id     string
	rows   []int
	trainX *mat.Dense
	trainY *mat.VecDense
	testX  *mat.Dense
	testY  []float64
}

func subset(X *mat.Dense, y *mat.VecDense, idx []int) (*mat.Dense, *mat.VecDense) {
	_, p := X.Dims()
	sx := mat.NewDense(len(idx), p, nil)
	sy := mat.NewVecDense(len(idx), nil)
	for r, i := range idx {
		sx.SetRow(r, X.RawRowView(i))
		sy.SetVec(r, y.AtVec(i))
	}
	return sx, sy
}

const foldStream = 0x2545f4914f6cdd1d

// unpermute maps positions in the permuted order back to row indices, sorted.
func unpermute(perm, idx []int) []int {
	out := make([]int, len(idx))
	for i, k := range idx {
		out[i] = perm[k]
	}
	sort.Ints(out)
	return out
}

func (t *Tuner) folds(X *mat.Dense, y *mat.VecDense) ([]fold, error) {
	v := t.Folds
	if v == 0 {
		v = DefaultFolds
	}
	n, _ := X.Dims()
	if v < 2 {
		return nil, vberrors.NewValidationError("folds", "must be at least 2", v)
	}
	if n < v {
		return nil, vberrors.NewValueError("tune.Run", fmt.Sprintf("%d rows cannot be split into %d folds", n, v))
	}

	// StratifiedKFoldのshuffleはmapの走査順に依存するため、
	// 行の並べ替えはここで行い、分割自体はshuffleなしで行う。
	perm := rand.New(rand.NewPCG(uint64(t.Seed), uint64(t.Seed)^foldStream)).Perm(n)
	yp := mat.NewVecDense(n, nil)
	for i, j := range perm {
		yp.SetVec(i, y.AtVec(j))
	}
	splits := lightgbm.NewStratifiedKFold(v, false, 0).Split(mat.NewDense(n, 1, nil), yp)

	ids := sequenceIDs("Fold", len(splits))
	out := make([]fold, len(splits))
	for i, s := range splits {
		trainIdx := unpermute(perm, s.TrainIndices)
		testIdx := unpermute(perm, s.TestIndices)
		trX, trY := subset(X, y, trainIdx)
		teX, teY := subset(X, y, testIdx)
		out[i] = fold{
			id:     ids[i],
			rows:   testIdx,
			trainX: trX,
			trainY: trY,
			testX:  teX,
			testY:  mat.Col(nil, 0, teY),
		}
	}
	return out, nil
}

// Run fits every candidate on the analysis part of every fold and scores it
// on the assessment part. Jobs run concurrently on at most Workers
// goroutines. A failing job becomes a note on its candidate; Run fails with
// ErrAllJobsFailed only when no job succeeded. Cancelling ctx skips the
// remaining jobs and returns the context error.
func (t *Tuner) Run(ctx context.Context, X *mat.Dense, y *mat.VecDense, candidates []Candidate) (*Results, error) {
	if X == nil || y == nil {
		return nil, vberrors.NewModelError("tune.Run", "empty data", vberrors.ErrEmptyData)
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return nil, vberrors.NewModelError("tune.Run", "empty data", vberrors.ErrEmptyData)
	}
	if y.Len() != n {
		return nil, vberrors.NewDimensionError("tune.Run", n, y.Len(), 0)
	}
	if len(candidates) == 0 {
		return nil, vberrors.NewValidationError("candidates", "at least one candidate is required", 0)
	}
	for _, c := range candidates {
		if err := Finalize(c, t.Base).Validate(p); err != nil {
			return nil, vberrors.Wrapf(err, "candidate %s", c.ID)
		}
	}

	folds, err := t.folds(X, y)
	if err != nil {
		return nil, err
	}

	nJobs := len(candidates) * len(folds)
	res := newResults(candidates, folds, t.SavePred)
	logger := t.log()
	logger.Info("tuning started",
		log.OperationKey, log.OperationTune,
		log.GridSizeKey, len(candidates),
		log.FoldKey, len(folds),
		log.WorkersKey, t.Workers,
		log.SamplesKey, n,
		log.FeaturesKey, p,
	)
	start := time.Now()

	errs, ctxErr := parallel.ForEach(ctx, nJobs, t.Workers, func(ctx context.Context, job int) error {
		ci, fi := job/len(folds), job%len(folds)
		return t.runJob(candidates[ci], &folds[fi], res.slot(ci, fi))
	})
	if ctxErr != nil {
		logger.Warn("tuning cancelled", log.OperationKey, log.OperationTune, log.ErrAttrKey, ctxErr)
		return nil, vberrors.Wrap(ctxErr, "tune.Run")
	}

	failed := 0
	for job, e := range errs {
		if e == nil {
			continue
		}
		failed++
		ci, fi := job/len(folds), job%len(folds)
		res.notes = append(res.notes, Note{Candidate: candidates[ci].ID, Fold: folds[fi].id, Err: e})
		if t.Observer != nil {
			t.Observer.JobFailed(candidates[ci].ID, folds[fi].id, e)
		}
	}
	logger.Info("tuning finished",
		log.OperationKey, log.OperationTune,
		"jobs", nJobs,
		"failed", failed,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	if failed == nJobs {
		return res, vberrors.Wrapf(vberrors.ErrAllJobsFailed, "%d jobs, first error: %v", nJobs, errs[0])
	}
	return res, nil
}

func (t *Tuner) runJob(c Candidate, f *fold, s *slot) (err error) {
	defer vberrors.Recover(&err, "tune.job")

	m := t.build(Finalize(c, t.Base))
	start := time.Now()
	if err := m.Fit(f.trainX, f.trainY); err != nil {
		return err
	}
	elapsed := time.Since(start)

	proba, err := m.PredictProba(f.testX)
	if err != nil {
		return err
	}
	scores, err := metrics.Evaluate(f.testY, proba, boost.Threshold)
	if err != nil {
		return vberrors.Wrapf(err, "%s/%s", c.ID, f.id)
	}

	s.scores = scores
	if s.keepPred {
		s.proba = proba
	}
	t.log().Debug("job finished",
		log.CandidateKey, c.ID,
		log.FoldKey, f.id,
		log.AUCKey, scores[metrics.MetricRocAUC],
		log.DurationMsKey, elapsed.Milliseconds(),
	)
	if t.Observer != nil {
		t.Observer.JobDone(c.ID, f.id, elapsed, scores)
	}
	return nil
}

// sequenceIDs names n items prefix01..prefixNN, zero-padded to at least two
// digits.
func sequenceIDs(prefix string, n int) []string {
	width := len(fmt.Sprint(n))
	if width < 2 {
		width = 2
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%0*d", prefix, width, i+1)
	}
	return ids
}
