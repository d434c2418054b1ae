package tune

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/vbtune/boost"
	"github.com/YuminosukeSato/vbtune/core/model"
	"github.com/YuminosukeSato/vbtune/metrics"
	vberrors "github.com/YuminosukeSato/vbtune/pkg/errors"
)

// fakeModel predicts 0.5 + skill*(x0-0.5) with skill = tree_depth/15, so a
// deeper candidate has a lower log loss and every candidate ranks rows the
// same way.
type fakeModel struct {
	params boost.Params
	fail   bool
	fitted bool
	block  chan struct{}
}

func (m *fakeModel) Fit(X, y mat.Matrix) error {
	if m.block != nil {
		<-m.block
	}
	if m.fail {
		return vberrors.NewModelError("fake.Fit", "training failed", nil)
	}
	m.fitted = true
	return nil
}

func (m *fakeModel) PredictProba(X mat.Matrix) ([]float64, error) {
	if !m.fitted {
		return nil, vberrors.NewNotFittedError("fakeModel", "PredictProba")
	}
	n, _ := X.Dims()
	skill := float64(m.params.TreeDepth) / 15
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 + skill*(X.At(i, 0)-0.5)
	}
	return out, nil
}

func (m *fakeModel) Predict(X mat.Matrix) ([]float64, error) {
	p, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return boost.ClassesFromProba(p), nil
}

func (m *fakeModel) FeatureImportance() ([]float64, error) {
	return []float64{1, 0}, nil
}

// labelled returns n rows whose first column is 0.9 for wins and 0.1 for
// losses, alternating.
func labelled(n int) (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 1, float64(i))
		if i%2 == 0 {
			X.Set(i, 0, 0.9)
			y.SetVec(i, 1)
		} else {
			X.Set(i, 0, 0.1)
		}
	}
	return X, y
}

func candidates(depths ...int) []Candidate {
	ids := CandidateIDs(len(depths))
	out := make([]Candidate, len(depths))
	for i, d := range depths {
		out[i] = Candidate{ID: ids[i], TreeDepth: d, MinN: 2, LossReduction: 1e-5, SampleSize: 1, Mtry: 2, LearnRate: 0.1}
	}
	return out
}

func fakeTuner(folds int, failDepth int) *Tuner {
	tu := NewTuner(boost.DefaultParams(), 42)
	tu.Folds = folds
	tu.Workers = 4
	tu.NewModel = func(p boost.Params) model.Classifier {
		return &fakeModel{params: p, fail: p.TreeDepth == failDepth}
	}
	return tu
}

type recordingObserver struct {
	mu     sync.Mutex
	done   int
	failed int
}

func (o *recordingObserver) JobDone(_, _ string, _ time.Duration, _ metrics.Scores) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done++
}

func (o *recordingObserver) JobFailed(_, _ string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}

func TestTunerRun(t *testing.T) {
	X, y := labelled(100)
	obs := &recordingObserver{}
	tu := fakeTuner(5, -1)
	tu.Observer = obs

	res, err := tu.Run(context.Background(), X, y, candidates(3, 12, 6))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Folds()) != 5 || res.Folds()[0] != "Fold01" {
		t.Errorf("folds = %v", res.Folds())
	}
	if obs.done != 15 || obs.failed != 0 {
		t.Errorf("observer saw %d done, %d failed; want 15, 0", obs.done, obs.failed)
	}
	if len(res.Notes()) != 0 {
		t.Errorf("unexpected notes: %v", res.Notes())
	}
	if got := len(res.Metrics()); got != 15*len(metrics.Names) {
		t.Errorf("Metrics() has %d rows, want %d", got, 15*len(metrics.Names))
	}

	collected := res.Collect()
	if len(collected) != 3*len(metrics.Names) {
		t.Fatalf("Collect() has %d rows", len(collected))
	}
	for _, s := range collected {
		if s.N != 5 {
			t.Errorf("%s %s: n = %d, want 5", s.Candidate.ID, s.Metric, s.N)
		}
		switch s.Metric {
		case metrics.MetricRocAUC, metrics.MetricAccuracy:
			if math.Abs(s.Mean-1) > 1e-12 || math.Abs(s.StdErr) > 1e-12 {
				t.Errorf("%s %s: mean %v std_err %v, want 1 and 0", s.Candidate.ID, s.Metric, s.Mean, s.StdErr)
			}
		}
	}

	best, err := res.ShowBest(metrics.MetricMnLogLoss, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(best) != 2 || best[0].Candidate.TreeDepth != 12 || best[1].Candidate.TreeDepth != 6 {
		t.Errorf("ShowBest(mn_log_loss) = %+v", best)
	}
	if best[0].Mean >= best[1].Mean {
		t.Error("log loss not ascending")
	}

	// AUCは全候補で同値なのでグリッド順が保たれる
	byAUC, _ := res.ShowBest(metrics.MetricRocAUC, 0)
	if len(byAUC) != 3 || byAUC[0].Candidate.ID != "Model01" {
		t.Errorf("ShowBest(roc_auc) ties reordered: %+v", byAUC)
	}

	sel, err := res.SelectBest(metrics.MetricMnLogLoss)
	if err != nil || sel.ID != "Model02" {
		t.Errorf("SelectBest = %v, %v; want Model02", sel.ID, err)
	}
	if _, err := res.ShowBest("brier", 1); err == nil {
		t.Error("expected error for unknown metric")
	}
	if res.Predictions() != nil {
		t.Error("predictions kept without SavePred")
	}
}

func TestTunerRunKeepsFailedJobsAsNotes(t *testing.T) {
	X, y := labelled(60)
	obs := &recordingObserver{}
	tu := fakeTuner(3, 12)
	tu.Observer = obs

	res, err := tu.Run(context.Background(), X, y, candidates(3, 12))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	notes := res.Notes()
	if len(notes) != 3 {
		t.Fatalf("notes = %d, want 3", len(notes))
	}
	for _, n := range notes {
		if n.Candidate != "Model02" || n.Err == nil {
			t.Errorf("unexpected note %+v", n)
		}
	}
	if obs.failed != 3 || obs.done != 3 {
		t.Errorf("observer saw %d done, %d failed", obs.done, obs.failed)
	}

	for _, s := range res.Collect() {
		if s.Candidate.ID == "Model02" && (s.N != 0 || !math.IsNaN(s.Mean)) {
			t.Errorf("failed candidate summary %+v", s)
		}
	}
	best, _ := res.ShowBest(metrics.MetricRocAUC, 5)
	if len(best) != 1 || best[0].Candidate.ID != "Model01" {
		t.Errorf("ShowBest included a failed candidate: %+v", best)
	}
}

func TestTunerRunAllJobsFailed(t *testing.T) {
	X, y := labelled(40)
	tu := fakeTuner(2, 5)

	_, err := tu.Run(context.Background(), X, y, candidates(5))
	if !vberrors.Is(err, vberrors.ErrAllJobsFailed) {
		t.Fatalf("err = %v, want ErrAllJobsFailed", err)
	}
}

func TestTunerRunCancelled(t *testing.T) {
	X, y := labelled(40)
	block := make(chan struct{})
	tu := fakeTuner(4, -1)
	tu.Workers = 1
	tu.NewModel = func(p boost.Params) model.Classifier {
		return &fakeModel{params: p, block: block}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		cancel()
		close(block)
	}()

	_, err := tu.Run(ctx, X, y, candidates(2, 4, 6))
	if !vberrors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTunerRunSavePred(t *testing.T) {
	X, y := labelled(50)
	tu := fakeTuner(5, -1)
	tu.SavePred = true

	res, err := tu.Run(context.Background(), X, y, candidates(3, 9))
	if err != nil {
		t.Fatal(err)
	}
	preds := res.Predictions()
	if len(preds) != 2*50 {
		t.Fatalf("predictions = %d, want 100", len(preds))
	}
	seen := make(map[string]map[int]bool)
	for _, p := range preds {
		if seen[p.Candidate] == nil {
			seen[p.Candidate] = make(map[int]bool)
		}
		if seen[p.Candidate][p.Row] {
			t.Fatalf("row %d predicted twice for %s", p.Row, p.Candidate)
		}
		seen[p.Candidate][p.Row] = true
		if p.Truth != y.AtVec(p.Row) {
			t.Errorf("row %d truth %v, want %v", p.Row, p.Truth, y.AtVec(p.Row))
		}
	}
}

func TestTunerRunValidation(t *testing.T) {
	X, y := labelled(20)
	tu := fakeTuner(5, -1)
	ctx := context.Background()

	if _, err := tu.Run(ctx, X, y, nil); err == nil {
		t.Error("expected error for no candidates")
	}
	if _, err := tu.Run(ctx, X, mat.NewVecDense(3, nil), candidates(3)); err == nil {
		t.Error("expected dimension error")
	}
	bad := candidates(3)
	bad[0].Mtry = 7
	if _, err := tu.Run(ctx, X, y, bad); err == nil {
		t.Error("expected error for mtry above the number of predictors")
	}

	tu.Folds = 30
	if _, err := tu.Run(ctx, X, y, candidates(3)); err == nil {
		t.Error("expected error for more folds than rows")
	}
	tu.Folds = 1
	if _, err := tu.Run(ctx, X, y, candidates(3)); err == nil {
		t.Error("expected error for a single fold")
	}
}

func TestLastFit(t *testing.T) {
	X, y := labelled(40)
	tX, ty := labelled(10)
	tu := fakeTuner(5, -1)

	params := Finalize(candidates(15)[0], tu.Base)
	fit, err := tu.LastFit(context.Background(), params, Dataset{X: X, Y: y}, Dataset{X: tX, Y: ty})
	if err != nil {
		t.Fatalf("LastFit: %v", err)
	}
	if fit.Metrics[metrics.MetricAccuracy] != 1 || fit.Metrics[metrics.MetricRocAUC] != 1 {
		t.Errorf("metrics = %v", fit.Metrics)
	}
	if len(fit.Proba) != 10 || len(fit.Pred) != 10 || len(fit.Truth) != 10 {
		t.Errorf("prediction lengths %d %d %d", len(fit.Proba), len(fit.Pred), len(fit.Truth))
	}
	cm, err := fit.Confusion()
	if err != nil || cm.TruePositive != 5 || cm.TrueNegative != 5 {
		t.Errorf("confusion = %+v, %v", cm, err)
	}
	if roc, err := fit.ROC(); err != nil || len(roc) < 3 {
		t.Errorf("roc = %v, %v", roc, err)
	}
	if len(fit.Importance) != 2 {
		t.Errorf("importance = %v", fit.Importance)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tu.LastFit(ctx, params, Dataset{X: X, Y: y}, Dataset{X: tX, Y: ty}); !vberrors.Is(err, context.Canceled) {
		t.Errorf("cancelled LastFit: %v", err)
	}
	if _, err := tu.LastFit(context.Background(), params, Dataset{}, Dataset{X: tX, Y: ty}); err == nil {
		t.Error("expected error for empty training set")
	}
}

func TestTunerWithBoostClassifier(t *testing.T) {
	if testing.Short() {
		t.Skip("trains real boosted trees")
	}
	X, y := labelled(80)
	base := boost.DefaultParams()
	base.Trees = 10
	tu := NewTuner(base, 7)
	tu.Folds = 2
	tu.Workers = 2
	tu.FeatureNames = []string{"x0", "row"}

	c := candidates(3)
	c[0].LearnRate = 0.3
	res, err := tu.Run(context.Background(), X, y, c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	best, err := res.SelectBest(metrics.MetricRocAUC)
	if err != nil || best.ID != "Model01" {
		t.Errorf("SelectBest = %v, %v", best, err)
	}
	if len(res.Notes()) != 0 {
		t.Fatalf("unexpected notes: %v", res.Notes())
	}

	// x0で完全に分離できるので、確率は校正されていなければならない
	for _, s := range res.Collect() {
		switch s.Metric {
		case metrics.MetricAccuracy:
			if s.Mean < 0.95 {
				t.Errorf("accuracy = %v, want >= 0.95", s.Mean)
			}
		case metrics.MetricMnLogLoss:
			if s.Mean > 0.5 || s.Mean <= 0 {
				t.Errorf("mn_log_loss = %v, want in (0, 0.5]", s.Mean)
			}
		case metrics.MetricRocAUC:
			if s.Mean < 0.99 {
				t.Errorf("roc_auc = %v, want >= 0.99", s.Mean)
			}
		}
	}
}

func TestFoldsAreReproducible(t *testing.T) {
	X, y := labelled(50)
	tu := fakeTuner(5, -1)

	first, err := tu.folds(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 5 {
		t.Fatalf("got %d folds", len(first))
	}
	seen := make(map[int]bool)
	for _, f := range first {
		wins := 0
		for _, r := range f.rows {
			if seen[r] {
				t.Errorf("row %d assessed twice", r)
			}
			seen[r] = true
			wins += int(y.AtVec(r))
		}
		if len(f.rows) != 10 || wins != 5 {
			t.Errorf("%s: %d rows, %d wins; want 10, 5", f.id, len(f.rows), wins)
		}
		if n, _ := f.trainX.Dims(); n != 40 {
			t.Errorf("%s: %d analysis rows, want 40", f.id, n)
		}
	}
	if len(seen) != 50 {
		t.Errorf("%d rows assessed, want 50", len(seen))
	}

	for i := 0; i < 50; i++ {
		again, err := tu.folds(X, y)
		if err != nil {
			t.Fatal(err)
		}
		for k := range first {
			if !equalInts(first[k].rows, again[k].rows) {
				t.Fatalf("attempt %d: %s = %v, want %v", i, first[k].id, again[k].rows, first[k].rows)
			}
		}
	}

	other := fakeTuner(5, -1)
	other.Seed = 43
	shifted, err := other.folds(X, y)
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for k := range first {
		same = same && equalInts(first[k].rows, shifted[k].rows)
	}
	if same {
		t.Error("a different seed gave the same folds")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
