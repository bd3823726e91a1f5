package tuner

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-ml.dev/pkg/harness/config"
	"go-ml.dev/pkg/harness/dataset"
	"go-ml.dev/pkg/harness/fu"
	"go-ml.dev/pkg/harness/model"
	"go-ml.dev/pkg/harness/model/hyperopt"
	"go-ml.dev/pkg/harness/monitor"
	"golang.org/x/xerrors"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"
)

func synthetic(rows int) model.Dataset {
	rnd := rand.New(rand.NewSource(7))
	ds := model.Dataset{Features: []string{"f1", "f2", "f3", "f4", "f5"}, Label: "y"}
	for i := 0; i < rows; i++ {
		x := make([]float64, 5)
		for j := range x {
			x[j] = rnd.Float64() * 10
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, 3*x[0]+math.Sin(x[1])*5-x[2]+rnd.NormFloat64()*0.1)
	}
	return ds
}

func writeCsv(t *testing.T, dir string, ds model.Dataset) string {
	b := strings.Builder{}
	b.WriteString(strings.Join(append(append([]string{}, ds.Features...), ds.Label), ",") + "\n")
	for i, r := range ds.X {
		for _, v := range r {
			fmt.Fprintf(&b, "%v,", v)
		}
		fmt.Fprintf(&b, "%v\n", ds.Y[i])
	}
	path := filepath.Join(dir, "train.csv")
	assert.NilError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func Test_ParseKind(t *testing.T) {
	k, err := ParseKind("model1")
	assert.NilError(t, err)
	assert.Equal(t, k, Model1)
	assert.Equal(t, k.Algorithm(), "gbm")
	k, err = ParseKind("model2")
	assert.NilError(t, err)
	assert.Equal(t, k.String(), "model2")
	_, err = ParseKind("model3")
	assert.Assert(t, xerrors.Is(err, ErrUnknownModel))
}

func Test_StageOrder(t *testing.T) {
	tn := New(Model1)
	assert.Assert(t, xerrors.Is(tn.RunSearch(context.Background(), 3, 1), ErrStage))
	assert.Assert(t, xerrors.Is(tn.TrainFinal(), ErrStage))
	_, err := tn.Evaluate(PersistConfig{})
	assert.Assert(t, xerrors.Is(err, ErrStage))
	assert.NilError(t, tn.Preprocess(synthetic(100), SplitConfig{TestSize: 0.1, Seed: 123}))
	assert.Equal(t, tn.Stage(), Preprocessed)
	assert.Assert(t, xerrors.Is(tn.Preprocess(synthetic(100), SplitConfig{TestSize: 0.1, Seed: 123}), ErrStage))
	assert.Assert(t, xerrors.Is(tn.TrainFinal(), ErrStage))
}

func Test_Model1Stages(t *testing.T) {
	dir := t.TempDir()
	tn := New(Model1)
	tn.NProcess = 2
	out := &bytes.Buffer{}
	tn.Out = out
	tn.Now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	assert.NilError(t, tn.Preprocess(synthetic(100), SplitConfig{TestSize: 0.1, Seed: 123}))
	assert.Equal(t, tn.test.Len(), 10)
	assert.Equal(t, tn.train.Len(), 90)

	assert.NilError(t, tn.RunSearch(context.Background(), 3, 123))
	trials := tn.Trials()
	assert.Equal(t, len(trials), 3)
	for _, tr := range trials {
		assert.Assert(t, tn.Best().Score <= tr.Score)
		assert.Assert(t, tr.Params["max_depth"] >= 3 && tr.Params["max_depth"] <= 12)
		assert.Assert(t, tr.Params["learning_rate"] >= 0.01 && tr.Params["learning_rate"] <= 0.3)
	}

	assert.NilError(t, tn.TrainFinal())
	score, err := tn.Evaluate(PersistConfig{Save: true, Name: "model1", Root: dir})
	assert.NilError(t, err)
	assert.Equal(t, tn.Stage(), Evaluated)
	assert.Equal(t, out.String(), fmt.Sprintf("Test RMSE: %.4f\n", score))
	assert.Equal(t, tn.Artifact(), filepath.Join(dir, "model1_gbm_20240506-070809"))

	p, err := model.Load(tn.Artifact())
	assert.NilError(t, err)
	restored, err := p.Score(tn.test)
	assert.NilError(t, err)
	assert.Equal(t, restored, score)
}

func Test_SearchIsDeterministic(t *testing.T) {
	run := func() []hyperopt.Trial {
		tn := New(Model2)
		assert.NilError(t, tn.Preprocess(synthetic(60), SplitConfig{TestSize: 0.2, Seed: 1}))
		assert.NilError(t, tn.RunSearch(context.Background(), 4, 9))
		return tn.Trials()
	}
	a, b := run(), run()
	for i := range a {
		assert.DeepEqual(t, a[i].Params, b[i].Params)
		assert.Equal(t, a[i].Score, b[i].Score)
	}
}

type flaky struct {
	mu    *sync.Mutex
	calls *int
	fail  func(int) bool
	model.HungryModel
}

func (f flaky) Feed(train, valid model.Dataset) model.FatModel {
	f.mu.Lock()
	*f.calls++
	n := *f.calls
	f.mu.Unlock()
	if f.fail(n) {
		return func(model.Workout) (*model.Report, error) {
			return nil, xerrors.Errorf("degenerate fold: %w", model.ErrTransient)
		}
	}
	return f.HungryModel.Feed(train, valid)
}

func Test_TransientTrialGetsSentinel(t *testing.T) {
	tn := New(Model2)
	mu, calls := &sync.Mutex{}, 0
	tn.NProcess = 1
	tn.models = func(p model.Params, seed int64) model.HungryModel {
		// the first trial has folds 1..5
		return flaky{mu, &calls, func(n int) bool { return n == 3 }, Model2.Model(p, seed)}
	}
	assert.NilError(t, tn.Preprocess(synthetic(60), SplitConfig{TestSize: 0.2, Seed: 1}))
	assert.NilError(t, tn.RunSearch(context.Background(), 3, 1))
	trials := tn.Trials()
	assert.Equal(t, len(trials), 3)
	assert.Equal(t, trials[0].Score, hyperopt.SentinelScore)
	assert.Equal(t, trials[0].State, hyperopt.Failed)
	assert.Assert(t, tn.Best().Number != 0)
}

func Test_SearchExhausted(t *testing.T) {
	tn := New(Model2)
	tn.Retry = fu.RetryPolicy{Delay: 10 * time.Millisecond}
	tn.NProcess = 1
	mu, calls := &sync.Mutex{}, 0
	tn.models = func(p model.Params, seed int64) model.HungryModel {
		return flaky{mu, &calls, func(int) bool { return true }, Model2.Model(p, seed)}
	}
	assert.NilError(t, tn.Preprocess(synthetic(60), SplitConfig{TestSize: 0.2, Seed: 1}))
	err := tn.RunSearch(context.Background(), 2, 1)
	assert.Assert(t, xerrors.Is(err, hyperopt.ErrSearchExhausted))
	assert.Assert(t, xerrors.Is(err, model.ErrTransient))
	assert.Assert(t, cmp.Contains(err.Error(), "after 3 attempts"))
	// 3 attempts of 2 trials, the first fold fails and cancels the rest
	assert.Equal(t, calls, 6)
	assert.Equal(t, tn.Stage(), Preprocessed)
}

type broken struct {
	calls *int
	model.HungryModel
}

func (b broken) Feed(model.Dataset, model.Dataset) model.FatModel {
	*b.calls++
	return func(model.Workout) (*model.Report, error) {
		return nil, xerrors.New("singular design matrix")
	}
}

func Test_SearchPermanentFailure(t *testing.T) {
	tn := New(Model2)
	tn.Retry = fu.RetryPolicy{Delay: 10 * time.Millisecond}
	tn.NProcess = 1
	calls := 0
	tn.models = func(p model.Params, seed int64) model.HungryModel {
		return broken{&calls, Model2.Model(p, seed)}
	}
	assert.NilError(t, tn.Preprocess(synthetic(60), SplitConfig{TestSize: 0.2, Seed: 1}))
	err := tn.RunSearch(context.Background(), 2, 1)
	assert.ErrorContains(t, err, "singular design matrix")
	assert.Assert(t, !xerrors.Is(err, hyperopt.ErrSearchExhausted))
	assert.Assert(t, !xerrors.Is(err, model.ErrTransient))
	// the first fold of the first trial aborts the only attempt
	assert.Equal(t, calls, 1)
	assert.Equal(t, tn.Stage(), Preprocessed)
}

func Test_RunModel2(t *testing.T) {
	dir := t.TempDir()
	writeCsv(t, dir, synthetic(80))
	cfg := config.Default()
	cfg.Model = "model2"
	cfg.Data.File = "train.csv"
	cfg.Data.Root = dir
	cfg.OutputDir = dir
	cfg.StudyDB = filepath.Join(dir, "study.db")
	cfg.Model2.SaveModel = true
	tn, err := Run(context.Background(), &cfg, Model2)
	assert.NilError(t, err)
	assert.Equal(t, tn.Stage(), Evaluated)
	assert.Assert(t, strings.HasPrefix(filepath.Base(tn.Artifact()), "model2_ridge_"))
	_, err = os.Stat(tn.Artifact())
	assert.NilError(t, err)

	store, err := hyperopt.OpenStore(cfg.StudyDB)
	assert.NilError(t, err)
	defer store.Close()
	stored, err := store.Trials(tn.study.ID)
	assert.NilError(t, err)
	assert.Equal(t, len(stored), config.DefaultTrials)
}

func Test_MissingDatasetKeepsMonitor(t *testing.T) {
	var mu sync.Mutex
	n := 0
	m, err := monitor.New(time.Second, monitor.WithObserver(func(monitor.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		n++
	}))
	assert.NilError(t, err)
	m.Start()
	defer m.Stop(5 * time.Second)

	cfg := config.Default()
	cfg.Model = "model1"
	cfg.Data.File = "absent.csv"
	cfg.Data.Root = t.TempDir()
	tn, err := Run(context.Background(), &cfg, Model1)
	var u *dataset.Unavailable
	assert.Assert(t, xerrors.As(err, &u))
	assert.Equal(t, tn.Stage(), Unconfigured)

	time.Sleep(1500 * time.Millisecond)
	assert.Assert(t, m.Running())
	mu.Lock()
	defer mu.Unlock()
	assert.Assert(t, n >= 2, "%d snapshots", n)
}
