/*
Package tuner runs an experiment: split, hyper-parameter search, final training and evaluation
*/
package tuner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go-ml.dev/pkg/harness/fu"
	"go-ml.dev/pkg/harness/model"
	"go-ml.dev/pkg/harness/model/hyperopt"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/xerrors"
)

type Stage int

const (
	Unconfigured Stage = iota
	Preprocessed
	Tuned
	Trained
	Evaluated
)

func (s Stage) String() string {
	return [...]string{"unconfigured", "preprocessed", "tuned", "trained", "evaluated"}[s]
}

/*
ErrStage is returned when a stage is called before its predecessor completed
*/
var ErrStage = xerrors.New("stage is called out of order")

type SplitConfig struct {
	TestSize float64
	Seed     int64
}

/*
PersistConfig controls model artifact saving, it's written as <Name>_<algorithm>_<YYYYMMDD-HHMMSS> under Root
*/
type PersistConfig struct {
	Save bool
	Name string
	Root string
}

/*
Tuner is a strictly sequential stage machine
*/
type Tuner struct {
	Kind     Kind
	NProcess int
	Verbose  int
	Store    *hyperopt.Store  // optional trials storage
	Retry    fu.RetryPolicy   // search retry policy
	Out      io.Writer        // test score is printed here, os.Stdout if nil
	Now      func() time.Time // artifact timestamp, time.Now if nil

	models func(model.Params, int64) model.HungryModel

	stage    Stage
	split    SplitConfig
	train    model.Dataset
	test     model.Dataset
	study    *hyperopt.Study
	best     hyperopt.Trial
	pipeline *model.Pipeline
	report   *model.Report
	score    float64
	artifact string
}

func New(kind Kind) *Tuner {
	return &Tuner{Kind: kind, models: kind.Model}
}

func (t *Tuner) Stage() Stage {
	return t.stage
}

func (t *Tuner) require(s Stage, op string) error {
	if t.stage != s {
		return xerrors.Errorf("%v requires %v tuner but it is %v: %w", op, s, t.stage, ErrStage)
	}
	return nil
}

func (t *Tuner) training() model.Training {
	tr := model.Training{Iterations: MaxRounds, ScoreHistory: EarlyStoppingRounds}
	if t.Verbose > 0 {
		tr.Verbose = func(s string) { zlog.Info(s) }
	}
	return tr
}

/*
Preprocess reserves the test partition
*/
func (t *Tuner) Preprocess(ds model.Dataset, sc SplitConfig) error {
	if err := t.require(Unconfigured, "Preprocess"); err != nil {
		return err
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	zlog.Infof("%v seed: %v", t.Kind.Algorithm(), sc.Seed)
	s, err := model.TrainTestSplit(ds, sc.TestSize, sc.Seed)
	if err != nil {
		return err
	}
	t.split, t.train, t.test = sc, s.Train, s.Test
	zlog.Infof("Train partition has %d rows, test partition has %d rows", t.train.Len(), t.test.Len())
	t.stage = Preprocessed
	return nil
}

/*
RunSearch optimizes hyper-parameters with 5-fold cross-validation on the train partition.
The search is retried with a fresh study on transient failures only
*/
func (t *Tuner) RunSearch(ctx context.Context, budget int, seed int64) error {
	if err := t.require(Preprocessed, "RunSearch"); err != nil {
		return err
	}
	space := hyperopt.Space{
		Dataset:   t.train,
		Kfold:     hyperopt.DefaultKfold,
		Seed:      t.split.Seed,
		NProcess:  t.NProcess,
		Training:  t.training(),
		ModelFunc: func(p model.Params) model.HungryModel { return t.models(p, t.split.Seed) },
	}
	objective, err := space.Objective()
	if err != nil {
		return err
	}
	policy := t.Retry
	policy.Exhausted = hyperopt.ErrSearchExhausted
	if policy.Retryable == nil {
		policy.Retryable = transient
	}
	var study *hyperopt.Study
	search := fu.Measure("RunSearch", fu.Retry(policy, func(ctx context.Context) error {
		zlog.Info("Optimization starting...")
		study = hyperopt.NewStudy(t.Kind.Variance(), hyperopt.TPE(seed), t.Store)
		if err := study.Optimize(ctx, objective, budget); err != nil {
			return err
		}
		if b, _ := study.Best(); b.State == hyperopt.Failed {
			return xerrors.Errorf("all %d trials of study %v failed: %w", budget, study.ID, model.ErrTransient)
		}
		zlog.Info("Optimization ended.")
		return nil
	}))
	if err := search(ctx); err != nil {
		return err
	}
	t.study = study
	t.best, _ = study.Best()
	zlog.Infof("Best Params: %v (trial %d, score %.5f)", t.best.Params, t.best.Number, t.best.Score)
	t.stage = Tuned
	return nil
}

func transient(err error) bool {
	return xerrors.Is(err, model.ErrTransient)
}

/*
TrainFinal fits scaler and model with the best parameters on a secondary split of the train partition
*/
func (t *Tuner) TrainFinal() error {
	if err := t.require(Tuned, "TrainFinal"); err != nil {
		return err
	}
	zlog.Info("Creating model with best params.")
	s, err := model.TrainTestSplit(t.train, t.split.TestSize, t.split.Seed)
	if err != nil {
		return err
	}
	pipe, report, err := model.Assemble(t.models(t.best.Params, t.split.Seed), s.Train, s.Test, t.training())
	if err != nil {
		return err
	}
	t.pipeline, t.report = pipe, report
	zlog.Infof("Model created, best iteration %d with valid rmse %.5f", report.TheBest, report.Valid)
	t.stage = Trained
	return nil
}

/*
Evaluate scores the pipeline on the test partition and optionally saves the model artifact
*/
func (t *Tuner) Evaluate(p PersistConfig) (float64, error) {
	if err := t.require(Trained, "Evaluate"); err != nil {
		return 0, err
	}
	score, err := t.pipeline.Score(t.test)
	if err != nil {
		return 0, err
	}
	out := t.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "Test RMSE: %.4f\n", score)
	zlog.Infof("Test RMSE: %.4f", score)
	if p.Save {
		now := time.Now
		if t.Now != nil {
			now = t.Now
		}
		name := fmt.Sprintf("%v_%v_%v", p.Name, t.Kind.Algorithm(), now().Format("20060102-150405"))
		path := fu.ModelPath(p.Root, name)
		zlog.Infof("Saving %v: %v", p.Name, path)
		if err = model.Save(path, t.pipeline); err != nil {
			return 0, err
		}
		t.artifact = path
	}
	t.score = score
	t.stage = Evaluated
	return score, nil
}

/*
Trials returns trials of the successful study
*/
func (t *Tuner) Trials() []hyperopt.Trial {
	if t.study == nil {
		return nil
	}
	return t.study.Trials()
}

func (t *Tuner) Best() hyperopt.Trial {
	return t.best
}

func (t *Tuner) Pipeline() *model.Pipeline {
	return t.pipeline
}

/*
Artifact returns path of saved model, empty if it was not saved
*/
func (t *Tuner) Artifact() string {
	return t.artifact
}
