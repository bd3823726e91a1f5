/*
Package gbm implements gradient boosted regression trees with leaf-wise growth,
L1/L2 regularized leaves, row bagging, column sampling and early stopping
*/
package gbm

import (
	"math"
	"math/rand"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"go-ml.dev/pkg/harness/fu"
	"go-ml.dev/pkg/harness/model"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/xerrors"
)

const Algorithm = "gbm"

/*
Model is a hungry boosting regressor, zero fields take defaults
*/
type Model struct {
	MaxDepth        int     // tree depth limit, no limit if <= 0
	NumLeaves       int     // leaves per tree
	LearningRate    float64 // shrinkage
	RegAlpha        float64 // L1 leaf regularization
	RegLambda       float64 // L2 leaf regularization
	Estimators      int     // maximum boosting rounds
	MinChildSamples int     // minimal rows in a leaf
	Subsample       float64 // bagging fraction
	SubsampleFreq   int     // bagging is enabled when > 0, rows resampled every n-th round
	ColsampleBytree float64 // fraction of features used by a tree
	Seed            int
}

const (
	DefaultNumLeaves       = 31
	DefaultLearningRate    = 0.1
	DefaultEstimators      = 10000
	DefaultMinChildSamples = 20
)

/*
New returns a model with hyper-parameters applied, unknown parameter name panics
*/
func New(p model.Params) Model {
	m := Model{}
	p.Apply(m.refs())
	return m
}

func (e *Model) refs() map[string]reflect.Value {
	return map[string]reflect.Value{
		"max_depth":         reflect.ValueOf(&e.MaxDepth),
		"num_leaves":        reflect.ValueOf(&e.NumLeaves),
		"learning_rate":     reflect.ValueOf(&e.LearningRate),
		"reg_alpha":         reflect.ValueOf(&e.RegAlpha),
		"reg_lambda":        reflect.ValueOf(&e.RegLambda),
		"n_estimators":      reflect.ValueOf(&e.Estimators),
		"min_child_samples": reflect.ValueOf(&e.MinChildSamples),
		"subsample":         reflect.ValueOf(&e.Subsample),
		"subsample_freq":    reflect.ValueOf(&e.SubsampleFreq),
		"colsample_bytree":  reflect.ValueOf(&e.ColsampleBytree),
		"seed":              reflect.ValueOf(&e.Seed),
	}
}

func (e Model) normalized() Model {
	e.NumLeaves = fu.Maxi(fu.Fnzi(e.NumLeaves, DefaultNumLeaves), 2)
	e.LearningRate = fu.Fnzd(e.LearningRate, DefaultLearningRate)
	e.Estimators = fu.Maxi(fu.Fnzi(e.Estimators, DefaultEstimators), 1)
	e.MinChildSamples = fu.Maxi(fu.Fnzi(e.MinChildSamples, DefaultMinChildSamples), 1)
	e.Subsample = fu.Clampd(fu.Fnzd(e.Subsample, 1), 0, 1)
	e.ColsampleBytree = fu.Clampd(fu.Fnzd(e.ColsampleBytree, 1), 0, 1)
	e.RegAlpha = math.Max(e.RegAlpha, 0)
	e.RegLambda = math.Max(e.RegLambda, 0)
	return e
}

/*
Feed model with train and validation datasets
*/
func (e Model) Feed(train, valid model.Dataset) model.FatModel {
	return func(workout model.Workout) (*model.Report, error) {
		return fit(e.normalized(), train, valid, workout)
	}
}

func fit(e Model, train, valid model.Dataset, w model.Workout) (*model.Report, error) {
	if train.Len() == 0 || valid.Len() == 0 {
		return nil, xerrors.Errorf("can't boost on train=%d valid=%d rows: %w", train.Len(), valid.Len(), model.ErrTransient)
	}
	if err := train.Validate(); err != nil {
		return nil, err
	}
	if !train.Finite() {
		return nil, xerrors.Errorf("train target has non-finite values: %w", model.ErrTransient)
	}

	base := fu.Mean(train.Y)
	booster := &Booster{Names: train.Features, Base: base, Rate: e.LearningRate}
	trainPred := fill(train.Len(), base)
	validPred := fill(valid.Len(), base)
	rnd := rand.New(rand.NewSource(int64(e.Seed)))

	g := &grower{
		Model: e,
		X:     train.X,
		grad:  make([]float64, train.Len()),
	}
	rows := allRows(train.Len())
	for round := 0; ; round++ {
		for i, y := range train.Y {
			g.grad[i] = trainPred[i] - y
		}
		if e.SubsampleFreq > 0 && e.Subsample < 1 && round%e.SubsampleFreq == 0 {
			rows = bag(rnd, train.Len(), e.Subsample)
		}
		g.features = columns(rnd, len(train.Features), e.ColsampleBytree)
		tree := g.grow(rows)
		booster.Trees = append(booster.Trees, tree)
		for i, x := range train.X {
			trainPred[i] += tree.predict(x)
		}
		for i, x := range valid.X {
			validPred[i] += tree.predict(x)
		}
		report, done, err := w.Complete(fu.Rmse(trainPred, train.Y), fu.Rmse(validPred, valid.Y), round+1 >= e.Estimators)
		if err != nil {
			return nil, err
		}
		if done {
			booster.Trees = booster.Trees[:report.TheBest+1]
			report.Model = booster
			return report, nil
		}
		if w = w.Next(); w == nil {
			return nil, zorros.Errorf("workout is over before boosting is done")
		}
	}
}

func fill(n int, v float64) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = v
	}
	return r
}

func allRows(n int) []int {
	r := make([]int, n)
	for i := range r {
		r[i] = i
	}
	return r
}

func bag(rnd *rand.Rand, n int, fraction float64) []int {
	k := fu.Maxi(int(math.Ceil(float64(n)*fraction)), 1)
	r := rnd.Perm(n)[:k]
	return r
}

func columns(rnd *rand.Rand, n int, fraction float64) []int {
	k := fu.Maxi(int(math.Round(float64(n)*fraction)), 1)
	if k >= n {
		return allRows(n)
	}
	return rnd.Perm(n)[:k]
}

/*
Booster is a trained ensemble, a prediction is Base plus sum of tree outputs
*/
type Booster struct {
	Names []string `cbor:"features"`
	Base  float64  `cbor:"base"`
	Rate  float64  `cbor:"rate"`
	Trees []Tree   `cbor:"trees"`
}

func (b *Booster) Algorithm() string {
	return Algorithm
}

func (b *Booster) Features() []string {
	return b.Names
}

func (b *Booster) Predict(X [][]float64) []float64 {
	r := make([]float64, len(X))
	for i, x := range X {
		v := b.Base
		for _, t := range b.Trees {
			v += t.predict(x)
		}
		r[i] = v
	}
	return r
}

// rawBooster has no methods, so cbor encodes its fields
type rawBooster Booster

func (b *Booster) MarshalBinary() ([]byte, error) {
	return cbor.Marshal((*rawBooster)(b))
}

/*
Decode restores booster serialized by MarshalBinary
*/
func Decode(bs []byte) (model.PredictionModel, error) {
	b := &Booster{}
	if err := cbor.Unmarshal(bs, b); err != nil {
		return nil, zorros.Wrapf(err, "malformed booster: %v", err.Error())
	}
	for i, t := range b.Trees {
		if len(t.Nodes) == 0 {
			return nil, zorros.Errorf("booster tree %d has no nodes", i)
		}
	}
	return b, nil
}

func init() {
	model.Register(Algorithm, Decode)
}
