package model

import (
	"encoding/binary"
	"math"
	"math/rand"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"go-ml.dev/pkg/harness/fu"
	"golang.org/x/xerrors"
	"gotest.tools/assert"
)

func syntheticDataset(rows, width int, seed int64) Dataset {
	rnd := rand.New(rand.NewSource(seed))
	ds := Dataset{Label: "y", X: make([][]float64, rows), Y: make([]float64, rows)}
	for j := 0; j < width; j++ {
		ds.Features = append(ds.Features, string(rune('a'+j)))
	}
	for i := range ds.X {
		r := make([]float64, width)
		for j := range r {
			r[j] = rnd.NormFloat64()*float64(j+1) + float64(j)
		}
		ds.X[i] = r
		ds.Y[i] = 3*r[0] - r[width-1] + rnd.NormFloat64()*0.01
	}
	return ds
}

func Test_TrainTestSplit(t *testing.T) {
	ds := syntheticDataset(100, 5, 1)
	s, err := TrainTestSplit(ds, 0.1, 123)
	assert.NilError(t, err)
	assert.Equal(t, s.Test.Len(), 10)
	assert.Equal(t, s.Train.Len(), 90)
	seen := map[int]bool{}
	for _, i := range append(append([]int{}, s.TrainIndex...), s.TestIndex...) {
		assert.Assert(t, !seen[i], "row %d is in both partitions", i)
		seen[i] = true
	}
	assert.Equal(t, len(seen), 100)
	assert.Assert(t, sort.IntsAreSorted(s.TestIndex))

	q, err := TrainTestSplit(ds, 0.1, 123)
	assert.NilError(t, err)
	assert.DeepEqual(t, s.TestIndex, q.TestIndex)
	assert.DeepEqual(t, s.Test.Y, q.Test.Y)

	o, err := TrainTestSplit(ds, 0.1, 7)
	assert.NilError(t, err)
	assert.Assert(t, !reflect.DeepEqual(s.TestIndex, o.TestIndex))
}

func Test_TrainTestSplitSizes(t *testing.T) {
	ds := syntheticDataset(37, 2, 2)
	for _, f := range []float64{0.1, 0.25, 0.5, 0.9} {
		s, err := TrainTestSplit(ds, f, 3)
		assert.NilError(t, err)
		assert.Equal(t, s.Test.Len()+s.Train.Len(), 37)
		assert.Assert(t, math.Abs(float64(s.Test.Len())-37*f) <= 1)
	}
	_, err := TrainTestSplit(ds, 0, 1)
	assert.ErrorContains(t, err, "test size")
	_, err = TrainTestSplit(syntheticDataset(1, 2, 2), 0.5, 1)
	assert.ErrorContains(t, err, "empty partition")
}

func Test_KFold(t *testing.T) {
	folds, err := KFold(23, 5, 123)
	assert.NilError(t, err)
	assert.Equal(t, len(folds), 5)
	seen := map[int]int{}
	for i, f := range folds {
		assert.Equal(t, len(f.Train)+len(f.Valid), 23)
		if i < 3 {
			assert.Equal(t, len(f.Valid), 5)
		} else {
			assert.Equal(t, len(f.Valid), 4)
		}
		for _, j := range f.Valid {
			seen[j]++
		}
	}
	assert.Equal(t, len(seen), 23)
	for _, c := range seen {
		assert.Equal(t, c, 1)
	}
	_, err = KFold(3, 5, 1)
	assert.ErrorContains(t, err, "can't split")
	_, err = KFold(10, 1, 1)
	assert.ErrorContains(t, err, "at least 2")
}

func Test_Scaler(t *testing.T) {
	X := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	sc, err := FitScaler(X)
	assert.NilError(t, err)
	assert.Equal(t, sc.Mean[0], 3.0)
	assert.Equal(t, sc.Scale[1], 1.0)
	r := sc.Transform(X)
	assert.Equal(t, r[1][0], 0.0)
	assert.Equal(t, r[2][1], 0.0)
	assert.Assert(t, math.Abs(r[0][0]+r[2][0]) < 1e-12)
	assert.Equal(t, X[0][0], 1.0)
	_, err = FitScaler(nil)
	assert.ErrorContains(t, err, "empty")
}

func Test_DatasetValidate(t *testing.T) {
	ds := Dataset{Features: []string{"a"}, X: [][]float64{{1}, {2}}, Y: []float64{1}}
	assert.ErrorContains(t, ds.Validate(), "target values")
	ds.Y = append(ds.Y, math.NaN())
	assert.NilError(t, ds.Validate())
	assert.Assert(t, !ds.Finite())
	ds.X[1] = []float64{1, 2}
	assert.ErrorContains(t, ds.Validate(), "row 1")
}

func Test_TrainingEarlyStop(t *testing.T) {
	scores := []float64{5, 4, 3, 3.5, 3.2, 3.1, 3.3, 3.4}
	w := Training{ScoreHistory: 3}.Workout()
	var report *Report
	for _, s := range scores {
		r, done, err := w.Complete(s+1, s, false)
		assert.NilError(t, err)
		if done {
			report = r
			break
		}
		w = w.Next()
	}
	assert.Assert(t, report != nil)
	assert.Equal(t, report.TheBest, 2)
	assert.Equal(t, report.Score, 3.0)
	assert.Equal(t, len(report.History), 6)
	assert.Assert(t, w.Next() == nil)
	_, _, err := w.Complete(1, 1, false)
	assert.ErrorContains(t, err, "already done")
}

func Test_TrainingLastAndLimit(t *testing.T) {
	w := Training{Iterations: 2}.Workout()
	_, done, err := w.Complete(2, 2, false)
	assert.NilError(t, err)
	assert.Assert(t, !done)
	w = w.Next()
	r, done, err := w.Complete(1, 1, false)
	assert.NilError(t, err)
	assert.Assert(t, done)
	assert.Equal(t, r.TheBest, 1)

	r, done, err = Training{}.Workout().Complete(1, 1, true)
	assert.NilError(t, err)
	assert.Assert(t, done)
	assert.Equal(t, r.TheBest, 0)
}

func Test_TrainingNonFinite(t *testing.T) {
	_, _, err := Training{}.Workout().Complete(1, math.Inf(1), false)
	assert.Assert(t, xerrors.Is(err, ErrTransient))
}

func Test_ParamsApply(t *testing.T) {
	var s struct {
		Depth int
		Rate  float64
		Flag  bool
	}
	Params{"depth": 4.6, "rate": 0.1, "flag": 1}.Apply(map[string]reflect.Value{
		"depth": reflect.ValueOf(&s.Depth),
		"rate":  reflect.ValueOf(&s.Rate),
		"flag":  reflect.ValueOf(&s.Flag),
	})
	assert.Equal(t, s.Depth, 5)
	assert.Equal(t, s.Rate, 0.1)
	assert.Assert(t, s.Flag)
	p := Params{"x": 1}
	c := p.Clone()
	c["x"] = 2
	assert.Equal(t, p.Get("x", 0), 1.0)
	assert.Equal(t, p.Get("y", 7), 7.0)
}

/* meanModel predicts the target mean and learns it one iteration at a time */
type meanModel struct{}

type meanPredictor struct {
	Names []string
	Value float64
}

func (meanPredictor) Algorithm() string { return "test-mean" }
func (m meanPredictor) Features() []string { return m.Names }
func (m meanPredictor) Predict(X [][]float64) []float64 {
	r := make([]float64, len(X))
	for i := range r {
		r[i] = m.Value
	}
	return r
}
func (m meanPredictor) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(m.Value))
	return b, nil
}

func init() {
	Register("test-mean", func(b []byte) (PredictionModel, error) {
		return meanPredictor{Value: math.Float64frombits(binary.LittleEndian.Uint64(b))}, nil
	})
}

func (meanModel) Feed(train, valid Dataset) FatModel {
	return func(w Workout) (*Report, error) {
		target := fu.Mean(train.Y)
		models := []meanPredictor{}
		v := 0.0
		for {
			v += (target - v) / 2
			m := meanPredictor{Names: train.Features, Value: v}
			models = append(models, m)
			trs := fu.Rmse(m.Predict(train.X), train.Y)
			vls := fu.Rmse(m.Predict(valid.X), valid.Y)
			report, done, err := w.Complete(trs, vls, len(models) >= 20)
			if err != nil {
				return nil, err
			}
			if done {
				report.Model = models[report.TheBest]
				return report, nil
			}
			w = w.Next()
		}
	}
}

func Test_AssembleMemorize(t *testing.T) {
	ds := syntheticDataset(60, 3, 5)
	s, err := TrainTestSplit(ds, 0.2, 123)
	assert.NilError(t, err)
	p, report, err := Assemble(meanModel{}, s.Train, s.Test, Training{ScoreHistory: 5})
	assert.NilError(t, err)
	assert.Assert(t, report.Score > 0)
	score, err := p.Score(s.Test)
	assert.NilError(t, err)
	assert.Assert(t, math.Abs(score-report.Valid) < 1e-9)

	path := filepath.Join(t.TempDir(), "model_test-mean")
	assert.NilError(t, Save(path, p))
	q, err := Load(path)
	assert.NilError(t, err)
	assert.Equal(t, q.Model.Algorithm(), "test-mean")
	assert.DeepEqual(t, q.Scaler, p.Scaler)
	qs, err := q.Score(s.Test)
	assert.NilError(t, err)
	assert.Equal(t, qs, score)

	_, _, err = Assemble(meanModel{}, s.Train, Dataset{}, Training{})
	assert.Assert(t, xerrors.Is(err, ErrTransient))
}
