package model

import (
	"io"
	"math"
	"reflect"

	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/xerrors"
)

/*
ErrTransient marks a training failure which spoils one fit only (degenerate fold, diverged loss)
and should not abort a search
*/
var ErrTransient = xerrors.New("transient training failure")

/*
HungryModel is an untrained regressor with its hyper-parameters set,
Feed binds it to train and validation rows
*/
type HungryModel interface {
	Feed(train, valid Dataset) FatModel
}

/*
Report describes the selected iteration of an early stopped training
*/
type Report struct {
	History      [][2]float64    // train/valid RMSE of every iteration
	TheBest      int             // the best iteration
	Train, Valid float64         // the best iteration metrics
	Score        float64         // the best score
	Model        PredictionModel // model truncated to the best iteration
}

/*
Workout is one boosting round (or the single fit of a one-shot model)
*/
type Workout interface {
	Iteration() int
	Complete(train, valid float64, last bool) (*Report, bool, error)
	Next() Workout
	Verbose(string)
}

/*
UnifiedTraining produces the first workout of a fresh training state,
every call is independent so one value can drive concurrent fits
*/
type UnifiedTraining interface {
	Workout() Workout
}

/*
FatModel is a model bound to its datasets, it iterates workouts until one reports done
*/
type FatModel func(workout Workout) (*Report, error)

/*
Train runs the bound model with a fresh workout
*/
func (f FatModel) Train(training UnifiedTraining) (*Report, error) {
	w := training.Workout()
	if c, ok := w.(io.Closer); ok {
		defer c.Close()
	}
	return f(w)
}

/*
PredictionModel is a trained regressor
*/
type PredictionModel interface {
	// Algorithm name used to restore memorized model
	Algorithm() string
	// Features model was trained on
	Features() []string
	// Predict returns one value per row
	Predict(X [][]float64) []float64
}

/*
Params maps hyper-parameter names to values, integers are kept as whole floats
*/
type Params map[string]float64

func (p Params) Get(name string, dflt float64) float64 {
	v, ok := p[name]
	if !ok {
		return dflt
	}
	return v
}

/*
Apply sets model fields referenced by name, integer fields get rounded value
*/
func (p Params) Apply(m map[string]reflect.Value) {
	for name, v := range p {
		field, ok := m[name]
		if !ok {
			panic(zorros.Panic(zorros.Errorf("hyper-parameter `%v` is not known to model", name)))
		}
		t := field.Type().Elem()
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			field.Elem().SetInt(int64(math.Round(v)))
		case reflect.Float32, reflect.Float64:
			field.Elem().SetFloat(v)
		case reflect.Bool:
			field.Elem().SetBool(v != 0)
		default:
			panic(zorros.Panic(zorros.Errorf("field `%v` of type %v can't be a hyper-parameter", name, t)))
		}
	}
}

/*
Clone returns a copy of parameters
*/
func (p Params) Clone() Params {
	r := make(Params, len(p))
	for k, v := range p {
		r[k] = v
	}
	return r
}
