/*
Package ridge implements L2 regularized linear regression solved in closed form
*/
package ridge

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"go-ml.dev/pkg/harness/fu"
	"go-ml.dev/pkg/harness/model"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const Algorithm = "ridge"

const DefaultAlpha = 1.0

/*
Model is a hungry ridge regressor with intercept
*/
type Model struct {
	Alpha float64
}

func New(p model.Params) Model {
	m := Model{}
	p.Apply(map[string]reflect.Value{"alpha": reflect.ValueOf(&m.Alpha)})
	return m
}

func (e Model) Feed(train, valid model.Dataset) model.FatModel {
	return func(workout model.Workout) (*model.Report, error) {
		lr, err := fit(train, fu.Fnzd(e.Alpha, DefaultAlpha))
		if err != nil {
			return nil, err
		}
		report, done, err := workout.Complete(
			fu.Rmse(lr.Predict(train.X), train.Y),
			fu.Rmse(lr.Predict(valid.X), valid.Y),
			true)
		if err != nil {
			return nil, err
		}
		if !done {
			return nil, zorros.Errorf("ridge training is one shot but workout is not done")
		}
		report.Model = lr
		return report, nil
	}
}

func fit(train model.Dataset, alpha float64) (*Linear, error) {
	n, p := train.Len(), len(train.Features)
	if n == 0 {
		return nil, xerrors.Errorf("can't fit ridge on empty dataset: %w", model.ErrTransient)
	}
	if err := train.Validate(); err != nil {
		return nil, err
	}
	xm := make([]float64, p)
	for _, r := range train.X {
		floats.Add(xm, r)
	}
	floats.Scale(1/float64(n), xm)
	ym := fu.Mean(train.Y)

	X := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, r := range train.X {
		for j, v := range r {
			X.Set(i, j, v-xm[j])
		}
		y.SetVec(i, train.Y[i]-ym)
	}
	A := mat.NewSymDense(p, nil)
	A.SymOuterK(1, X.T())
	for j := 0; j < p; j++ {
		A.SetSym(j, j, A.At(j, j)+alpha)
	}
	b := mat.NewVecDense(p, nil)
	b.MulVec(X.T(), y)

	var ch mat.Cholesky
	if ok := ch.Factorize(A); !ok {
		return nil, xerrors.Errorf("ridge system is not positive definite: %w", model.ErrTransient)
	}
	w := mat.NewVecDense(p, nil)
	if err := ch.SolveVecTo(w, b); err != nil {
		return nil, xerrors.Errorf("ridge solve failed: %v: %w", err, model.ErrTransient)
	}
	coef := mat.Col(nil, 0, w)
	if !fu.Finite(coef) {
		return nil, xerrors.Errorf("ridge coefficients are not finite: %w", model.ErrTransient)
	}
	return &Linear{
		Names:     train.Features,
		Coef:      coef,
		Intercept: ym - floats.Dot(coef, xm),
	}, nil
}

/*
Linear is a fitted linear model
*/
type Linear struct {
	Names     []string  `cbor:"features"`
	Coef      []float64 `cbor:"coef"`
	Intercept float64   `cbor:"intercept"`
}

func (l *Linear) Algorithm() string  { return Algorithm }
func (l *Linear) Features() []string { return l.Names }

func (l *Linear) Predict(X [][]float64) []float64 {
	r := make([]float64, len(X))
	for i, x := range X {
		r[i] = l.Intercept + floats.Dot(l.Coef, x)
	}
	return r
}

// rawLinear has no methods, so cbor encodes its fields
type rawLinear Linear

func (l *Linear) MarshalBinary() ([]byte, error) {
	return cbor.Marshal((*rawLinear)(l))
}

func Decode(bs []byte) (model.PredictionModel, error) {
	l := &Linear{}
	if err := cbor.Unmarshal(bs, l); err != nil {
		return nil, zorros.Wrapf(err, "malformed ridge model: %v", err.Error())
	}
	if len(l.Coef) != len(l.Names) {
		return nil, zorros.Errorf("ridge model has %d coefficients for %d features", len(l.Coef), len(l.Names))
	}
	return l, nil
}

func init() {
	model.Register(Algorithm, Decode)
}
