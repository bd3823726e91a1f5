package model

import (
	"go-ml.dev/pkg/harness/fu"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/xerrors"
)

/*
Pipeline is a fitted feature scaler followed by a fitted regression model
*/
type Pipeline struct {
	Scaler *StandardScaler
	Model  PredictionModel
}

/*
Assemble fits a fresh scaler on train, feeds scaled train/valid to the model
and trains it with early stopping on valid
*/
func Assemble(m HungryModel, train, valid Dataset, training UnifiedTraining) (*Pipeline, *Report, error) {
	if train.Len() == 0 || valid.Len() == 0 {
		return nil, nil, xerrors.Errorf("degenerate partition train=%d valid=%d: %w", train.Len(), valid.Len(), ErrTransient)
	}
	sc, err := FitScaler(train.X)
	if err != nil {
		return nil, nil, err
	}
	report, err := m.Feed(sc.Apply(train), sc.Apply(valid)).Train(training)
	if err != nil {
		return nil, nil, err
	}
	if report == nil || report.Model == nil {
		return nil, nil, zorros.Errorf("training did not produce a model")
	}
	return &Pipeline{Scaler: sc, Model: report.Model}, report, nil
}

func (p *Pipeline) Predict(X [][]float64) []float64 {
	if p.Scaler != nil {
		X = p.Scaler.Transform(X)
	}
	return p.Model.Predict(X)
}

/*
Score returns RMSE of pipeline predictions on the dataset
*/
func (p *Pipeline) Score(ds Dataset) (float64, error) {
	if ds.Len() == 0 {
		return 0, zorros.Errorf("can't score on empty dataset")
	}
	return fu.Rmse(p.Predict(ds.X), ds.Y), nil
}
