package tuner

import (
	"go-ml.dev/pkg/harness/config"
	"go-ml.dev/pkg/harness/model"
	"go-ml.dev/pkg/harness/model/gbm"
	"go-ml.dev/pkg/harness/model/hyperopt"
	"go-ml.dev/pkg/harness/model/ridge"
	"golang.org/x/xerrors"
)

/*
Kind is a closed set of model pipelines selectable by name
*/
type Kind int

const (
	Model1 Kind = iota + 1 // boosted trees
	Model2                 // ridge regression
)

var ErrUnknownModel = xerrors.New("unknown model")

var kinds = map[string]Kind{"model1": Model1, "model2": Model2}

func ParseKind(name string) (Kind, error) {
	if k, ok := kinds[name]; ok {
		return k, nil
	}
	return 0, xerrors.Errorf("model name `%v` is invalid: %w", name, ErrUnknownModel)
}

func (k Kind) String() string {
	switch k {
	case Model1:
		return "model1"
	case Model2:
		return "model2"
	}
	return "unknown"
}

/*
Algorithm is used in model artifact name
*/
func (k Kind) Algorithm() string {
	if k == Model2 {
		return ridge.Algorithm
	}
	return gbm.Algorithm
}

/*
Variance is the searched hyper-parameters space
*/
func (k Kind) Variance() hyperopt.Variance {
	if k == Model2 {
		return hyperopt.Variance{
			"alpha": hyperopt.LogRange{1e-4, 1e3},
		}
	}
	return hyperopt.Variance{
		"max_depth":     hyperopt.IntRange{3, 12},
		"learning_rate": hyperopt.Range{0.01, 0.3},
		"reg_alpha":     hyperopt.Range{0.1, 10},
		"reg_lambda":    hyperopt.Range{0.1, 100},
	}
}

const (
	MaxRounds           = 10000
	EarlyStoppingRounds = 30
)

/*
Model returns hungry model with searched parameters p on top of fixed ones
*/
func (k Kind) Model(p model.Params, seed int64) model.HungryModel {
	if k == Model2 {
		return ridge.New(p)
	}
	q := model.Params{
		"n_estimators":      MaxRounds,
		"min_child_samples": 10,
		"subsample":         0.9,
		"colsample_bytree":  0.9,
		"seed":              float64(seed),
	}
	for n, v := range p {
		q[n] = v
	}
	return gbm.New(q)
}

/*
Pipeline returns the configuration section of kind
*/
func (k Kind) Pipeline(cfg *config.Config) config.Pipeline {
	if k == Model2 {
		return cfg.Model2
	}
	return cfg.Model1
}
