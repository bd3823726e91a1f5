package hyperopt

import (
	"context"
	"runtime"

	"go-ml.dev/pkg/harness/fu"
	"go-ml.dev/pkg/harness/model"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/sync/errgroup"
)

const DefaultKfold = 5

/*
Space is a definition of cross-validated hyper-parameters optimization space
*/
type Space struct {
	Dataset  model.Dataset         // training partition
	Kfold    int                   // count of dataset folds
	Seed     int64                 // folds shuffling seed
	NProcess int                   // folds fitted concurrently, all CPUs if <= 0
	Training model.UnifiedTraining // early stopping policy of every fold

	// the model generation function
	ModelFunc func(Params) model.HungryModel
}

/*
Objective returns the mean validation RMSE over folds,
every fold fits its own scaler on the fold train rows
*/
func (s Space) Objective() (Objective, error) {
	if err := s.Dataset.Validate(); err != nil {
		return nil, err
	}
	if s.ModelFunc == nil || s.Training == nil {
		return nil, zorros.Errorf("space requires model function and training")
	}
	folds, err := model.KFold(s.Dataset.Len(), fu.Fnzi(s.Kfold, DefaultKfold), s.Seed)
	if err != nil {
		return nil, err
	}
	nproc := s.NProcess
	if nproc <= 0 {
		nproc = runtime.NumCPU()
	}
	return func(ctx context.Context, p Params) (float64, error) {
		m := s.ModelFunc(p)
		scores := make([]float64, len(folds))
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(nproc)
		for i, f := range folds {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				valid := s.Dataset.Subset(f.Valid)
				pipe, _, err := model.Assemble(m, s.Dataset.Subset(f.Train), valid, s.Training)
				if err != nil {
					return err
				}
				scores[i], err = pipe.Score(valid)
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return 0, err
		}
		return fu.Mean(scores), nil
	}, nil
}
