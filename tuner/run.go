package tuner

import (
	"context"

	"go-ml.dev/pkg/harness/config"
	"go-ml.dev/pkg/harness/dataset"
	"go-ml.dev/pkg/harness/fu"
	"go-ml.dev/pkg/harness/model/hyperopt"
	"go-ml.dev/pkg/zorros/zlog"
)

/*
Run loads the dataset and runs every stage of kind pipeline, it stops at the first failed stage
*/
func Run(ctx context.Context, cfg *config.Config, kind Kind) (*Tuner, error) {
	zlog.Infof("%v loaded", kind)
	pc := kind.Pipeline(cfg)
	t := New(kind)
	t.NProcess, t.Verbose = pc.NProcess, pc.Verbose
	if cfg.StudyDB != "" {
		store, err := hyperopt.OpenStore(cfg.StudyDB)
		if err != nil {
			zlog.Errorf("Error at %v: %v", kind, err)
			return t, err
		}
		defer store.Close()
		t.Store = store
	}
	return t, run(ctx, t, cfg, pc)
}

func run(ctx context.Context, t *Tuner, cfg *config.Config, pc config.Pipeline) error {
	stages := []struct {
		name string
		f    fu.Func
	}{
		{"Preprocess", func(context.Context) error {
			ds, err := dataset.Load(cfg.Data)
			if err != nil {
				return err
			}
			return t.Preprocess(ds, SplitConfig{TestSize: pc.TestSize, Seed: pc.Seed})
		}},
		{"RunSearch", func(ctx context.Context) error {
			return t.RunSearch(ctx, pc.Trials, pc.Seed)
		}},
		{"TrainFinal", func(context.Context) error {
			return t.TrainFinal()
		}},
		{"Evaluate", func(context.Context) error {
			_, err := t.Evaluate(PersistConfig{Save: pc.SaveModel, Name: cfg.Model, Root: cfg.OutputDir})
			return err
		}},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.f(ctx); err != nil {
			zlog.Errorf("Error at %v.%v: %v", t.Kind, s.name, err)
			return err
		}
	}
	return nil
}
