package hyperopt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go-ml.dev/pkg/harness/model"
	"go-ml.dev/pkg/zorros/zlog"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/xerrors"
)

/*
SentinelScore is recorded for a trial which failed to fit
*/
const SentinelScore = 10000.0

/*
ErrSearchExhausted is returned when every search attempt failed
*/
var ErrSearchExhausted = xerrors.New("hyper-parameter search exhausted")

type TrialState int

const (
	Complete TrialState = iota
	Failed
)

func (s TrialState) String() string {
	if s == Failed {
		return "failed"
	}
	return "complete"
}

/*
Trial is an evaluated hyper-parameters set, immutable once recorded
*/
type Trial struct {
	Number   int
	Params   Params
	Score    float64
	State    TrialState
	Err      string
	Duration time.Duration
}

/*
Objective returns score of the hyper-parameters set, lower is better.
An error wrapping model.ErrTransient fails the trial only
*/
type Objective func(ctx context.Context, p Params) (float64, error)

/*
Study is a search state: ordered trials and the best one
*/
type Study struct {
	ID       string
	Variance Variance

	sampler Sampler
	store   *Store
	trials  []Trial
	best    int
}

/*
NewStudy creates an empty study, store is optional
*/
func NewStudy(variance Variance, sampler Sampler, store *Store) *Study {
	return &Study{
		ID:       uuid.New().String(),
		Variance: variance,
		sampler:  sampler,
		store:    store,
		best:     -1,
	}
}

/*
Optimize runs budget trials sequentially
*/
func (s *Study) Optimize(ctx context.Context, objective Objective, budget int) error {
	if err := s.Variance.Validate(); err != nil {
		return err
	}
	if budget <= 0 {
		return zorros.Errorf("trials budget must be positive, got %d", budget)
	}
	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := Trial{Number: len(s.trials), Params: s.sampler.suggest(s.Variance, s.trials)}
		start := time.Now()
		score, err := objective(ctx, t.Params.Clone())
		t.Duration = time.Since(start)
		if err != nil {
			if !xerrors.Is(err, model.ErrTransient) {
				return xerrors.Errorf("trial %d failed: %w", t.Number, err)
			}
			zlog.Warningf("Trial %d failed, scored as %v: %v", t.Number, SentinelScore, err)
			t.Score, t.State, t.Err = SentinelScore, Failed, err.Error()
		} else {
			t.Score, t.State = score, Complete
		}
		if err := s.record(t); err != nil {
			return err
		}
		b := s.trials[s.best]
		zlog.Infof("Trial %d finished with value: %.5f and parameters: %v. Best is trial %d with value: %.5f",
			t.Number, t.Score, t.Params, b.Number, b.Score)
	}
	return nil
}

func (s *Study) record(t Trial) error {
	if s.store != nil {
		if err := s.store.Append(s.ID, t); err != nil {
			return err
		}
	}
	s.trials = append(s.trials, t)
	if s.best < 0 || t.Score < s.trials[s.best].Score {
		s.best = len(s.trials) - 1
	}
	return nil
}

/*
Trials returns a copy of recorded trials in order
*/
func (s *Study) Trials() []Trial {
	return append([]Trial(nil), s.trials...)
}

/*
Best returns the trial with minimal score, the earliest wins on ties
*/
func (s *Study) Best() (Trial, bool) {
	if s.best < 0 {
		return Trial{}, false
	}
	return s.trials[s.best], true
}
