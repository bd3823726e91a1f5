package model

import (
	"fmt"
	"math"

	"go-ml.dev/pkg/harness/fu"
	"go-ml.dev/pkg/zorros/zlog"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/xerrors"
)

/*
Training is the default implementation of unified training interface
with early stopping on validation score
*/
type Training struct {
	Iterations   int          // maximum iterations
	ScoreHistory int          // iterations without validation improvement before stop
	Verbose      func(string) // print function
	VerboseEvery int          // print every n-th iteration, DefaultVerboseEvery if zero
}

type training struct {
	Training
	perflog [][2]float64
	scorlog []float64
	done    bool
}

type workout struct {
	iteration int
	training  *training
}

const (
	DefaultIterations   = 10000
	DefaultScoreHistory = 30
	DefaultVerboseEvery = 100
)

func (t Training) Workout() Workout {
	return &workout{iteration: 0, training: &training{Training: t}}
}

func (w *workout) Iteration() int {
	return w.iteration
}

func (w *workout) report(j int) *Report {
	return &Report{
		History: w.training.perflog,
		TheBest: j,
		Train:   w.training.perflog[j][0],
		Valid:   w.training.perflog[j][1],
		Score:   w.training.scorlog[j],
	}
}

/*
Complete records iteration metrics and decides whether training is done.
Score is the validation RMSE, lower is better, the first best iteration wins
*/
func (w *workout) Complete(train, valid float64, last bool) (report *Report, done bool, err error) {
	if w.training.done {
		err = zorros.Errorf("training is already done")
		return
	}
	if math.IsNaN(train) || math.IsInf(train, 0) || math.IsNaN(valid) || math.IsInf(valid, 0) {
		w.training.done = true
		err = xerrors.Errorf("iteration %d has non-finite loss %v/%v: %w", w.iteration, train, valid, ErrTransient)
		return
	}
	histlen := fu.Fnzi(w.training.ScoreHistory, DefaultScoreHistory)
	maxiter := fu.Maxi(fu.Fnzi(w.training.Iterations, DefaultIterations), 1)
	w.training.scorlog = append(w.training.scorlog, valid)
	w.training.perflog = append(w.training.perflog, [2]float64{train, valid})
	best := fu.Indmind(w.training.scorlog)
	if last || w.iteration >= maxiter-1 || w.iteration-best >= histlen {
		w.training.done = true
		done = true
		report = w.report(best)
	}
	if w.training.Verbose != nil && (done || w.iteration%fu.Fnzi(w.training.VerboseEvery, DefaultVerboseEvery) == 0) {
		w.Verbose(fmt.Sprintf("[%4d] train rmse: %.5f, valid rmse: %.5f", w.iteration, train, valid))
		if done && w.iteration != best {
			w.Verbose(fmt.Sprintf("early stopping, the best iteration is [%4d] valid rmse: %.5f", best, w.training.scorlog[best]))
		}
	}
	return
}

func (w *workout) Verbose(s string) {
	if w.training.Verbose != nil {
		w.training.Verbose(s)
	}
}

func (w *workout) Next() Workout {
	if w.training.done {
		zlog.Warning("training is already done")
		return nil
	}
	return &workout{
		iteration: w.iteration + 1,
		training:  w.training,
	}
}
