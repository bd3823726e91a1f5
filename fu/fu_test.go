package fu

import (
	"context"
	"math"
	"testing"
	"time"

	"golang.org/x/xerrors"
	"gotest.tools/assert"
)

func Test_Rmse(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{1, 2, 3, 6}
	assert.Assert(t, math.Abs(Rmse(a, b)-1) < 1e-12)
	assert.Equal(t, Rmse(a, a), 0.0)
	assert.Equal(t, Mean(a), 2.5)
	assert.Assert(t, math.IsNaN(Mean(nil)))
}

func Test_Indmind(t *testing.T) {
	assert.Equal(t, Indmind([]float64{3, 1, 2, 1}), 1)
	assert.Equal(t, Indmind([]float64{5}), 0)
	assert.Equal(t, Indmind(nil), -1)
}

func Test_Ints(t *testing.T) {
	assert.Equal(t, Fnzi(0, 0, 3, 4), 3)
	assert.Equal(t, Fnzi(), 0)
	assert.Equal(t, Mini(3, 1, 2), 1)
	assert.Equal(t, Maxi(3, 1, 7), 7)
	assert.Equal(t, Fnzd(0, 0.5), 0.5)
}

func Test_ModelPath(t *testing.T) {
	assert.Equal(t, ModelPath("data", "m1"), "data/m1")
	assert.Equal(t, ModelPath("data", "/tmp/m1"), "/tmp/m1")
}

func Test_RetrySucceeds(t *testing.T) {
	calls := 0
	f := Retry(RetryPolicy{Delay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return xerrors.New("flaky")
		}
		return nil
	})
	assert.NilError(t, f(context.Background()))
	assert.Equal(t, calls, 3)
}

func Test_RetryExhausted(t *testing.T) {
	sentinel := xerrors.New("search exhausted")
	cause := xerrors.New("always")
	calls := 0
	f := Retry(RetryPolicy{Attempts: 3, Delay: time.Millisecond, Exhausted: sentinel}, func(context.Context) error {
		calls++
		return cause
	})
	err := f(context.Background())
	assert.Equal(t, calls, 3)
	assert.Assert(t, xerrors.Is(err, sentinel))
	assert.Assert(t, xerrors.Is(err, cause))
	assert.ErrorContains(t, err, "after 3 attempts")
}

func Test_RetryPermanent(t *testing.T) {
	cause := xerrors.New("bad input")
	calls := 0
	p := RetryPolicy{Delay: time.Millisecond, Retryable: func(err error) bool { return err != cause }}
	err := Retry(p, func(context.Context) error {
		calls++
		return cause
	})(context.Background())
	assert.Equal(t, calls, 1)
	assert.Equal(t, err, cause)
	assert.Assert(t, !xerrors.Is(err, ErrExhausted))
}

func Test_RetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(RetryPolicy{Delay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return xerrors.New("flaky")
	})(ctx)
	assert.Equal(t, calls, 1)
	assert.Assert(t, xerrors.Is(err, context.Canceled))
}

func Test_Measure(t *testing.T) {
	cause := xerrors.New("failed")
	err := Measure("stage", func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return cause
	})(context.Background())
	assert.Equal(t, err, cause)
}
