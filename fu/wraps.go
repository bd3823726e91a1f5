package fu

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/xerrors"
)

/*
Func is a blocking stage function wrapped by Measure and Retry
*/
type Func func(context.Context) error

/*
Measure wraps f and logs the time it took
*/
func Measure(name string, f Func) Func {
	return func(ctx context.Context) error {
		start := time.Now()
		err := f(ctx)
		zlog.Infof("%v executed in %.1f seconds", name, time.Since(start).Seconds())
		return err
	}
}

var ErrExhausted = xerrors.New("retry attempts exhausted")

const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 10 * time.Second
)

/*
RetryPolicy is a fixed delay retry policy
*/
type RetryPolicy struct {
	Attempts  int              // total attempts, DefaultRetryAttempts if zero
	Delay     time.Duration    // delay between attempts, DefaultRetryDelay if zero
	Retryable func(error) bool // all errors except context ones are retried if nil
	Exhausted error            // sentinel matched by the final error, ErrExhausted if nil
}

func (p RetryPolicy) attempts() int {
	return Maxi(Fnzi(p.Attempts, DefaultRetryAttempts), 1)
}

func (p RetryPolicy) delay() time.Duration {
	if p.Delay > 0 {
		return p.Delay
	}
	return DefaultRetryDelay
}

func (p RetryPolicy) retryable(err error) bool {
	if xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

type exhausted struct {
	sentinel error
	attempts int
	err      error
}

func (e *exhausted) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", e.sentinel, e.attempts, e.err)
}

func (e *exhausted) Unwrap() error { return e.err }

func (e *exhausted) Is(target error) bool { return target == e.sentinel }

/*
Retry wraps f to be called up to p.Attempts times with fixed p.Delay between attempts.
The last error is returned wrapped into the p.Exhausted sentinel
*/
func Retry(p RetryPolicy, f Func) Func {
	return func(ctx context.Context) error {
		attempts := p.attempts()
		try := 0
		_, err := backoff.Retry(ctx,
			func() (struct{}, error) {
				try++
				err := f(ctx)
				if err != nil && !p.retryable(err) {
					return struct{}{}, backoff.Permanent(err)
				}
				return struct{}{}, err
			},
			backoff.WithBackOff(backoff.NewConstantBackOff(p.delay())),
			backoff.WithMaxTries(uint(attempts)),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				zlog.Errorf("Attempt %d failed: %v. Retrying in %v...", try, err, next)
			}))
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}
		zlog.Errorf("Attempt %d failed: %v. Giving up", try, err)
		sentinel := p.Exhausted
		if sentinel == nil {
			sentinel = ErrExhausted
		}
		return &exhausted{sentinel, try, err}
	}
}
