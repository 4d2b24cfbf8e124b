package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultInitInitialInterval = 500 * time.Millisecond
	defaultInitMultiplier      = 2.0
	defaultInitMaxInterval     = 5 * time.Second
	defaultInitRandomization   = 0.5
	defaultInitMaxElapsed      = 20 * time.Second

	defaultFastMaxAttempts = 3
	defaultFastDelay       = 200 * time.Millisecond
)

// Policy bounds a short retry loop.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Retryable decides whether err deserves another attempt.
	// Nil retries everything that is not Permanent.
	Retryable func(error) bool
}

// DefaultFast is the policy RetryFast uses.
var DefaultFast = Policy{MaxAttempts: defaultFastMaxAttempts, Delay: defaultFastDelay}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultFastMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

func (p Policy) shouldRetry(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// PermanentError wraps a non-retryable error.
type PermanentError struct {
	err error
}

func (e PermanentError) Error() string {
	if e.err == nil {
		return "permanent error"
	}
	return e.err.Error()
}

func (e PermanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return PermanentError{err: err}
}

// IsPermanent reports whether err is marked as non-retryable.
func IsPermanent(err error) bool {
	var pe PermanentError
	if errors.As(err, &pe) {
		return true
	}
	var bpe *backoff.PermanentError
	return errors.As(err, &bpe)
}

// RetryInit retries fn with exponential backoff for startup flows such as
// opening a database. It stops on ctx cancellation, permanent errors, or
// after the max elapsed time.
func RetryInit(ctx context.Context, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = defaultInitInitialInterval
	exp.Multiplier = defaultInitMultiplier
	exp.MaxInterval = defaultInitMaxInterval
	exp.RandomizationFactor = defaultInitRandomization
	exp.Reset()

	op := func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		err := fn()
		if err != nil && IsPermanent(err) {
			var bpe *backoff.PermanentError
			if errors.As(err, &bpe) {
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(exp),
		backoff.WithMaxElapsedTime(defaultInitMaxElapsed),
	)
	return err
}

// RetryFast runs fn under DefaultFast.
func RetryFast(ctx context.Context, fn func() error) error {
	return Do(ctx, DefaultFast, fn)
}

// Do retries fn with a fixed delay until it succeeds, p.MaxAttempts is
// reached, ctx is done, or the error is not retryable under p.
func Do(ctx context.Context, p Policy, fn func() error) error {
	p = p.normalized()

	var err error
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}

		err = fn()
		if err == nil || !p.shouldRetry(err) || attempt >= p.MaxAttempts {
			return err
		}

		if p.Delay == 0 {
			continue
		}
		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
