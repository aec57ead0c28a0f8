package netx

import (
	"context"
	"errors"
	"time"

	"github.com/tilawa-app/tilawa/internal/utils"
)

// Policy decides which failures are worth another attempt.
type Policy int

const (
	// RetryAll retries every failure except caller cancellation.
	RetryAll Policy = iota
	// RetryTransient retries only network and server failures.
	RetryTransient
)

// RetryOptions configures retry count and delay behavior.
//
// MaxRetries is the number of retries after the first attempt (total attempts
// are MaxRetries+1). RetryDelay is the wait between attempts; with Exponential
// it doubles after each failure. MaxDelay, when positive, caps every wait
// including one stretched by a server Retry-After.
type RetryOptions struct {
	MaxRetries  int
	RetryDelay  time.Duration
	MaxDelay    time.Duration
	Exponential bool
	Policy      Policy
}

// DefaultRetryOptions mirrors the settings defaults.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxRetries: 3, RetryDelay: time.Second, MaxDelay: 10 * time.Second}
}

func (o RetryOptions) normalized() RetryOptions {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	return o
}

// Executor runs idempotent operations with bounded retries.
type Executor struct {
	opts RetryOptions
	now  func() time.Time
}

// NewExecutor builds an Executor.
func NewExecutor(opts RetryOptions) *Executor {
	return &Executor{opts: opts.normalized(), now: time.Now}
}

// Options returns the executor's normalized options.
func (e *Executor) Options() RetryOptions { return e.opts }

// Execute runs op until it succeeds, a terminal failure occurs, ctx is done, or
// retries are exhausted. Any returned error is a *FetchError.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, newFetchError(ctx, err, attempts)
		}

		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !e.shouldRetry(ctx, err) || attempt >= e.opts.MaxRetries {
			break
		}

		delay := e.delay(attempt, err)
		utils.Debug("netx: attempt %d failed (%v), retrying in %s", attempts, err, delay)
		if err := sleep(ctx, delay); err != nil {
			return zero, newFetchError(ctx, err, attempts)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("retry failed without error")
	}
	return zero, newFetchError(ctx, lastErr, attempts)
}

func (e *Executor) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if _, permanent := unwrapPermanent(err); permanent {
		return false
	}
	kind, _ := Classify(err)
	switch kind {
	case KindCanceled:
		// A per-attempt timeout while ctx is still live is a network failure
		return errors.Is(err, context.DeadlineExceeded)
	case KindClient, KindDecode:
		return e.opts.Policy == RetryAll
	}
	return true
}

// delay computes the wait after the failed attempt (0-based).
func (e *Executor) delay(attempt int, err error) time.Duration {
	d := e.opts.RetryDelay
	if e.opts.Exponential {
		for i := 0; i < attempt; i++ {
			d *= 2
			if e.opts.MaxDelay > 0 && d >= e.opts.MaxDelay {
				break
			}
		}
	}

	var se *StatusError
	if errors.As(err, &se) && !se.RetryAfter.IsZero() {
		if wait := se.RetryAfter.Sub(e.now()); wait > d {
			d = wait
		}
	}

	if e.opts.MaxDelay > 0 && d > e.opts.MaxDelay {
		d = e.opts.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
