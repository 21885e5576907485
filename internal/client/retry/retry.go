package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted reports that every attempt ran without the operation
// succeeding.
var ErrExhausted = errors.New("attempts exhausted")

var nowFn = time.Now
var afterFn = time.After

// Policy is a bounded, cancellable attempt loop. Attempts counts calls to
// the operation, Interval is the pause between them, and Ceiling bounds the
// total elapsed time (zero means no ceiling). The first attempt always runs
// immediately.
type Policy struct {
	Attempts int
	Interval time.Duration
	Ceiling  time.Duration
}

// Do runs op until it reports done, the policy is exhausted, or ctx is
// cancelled. A non-nil error from op does not abort the loop; the last one
// seen is wrapped into the exhaustion error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) (bool, error)) error {
	start := nowFn()
	var lastErr error

	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := op(ctx)
		if done {
			return err
		}
		if err != nil {
			lastErr = err
		}

		if attempt == p.Attempts-1 {
			break
		}
		if p.Ceiling > 0 && nowFn().Sub(start)+p.Interval > p.Ceiling {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-afterFn(p.Interval):
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
	}
	return ErrExhausted
}
