package errors

import (
	"math/rand"
	"time"
)

// RetryController implements the bounded retry loop used by the
// closure-transaction API (spec.md §5: default bound 200) and by
// StateCell.Transition, grounded on docdb/internal/errors/retry.go's
// exponential-backoff-with-jitter shape.
type RetryController struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Backoff      bool
}

func DefaultRetryController() *RetryController {
	return &RetryController{
		MaxAttempts:  200,
		InitialDelay: time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Backoff:      true,
	}
}

// Do runs fn until it succeeds, a non-conflict error is returned (which
// propagates immediately per spec.md §5), or MaxAttempts is exhausted.
func (rc *RetryController) Do(fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < rc.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsConflict(err) {
			return err
		}
		if attempt < rc.MaxAttempts-1 && rc.Backoff {
			time.Sleep(rc.delay(attempt))
		}
	}
	return lastErr
}

func (rc *RetryController) delay(attempt int) time.Duration {
	capped := attempt
	if capped > 10 {
		capped = 10
	}
	d := rc.InitialDelay * time.Duration(1<<uint(capped))
	if d > rc.MaxDelay {
		d = rc.MaxDelay
	}
	jitter := time.Duration(float64(d) * 0.25 * (rand.Float64()*2 - 1))
	d += jitter
	if d < 0 {
		d = rc.InitialDelay
	}
	return d
}
