package check

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/repograde/backend/repofetch"
)

// Guarded runs a check and absorbs every possible fault into a failed
// Result: the orchestrator must always receive a Result so that one
// misbehaving check cannot abort the evaluation of the others.
func Guarded(ctx context.Context, r Runner, ref repofetch.Ref, cfg Config) (res Result) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			res = failed(r.Kind(), FailureExecutionErr,
				fmt.Sprintf("check panicked: %v", rec), time.Since(start))
		}
	}()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	res, err := r.Run(ctx, ref, cfg)
	res.Kind = r.Kind()
	res.Duration = time.Since(start)
	if err == nil {
		return res
	}

	switch {
	case errors.Is(err, repofetch.ErrUnreachable):
		return failed(r.Kind(), FailureUnreachable, err.Error(), time.Since(start))
	case errors.Is(err, context.DeadlineExceeded):
		return failed(r.Kind(), FailureTimeout,
			fmt.Sprintf("check exceeded its %s time limit", cfg.Timeout), time.Since(start))
	case errors.Is(err, context.Canceled):
		// caller cancelled the whole evaluation; keep the classification
		// distinct from a check-level timeout
		return failed(r.Kind(), FailureExecutionErr, "check cancelled", time.Since(start))
	default:
		return failed(r.Kind(), FailureExecutionErr, err.Error(), time.Since(start))
	}
}

func failed(kind Kind, failure Failure, detail string, dur time.Duration) Result {
	return Result{
		Kind:     kind,
		Passed:   false,
		Score:    0,
		Failure:  failure,
		Detail:   detail,
		Duration: dur,
	}
}
