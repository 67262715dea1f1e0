package probe

import (
	"context"
	"time"

	"sitewatch/internal/domain"
)

// RetryChecker re-runs a failed probe before declaring a site offline,
// smoothing over one-off network blips.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target string) Outcome {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last Outcome
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if last.Status == domain.StatusOnline {
			return last
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return last
			case <-time.After(r.Backoff):
			}
		}
	}
	if last.Reason != "" {
		last.Reason += " (after retries)"
	}
	return last
}
