package fsstore

import (
	"context"
	"sync"
	"time"

	"github.com/kraklabs/cortex/internal/cortexerr"
)

// rateLimiter is a sliding-window admission gate: at most ratePerSec
// operations are admitted in any trailing one-second window, globally, per
// spec §4.1 "Rate limiting". Callers over the limit wait up to waitFor
// before failing with RateLimited.
type rateLimiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	ratePerSec int
	waitFor    time.Duration
}

func newRateLimiter(ratePerSec int, waitFor time.Duration) *rateLimiter {
	if ratePerSec <= 0 {
		ratePerSec = 100
	}
	if waitFor <= 0 {
		waitFor = time.Second
	}
	return &rateLimiter{ratePerSec: ratePerSec, waitFor: waitFor}
}

// Admit blocks until an operation may proceed, or returns RateLimited if the
// window stays full for longer than waitFor.
func (r *rateLimiter) Admit(ctx context.Context) error {
	deadline := time.Now().Add(r.waitFor)

	for {
		if r.tryAdmit() {
			return nil
		}
		if time.Now().After(deadline) {
			return cortexerr.New(cortexerr.RateLimited, "rate limit exceeded").
				WithHint("retry after the current one-second window clears")
		}
		select {
		case <-ctx.Done():
			return cortexerr.Wrap(cortexerr.Internal, "rate limit wait cancelled", ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (r *rateLimiter) tryAdmit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Second)

	kept := r.timestamps[:0]
	for _, ts := range r.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.timestamps = kept

	if len(r.timestamps) >= r.ratePerSec {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}
