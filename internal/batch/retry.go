package batch

import (
	"errors"
	"math/rand"
	"time"
)

// Decision is the outcome of RetryPolicy.Decide.
type Decision int

const (
	// DecisionRetry puts the item back to pending with a backoff delay.
	DecisionRetry Decision = iota
	// DecisionFail marks the item failed; the session carries on.
	DecisionFail
	// DecisionFailAndPause marks the item failed and pauses the session.
	DecisionFailAndPause
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionFail:
		return "fail"
	case DecisionFailAndPause:
		return "fail_and_pause"
	default:
		return "unknown"
	}
}

// RetryPolicy controls per-item retries. Zero fields take the defaults.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	// Jitter is the uniform ± fraction applied to the base delay, at most 1.
	// Use NoJitter for exact delays.
	Jitter float64
}

// NoJitter disables jitter in a RetryPolicy.
const NoJitter = -1.0

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
	defaultJitter      = 0.2
)

// DefaultRetryPolicy returns 3 attempts, 1s base, 30s cap, ±20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		Base:        defaultBackoffBase,
		Cap:         defaultBackoffCap,
		Jitter:      defaultJitter,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Base <= 0 {
		p.Base = defaultBackoffBase
	}
	if p.Cap <= 0 {
		p.Cap = defaultBackoffCap
	}
	switch {
	case p.Jitter == 0:
		p.Jitter = defaultJitter
	case p.Jitter < 0:
		p.Jitter = NoJitter
	case p.Jitter > 1:
		p.Jitter = 1
	}
	return p
}

// BaseDelay is min(Base·2^(attempt-1), Cap) for a 1-indexed attempt.
func (p RetryPolicy) BaseDelay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Cap || d <= 0 {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Delay is BaseDelay with uniform ±Jitter applied.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := p.BaseDelay(attempt)
	if p.Jitter <= 0 {
		return d
	}
	f := 1 + p.Jitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * f)
}

// Decide classifies a failed attempt. attempts counts the attempt that just
// failed.
func (p RetryPolicy) Decide(err error, attempts int) Decision {
	p = p.withDefaults()
	switch {
	case errors.Is(err, ErrRateLimited):
		return DecisionFailAndPause
	case IsPermanent(err):
		return DecisionFail
	case attempts >= p.MaxAttempts:
		return DecisionFail
	default:
		return DecisionRetry
	}
}
