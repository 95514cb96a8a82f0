package batch

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Quota is the limiter state as seen at one instant. Limit 0 means unlimited.
type Quota struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
}

// Exhausted reports whether no capacity is left in the current window.
func (q Quota) Exhausted() bool { return q.Limit > 0 && q.Remaining <= 0 }

// Reservation is one unit of capacity taken from a Limiter.
type Reservation struct {
	// Quota as left by the reservation. When Reserve fails with
	// ErrCapacityExceeded it is the exhausted quota and ResetAt says when to
	// try again.
	Quota Quota
	At    time.Time
	Token string
}

// Limiter tracks remaining capacity of an external resource. Reserve takes
// capacity before the operation runs, so sessions sharing one limiter cannot
// both spend its last unit.
type Limiter interface {
	// Reserve recomputes the window at now and takes one unit, or returns
	// ErrCapacityExceeded when none is left.
	Reserve(ctx context.Context, now time.Time) (Reservation, error)
	// Release hands back a reservation whose operation did not succeed.
	Release(ctx context.Context, r Reservation) error
}

// QuotaObserver is implemented by limiters that can absorb a quota published
// by the provider itself (for example response headers).
type QuotaObserver interface {
	Observe(q Quota)
}

// Pacer is implemented by limiters with a steady per-operation cadence. The
// progress estimate uses it.
type Pacer interface {
	Cadence() time.Duration
}

// Unlimited never runs out.
type Unlimited struct{}

func (Unlimited) Reserve(_ context.Context, now time.Time) (Reservation, error) {
	return Reservation{At: now}, nil
}

func (Unlimited) Release(context.Context, Reservation) error { return nil }

// WindowLimiter allows at most limit operations in any rolling window. It keeps
// the timestamps of the operations inside the window; once the window passes
// the newest one, Remaining is back at Limit. Safe for concurrent use, so one
// instance can be shared by several sessions.
type WindowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	stamps  []time.Time
	blocked time.Time
}

// NewWindowLimiter returns a limiter of limit operations per window. A
// non-positive limit or window disables limiting.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{limit: limit, window: window}
}

func (l *WindowLimiter) enabled() bool { return l.limit > 0 && l.window > 0 }

// Check returns the quota at now without reserving anything.
func (l *WindowLimiter) Check(_ context.Context, now time.Time) (Quota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quotaLocked(now), nil
}

func (l *WindowLimiter) quotaLocked(now time.Time) Quota {
	if !l.enabled() {
		return Quota{}
	}
	l.expireLocked(now)
	q := Quota{Limit: l.limit, Remaining: l.limit - len(l.stamps)}
	if q.Remaining < 0 {
		q.Remaining = 0
	}
	if n := len(l.stamps); n > 0 {
		q.ResetAt = l.stamps[n-1].Add(l.window)
	}
	if now.Before(l.blocked) {
		q.Remaining = 0
		if l.blocked.After(q.ResetAt) {
			q.ResetAt = l.blocked
		}
	}
	return q
}

func (l *WindowLimiter) expireLocked(now time.Time) {
	cut := 0
	for cut < len(l.stamps) && !now.Before(l.stamps[cut].Add(l.window)) {
		cut++
	}
	if cut > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[cut:]...)
	}
}

func (l *WindowLimiter) Reserve(_ context.Context, now time.Time) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled() {
		return Reservation{At: now}, nil
	}
	if q := l.quotaLocked(now); q.Exhausted() {
		return Reservation{Quota: q}, ErrCapacityExceeded
	}
	// stamps stay sorted even when callers race on now
	i, _ := slices.BinarySearchFunc(l.stamps, now, func(a, b time.Time) int { return a.Compare(b) })
	l.stamps = slices.Insert(l.stamps, i, now)
	return Reservation{Quota: l.quotaLocked(now), At: now}, nil
}

func (l *WindowLimiter) Release(_ context.Context, r Reservation) error {
	if r.At.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.stamps) - 1; i >= 0; i-- {
		if l.stamps[i].Equal(r.At) {
			l.stamps = slices.Delete(l.stamps, i, i+1)
			return nil
		}
	}
	// already expired out of the window
	return nil
}

// Observe adopts a provider-published quota: a positive limit replaces the
// configured one, and an exhausted quota blocks until its reset time.
func (l *WindowLimiter) Observe(q Quota) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if q.Limit > 0 {
		l.limit = q.Limit
	}
	if q.Remaining <= 0 && !q.ResetAt.IsZero() && q.ResetAt.After(l.blocked) {
		l.blocked = q.ResetAt
	}
}

// Cadence is the average spacing between operations at full throughput.
func (l *WindowLimiter) Cadence() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled() {
		return 0
	}
	return l.window / time.Duration(l.limit)
}
