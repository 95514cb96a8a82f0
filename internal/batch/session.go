package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/clock"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

const (
	DefaultBatchSize = 20
	DefaultStepDelay = 200 * time.Millisecond

	// minimum re-arm delay when a limiter reports a reset time already in the past
	minLimiterWait = 10 * time.Millisecond
)

// Result is what a WorkFunc returns on success.
type Result struct {
	// Output is the caller-visible outcome, e.g. a file location or message id.
	Output string
	// Quota optionally carries the provider's published quota after the call.
	Quota *Quota
}

// WorkFunc executes one item. It receives a copy of the item; a returned
// error is classified by the session's RetryPolicy.
type WorkFunc func(ctx context.Context, item Item) (Result, error)

// Config describes how a session processes its items.
type Config struct {
	// Kind labels the workload in progress reports (e.g. "generate", "email").
	Kind string
	Work WorkFunc
	// OnItemComplete is called after an item reaches done, outside the session lock.
	OnItemComplete func(Item)
	// BatchSize items run back-to-back before the session yields for StepDelay.
	BatchSize int
	StepDelay time.Duration
	Retry     RetryPolicy
	// Limiter defaults to Unlimited. Pass the same instance to several sessions
	// to make them share one quota.
	Limiter Limiter
	// RemoveOnCancel drops the session from its registry when it is
	// cancelled instead of leaving it to the idle sweep. An item still running
	// at that moment is recorded first.
	RemoveOnCancel bool
	Logger         logpkg.Logger
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.StepDelay < 0 {
		c.StepDelay = 0
	}
	if c.Limiter == nil {
		c.Limiter = Unlimited{}
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

// Session is one batch job: an ordered queue plus its processing state.
// All queue mutation happens under mu; the WorkFunc runs without it.
type Session struct {
	id     string
	cfg    Config
	reg    *Registry
	clk    clock.Clock
	ctx    context.Context
	logger logpkg.Logger

	mu           sync.Mutex
	status       Status
	queue        *Queue
	createdAt    time.Time
	lastActivity time.Time
	waitUntil    time.Time

	// step scheduling: at most one armed timer; epoch invalidates stale fires
	timer   clock.Timer
	epoch   uint64
	running bool
	inBatch int
	// set by Cancel while an item runs; the step removes the session once
	// that item is recorded
	removeWhenIdle bool

	done    chan struct{}
	subs    map[int]chan Progress
	nextSub int
	removed bool
}

func newSession(r *Registry, id string, cfg Config) *Session {
	now := r.clk.Now()
	logger := cfg.Logger
	if logger == nil {
		logger = r.logger
	}
	return &Session{
		id:           id,
		cfg:          cfg,
		reg:          r,
		clk:          r.clk,
		ctx:          r.ctx,
		logger:       logger.With(logpkg.SessionID(id), logpkg.Str("kind", cfg.Kind)),
		status:       StatusIdle,
		queue:        newQueue(r.ids),
		createdAt:    now,
		lastActivity: now,
		done:         make(chan struct{}),
		subs:         map[int]chan Progress{},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Kind returns the configured workload kind.
func (s *Session) Kind() string { return s.cfg.Kind }

// BatchSize returns the effective batch size.
func (s *Session) BatchSize() int { return s.cfg.BatchSize }

// Done is closed once the session completes or is cancelled.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Enqueue appends entries in order and returns their item ids.
func (s *Session) Enqueue(entries ...Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, Validationf("no items to enqueue")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return nil, ErrSessionTerminal
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, s.queue.push(e).ID)
	}
	s.lastActivity = s.clk.Now()
	s.notifyLocked()
	return ids, nil
}

// Start moves an idle session to processing and arms the first step.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return ErrAlreadyProcessing
	}
	s.status = StatusProcessing
	s.lastActivity = s.clk.Now()
	s.armLocked(0)
	s.logger.Info("session started", logpkg.Int("total", s.queue.Len()), logpkg.Int("batch_size", s.cfg.BatchSize))
	s.notifyLocked()
	return nil
}

// Pause stops scheduling after the in-flight item, if any.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusProcessing {
		return ErrNotProcessing
	}
	s.pauseLocked("requested")
	return nil
}

func (s *Session) pauseLocked(reason string) {
	s.status = StatusPaused
	s.lastActivity = s.clk.Now()
	s.disarmLocked()
	s.logger.Info("session paused", logpkg.Str("reason", reason))
	s.notifyLocked()
}

// Resume re-arms a paused session.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return ErrNotPaused
	}
	s.status = StatusProcessing
	s.lastActivity = s.clk.Now()
	// a still-running step re-arms on its own when it finishes
	if !s.running {
		s.armLocked(0)
	}
	s.logger.Info("session resumed")
	s.notifyLocked()
	return nil
}

// Cancel stops the session for good. An in-flight item still completes and
// is recorded.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return ErrSessionTerminal
	}
	s.status = StatusCancelled
	s.lastActivity = s.clk.Now()
	s.disarmLocked()
	close(s.done)
	c := s.queue.Counts()
	s.logger.Info("session cancelled", logpkg.Int("processed", c.Done), logpkg.Int("failed", c.Failed))
	s.notifyLocked()
	remove := s.cfg.RemoveOnCancel && s.reg != nil
	if remove && s.running {
		s.removeWhenIdle = true
		remove = false
	}
	s.mu.Unlock()

	if remove {
		s.reg.Remove(s.id)
	}
	return nil
}

func (s *Session) armLocked(d time.Duration) {
	s.disarmLocked()
	ep := s.epoch
	s.timer = s.clk.AfterFunc(d, func() { s.step(ep) })
}

func (s *Session) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch++
}

func (s *Session) step(ep uint64) {
	s.mu.Lock()
	if ep != s.epoch || s.running || s.status != StatusProcessing {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	now := s.clk.Now()

	resv, err := s.cfg.Limiter.Reserve(s.ctx, now)
	if errors.Is(err, ErrCapacityExceeded) {
		wait := resv.Quota.ResetAt.Sub(now)
		if wait < minLimiterWait {
			wait = minLimiterWait
		}
		s.waitUntil = now.Add(wait)
		s.logger.Debug("rate limit reached, waiting", logpkg.Dur("wait", wait))
		s.armLocked(wait)
		s.notifyLocked()
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.logger.Warn("limiter reserve failed", logpkg.Err(err))
		s.armLocked(s.retryStepDelay())
		s.mu.Unlock()
		return
	}
	s.waitUntil = time.Time{}

	it := s.queue.next(now)
	if it == nil {
		s.releaseLocked(resv)
		if at, ok := s.queue.earliestDelayed(now); ok {
			s.armLocked(at.Sub(now))
		} else {
			s.completeLocked()
		}
		s.mu.Unlock()
		return
	}

	s.queue.transition(it, ItemActive)
	it.Attempts++
	s.running = true
	s.lastActivity = now
	work := *it
	s.notifyLocked()
	s.mu.Unlock()

	res, werr := s.cfg.Work(s.ctx, work)

	s.mu.Lock()
	now = s.clk.Now()
	s.running = false
	s.lastActivity = now
	s.inBatch++
	var completed *Item
	if werr == nil {
		s.succeedLocked(it, res)
		cp := *it
		completed = &cp
	} else {
		// only successful operations count against the limit
		s.releaseLocked(resv)
		s.failLocked(it, werr, now)
	}

	if s.status == StatusProcessing && s.timer == nil {
		if s.queue.Counts().Pending == 0 {
			s.completeLocked()
		} else {
			delay := time.Duration(0)
			if s.inBatch >= s.cfg.BatchSize {
				s.inBatch = 0
				delay = s.cfg.StepDelay
			}
			s.armLocked(delay)
		}
	}
	remove := s.removeWhenIdle
	s.removeWhenIdle = false
	s.notifyLocked()
	s.mu.Unlock()

	if completed != nil && s.cfg.OnItemComplete != nil {
		s.cfg.OnItemComplete(*completed)
	}
	if remove {
		s.reg.Remove(s.id)
	}
}

func (s *Session) succeedLocked(it *Item, res Result) {
	it.Output = res.Output
	it.NextEligibleAt = time.Time{}
	s.queue.transition(it, ItemDone)
	if res.Quota != nil {
		if obs, ok := s.cfg.Limiter.(QuotaObserver); ok {
			obs.Observe(*res.Quota)
		}
	}
	s.logger.Debug("item done", logpkg.Int("index", it.Index), logpkg.Int("attempts", it.Attempts))
}

func (s *Session) failLocked(it *Item, werr error, now time.Time) {
	it.LastError = werr.Error()
	decision := s.cfg.Retry.Decide(werr, it.Attempts)
	switch decision {
	case DecisionRetry:
		delay := s.cfg.Retry.Delay(it.Attempts)
		it.NextEligibleAt = now.Add(delay)
		s.queue.transition(it, ItemPending)
		s.logger.Debug("item failed, retrying",
			logpkg.Int("index", it.Index),
			logpkg.Int("attempts", it.Attempts),
			logpkg.Dur("backoff", delay),
			logpkg.Err(werr),
		)
	default:
		it.NextEligibleAt = time.Time{}
		s.queue.transition(it, ItemFailed)
		s.logger.Warn("item failed",
			logpkg.Int("index", it.Index),
			logpkg.Int("attempts", it.Attempts),
			logpkg.Str("decision", decision.String()),
			logpkg.Err(werr),
		)
	}
	if decision != DecisionFailAndPause {
		return
	}
	var rle *RateLimitError
	if errors.As(werr, &rle) && rle.RetryAfter > 0 {
		if obs, ok := s.cfg.Limiter.(QuotaObserver); ok {
			obs.Observe(Quota{Remaining: 0, ResetAt: now.Add(rle.RetryAfter)})
		}
	}
	if s.status == StatusProcessing {
		s.pauseLocked("rate limited")
	}
}

func (s *Session) releaseLocked(r Reservation) {
	if err := s.cfg.Limiter.Release(s.ctx, r); err != nil {
		s.logger.Warn("limiter release failed", logpkg.Err(err))
	}
}

func (s *Session) completeLocked() {
	s.status = StatusCompleted
	s.disarmLocked()
	close(s.done)
	c := s.queue.Counts()
	s.logger.Info("session completed", logpkg.Int("processed", c.Done), logpkg.Int("failed", c.Failed))
}

func (s *Session) retryStepDelay() time.Duration {
	if s.cfg.StepDelay > 0 {
		return s.cfg.StepDelay
	}
	return time.Second
}

// Items returns a copy of every item in queue order.
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.snapshot()
}

// Subscribe returns a feed of progress snapshots, one per state change.
// Slow readers miss intermediate snapshots rather than blocking the session,
// but the most recent snapshot is always delivered.
// The channel is closed by the returned cancel func or when the session is
// removed from its registry.
func (s *Session) Subscribe(buf int) (<-chan Progress, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Progress, buf)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		close(ch)
		return ch, func() {}
	}
	key := s.nextSub
	s.nextSub++
	s.subs[key] = ch
	ch <- s.progressLocked()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[key]; ok {
				delete(s.subs, key)
				close(c)
			}
		})
	}
}

func (s *Session) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	p := s.progressLocked()
	for _, ch := range s.subs {
		select {
		case ch <- p:
		default:
			// full: drop the oldest so the newest state is always queued
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}

// shutdown disarms the session and closes its subscribers; the registry calls
// it on removal. It returns the final snapshot.
func (s *Session) shutdown() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
	s.removed = true
	for k, ch := range s.subs {
		delete(s.subs, k)
		close(ch)
	}
	return Snapshot{Progress: s.progressLocked(), Results: s.resultsLocked()}
}

func (s *Session) reapable(now time.Time, retention time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusProcessing, StatusPaused:
		return false
	}
	return !s.running && now.Sub(s.lastActivity) >= retention
}
