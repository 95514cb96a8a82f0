package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/clock"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/id"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
)

const (
	DefaultSweepInterval = 10 * time.Minute
	DefaultRetention     = time.Hour
)

// Archiver receives the final snapshot of every session leaving the registry.
type Archiver interface {
	Archive(ctx context.Context, snap Snapshot) error
}

// RegistryOptions configures a Registry. Zero values take defaults.
type RegistryOptions struct {
	Clock         clock.Clock
	Logger        logpkg.Logger
	SweepInterval time.Duration
	// Retention is how long a session that is not processing may sit without
	// activity before the sweep removes it.
	Retention time.Duration
	Archiver  Archiver
	IDs       *id.Generator
	// Context is passed to every WorkFunc call; Close cancels it.
	Context context.Context
}

// Registry owns every live session. Sessions are independent: each has its
// own queue and timer, and one session's state never leaks into another's.
type Registry struct {
	clk       clock.Clock
	logger    logpkg.Logger
	interval  time.Duration
	retention time.Duration
	archiver  Archiver
	ids       *id.Generator
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session

	sweepMu    sync.Mutex
	sweepTimer clock.Timer
	closed     bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNop()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.IDs == nil {
		opts.IDs = id.NewGeneratorWithClock(opts.Clock.Now)
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	ctx, cancel := context.WithCancel(opts.Context)
	return &Registry{
		clk:       opts.Clock,
		logger:    opts.Logger.WithComponent("batch"),
		interval:  opts.SweepInterval,
		retention: opts.Retention,
		archiver:  opts.Archiver,
		ids:       opts.IDs,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  map[string]*Session{},
	}
}

// Create registers a new idle session. An empty id gets a generated UUID.
func (r *Registry) Create(sessionID string, cfg Config) (*Session, error) {
	if cfg.Work == nil {
		return nil, Validationf("work function is required")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	cfg = cfg.withDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[sessionID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, sessionID)
	}
	s := newSession(r, sessionID, cfg)
	r.sessions[sessionID] = s
	s.logger.Debug("session created")
	return s, nil
}

// Get returns the session with the given id.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Lookup is Get with typed errors for transports.
func (r *Registry) Lookup(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, Validationf("session_id is required")
	}
	s, ok := r.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return s, nil
}

// Remove disarms the session, closes its subscribers and archives its final
// snapshot. Removing an unknown id is a no-op.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	snap := s.shutdown()
	s.logger.Debug("session removed", logpkg.Str("status", string(snap.Progress.Status)))
	if r.archiver == nil {
		return
	}
	if err := r.archiver.Archive(context.WithoutCancel(r.ctx), snap); err != nil {
		s.logger.Warn("archive failed", logpkg.Err(err))
	}
}

// List returns live sessions ordered by creation time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes idle, completed and cancelled sessions that have been inactive
// for longer than the retention period. Processing and paused sessions stay. It returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.clk.Now()
	removed := 0
	for _, s := range r.List() {
		if s.reapable(now, r.retention) {
			r.Remove(s.id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("swept idle sessions", logpkg.Int("removed", removed), logpkg.Int("live", r.Len()))
	}
	return removed
}

// StartSweeper arms the periodic sweep. It is a no-op once the registry is
// closed or when the sweeper is already running.
func (r *Registry) StartSweeper() {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()
	if r.closed || r.sweepTimer != nil {
		return
	}
	r.armSweepLocked()
}

func (r *Registry) armSweepLocked() {
	r.sweepTimer = r.clk.AfterFunc(r.interval, func() {
		r.Sweep()
		r.sweepMu.Lock()
		defer r.sweepMu.Unlock()
		if !r.closed {
			r.armSweepLocked()
		}
	})
}

// Run starts the sweeper and blocks until ctx is done, then closes the
// registry.
func (r *Registry) Run(ctx context.Context) error {
	r.StartSweeper()
	<-ctx.Done()
	r.Close()
	return nil
}

// Close stops the sweeper, disarms every session and cancels the work
// context. Sessions stay readable.
func (r *Registry) Close() {
	r.sweepMu.Lock()
	if r.closed {
		r.sweepMu.Unlock()
		return
	}
	r.closed = true
	if r.sweepTimer != nil {
		r.sweepTimer.Stop()
		r.sweepTimer = nil
	}
	r.sweepMu.Unlock()

	for _, s := range r.List() {
		s.mu.Lock()
		s.disarmLocked()
		s.mu.Unlock()
	}
	r.cancel()
	r.logger.Info("session registry closed")
}
