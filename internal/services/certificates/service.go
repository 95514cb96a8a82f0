package certsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/archive"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/batch"
	cfgpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/config"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/mailer"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/render"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/runtime"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/storage/files"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
)

var errNotBoolean = errors.New("filter must evaluate to a boolean")

// Renderer draws one document per row.
type Renderer interface {
	Prepare(tpl render.Template) error
	Render(w io.Writer, tpl render.Template, row map[string]string) error
}

// UsageLedger records sent attachments.
type UsageLedger interface {
	MarkUsed(ctx context.Context, key, sessionID string) error
}

// ArchiveReader reads sessions that have left the registry.
type ArchiveReader interface {
	Get(ctx context.Context, id string) (archive.Record, error)
	List(ctx context.Context, limit int) ([]archive.Record, error)
}

// Deps are the collaborators the service drives.
type Deps struct {
	Renderer Renderer
	Storage  *files.Local
	Sender   mailer.Sender
	Ledger   UsageLedger
	Archive  ArchiveReader
	// EmailLimiter, when set, is shared by every email session instead of
	// each getting its own window.
	EmailLimiter batch.Limiter
}

// Service implements start, poll and control over a session registry.
type Service struct {
	reg    *batch.Registry
	cfg    cfgpkg.Config
	deps   Deps
	logger logpkg.Logger
}

// New returns a Service using a default logger.
func New(rt *runtime.Runtime, reg *batch.Registry) *Service {
	return NewWithLogger(rt, reg, nil)
}

// NewWithLogger builds the default collaborators from rt and uses the
// provided logger.
func NewWithLogger(rt *runtime.Runtime, reg *batch.Registry, logger logpkg.Logger) *Service {
	cfg := rt.Config()
	deps := Deps{
		Renderer: render.NewPDFRenderer(),
		Storage:  rt.Files(),
		Sender: mailer.NewHTTPSender(mailer.Options{
			URL:     cfg.Email.APIURL,
			APIKey:  cfg.Email.APIKey,
			From:    cfg.Email.From,
			Timeout: cfg.Email.Timeout(),
		}),
		Ledger:  rt.Ledger(),
		Archive: rt.Archive(),
	}
	if rdb := rt.Redis(); rdb != nil {
		deps.EmailLimiter = batch.NewRedisLimiter(rdb, "email", cfg.Email.RateLimit, cfg.Email.RateWindow())
	}
	return NewWithDeps(reg, cfg, deps, logger)
}

// NewWithDeps wires explicit collaborators.
func NewWithDeps(reg *batch.Registry, cfg cfgpkg.Config, deps Deps, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("certificates"))
	}
	return &Service{reg: reg, cfg: cfg, deps: deps, logger: logger}
}

func (s *Service) retryPolicy() batch.RetryPolicy {
	p := batch.RetryPolicy{
		MaxAttempts: s.cfg.Retry.MaxAttempts,
		Base:        s.cfg.Retry.Base(),
		Cap:         s.cfg.Retry.Cap(),
		Jitter:      s.cfg.Retry.Jitter,
	}
	// a configured jitter of 0 means none
	if p.Jitter == 0 {
		p.Jitter = batch.NoJitter
	}
	return p
}

func (s *Service) batchSize(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, batch.Validationf("batch_size must not be negative")
	case requested == 0:
		if s.cfg.Batch.Size > 0 {
			return s.cfg.Batch.Size, nil
		}
		return batch.DefaultBatchSize, nil
	}
	return requested, nil
}

// Poll returns the session's progress, with results embedded once the
// session is completed or cancelled.
func (s *Service) Poll(_ context.Context, sessionID string) (PollResponse, error) {
	sess, err := s.reg.Lookup(sessionID)
	if err != nil {
		return PollResponse{}, err
	}
	resp := PollResponse{Progress: sess.Progress()}
	if resp.Status.Terminal() {
		res := sess.Results()
		resp.Results = &res
	}
	return resp, nil
}

// ParseAction validates a control verb.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionPause, ActionResume, ActionCancel:
		return a, nil
	case "":
		return "", batch.Validationf("action is required")
	default:
		return "", batch.Validationf("unknown action %q (want pause, resume or cancel)", s)
	}
}

// Control applies pause, resume or cancel.
func (s *Service) Control(_ context.Context, sessionID string, action Action) (ControlResponse, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return ControlResponse{}, err
	}
	sess, err := s.reg.Lookup(sessionID)
	if err != nil {
		return ControlResponse{}, err
	}
	switch action {
	case ActionPause:
		err = sess.Pause()
	case ActionResume:
		err = sess.Resume()
	case ActionCancel:
		err = sess.Cancel()
	}
	if err != nil {
		return ControlResponse{}, fmt.Errorf("%s %s: %w", action, sessionID, err)
	}
	s.logger.Info("session control", logpkg.SessionID(sessionID), logpkg.Str("action", string(action)))
	return ControlResponse{SessionID: sessionID, Action: action, Status: sess.Status()}, nil
}

// List returns the progress of every live session.
func (s *Service) List(_ context.Context) []batch.Progress {
	sessions := s.reg.List()
	out := make([]batch.Progress, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Progress())
	}
	return out
}

// Subscribe streams progress snapshots for one session.
func (s *Service) Subscribe(_ context.Context, sessionID string, buf int) (<-chan batch.Progress, func(), error) {
	sess, err := s.reg.Lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := sess.Subscribe(buf)
	return ch, cancel, nil
}

// Archived returns the final snapshot of a session that left the registry.
func (s *Service) Archived(ctx context.Context, sessionID string) (ArchivedResponse, error) {
	if s.deps.Archive == nil {
		return ArchivedResponse{}, fmt.Errorf("%w: archive disabled", batch.ErrNotFound)
	}
	return s.deps.Archive.Get(ctx, sessionID)
}

// ListArchived returns recently archived sessions, newest first.
func (s *Service) ListArchived(ctx context.Context, limit int) ([]ArchivedResponse, error) {
	if s.deps.Archive == nil {
		return nil, nil
	}
	return s.deps.Archive.List(ctx, limit)
}
