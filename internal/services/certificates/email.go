package certsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/batch"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/mailer"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
)

// StartEmail starts a session sending one message per item under the
// provider rate limit.
func (s *Service) StartEmail(ctx context.Context, req EmailRequest) (StartResponse, error) {
	if len(req.Messages) == 0 {
		return StartResponse{}, batch.Validationf("messages must not be empty")
	}
	for i, m := range req.Messages {
		if err := m.Validate(); err != nil {
			return StartResponse{}, batch.Validationf("message %d: %v", i, err)
		}
	}
	size, err := s.batchSize(req.BatchSize)
	if err != nil {
		return StartResponse{}, err
	}
	if s.deps.Sender == nil {
		return StartResponse{}, batch.Setupf("email sending is not configured")
	}
	limiter, err := s.emailLimiter(req.RateLimit)
	if err != nil {
		return StartResponse{}, err
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	logger := s.logger.With(logpkg.SessionID(id), logpkg.Str("kind", KindEmail))
	sess, err := s.reg.Create(id, batch.Config{
		Kind:      KindEmail,
		Work:      s.sendWork(id, logger),
		BatchSize: size,
		StepDelay: s.cfg.Batch.StepDelay(),
		Retry:     s.retryPolicy(),
		Limiter:   limiter,
		Logger:    logger,
	})
	if err != nil {
		return StartResponse{}, err
	}

	entries := make([]batch.Entry, len(req.Messages))
	for i, m := range req.Messages {
		entries[i] = batch.Entry{Label: m.To, Payload: m}
	}
	if _, err := sess.Enqueue(entries...); err != nil {
		s.reg.Remove(id)
		return StartResponse{}, batch.Setupf("enqueue: %v", err)
	}
	if err := sess.Start(); err != nil {
		s.reg.Remove(id)
		return StartResponse{}, batch.Setupf("start: %v", err)
	}
	return StartResponse{SessionID: id, Status: "started", Total: len(entries), BatchSize: size}, nil
}

func (s *Service) emailLimiter(override *RateLimit) (batch.Limiter, error) {
	if override != nil {
		if override.Limit < 0 || override.WindowMs < 0 {
			return nil, batch.Validationf("rate_limit values must not be negative")
		}
		return batch.NewWindowLimiter(override.Limit, time.Duration(override.WindowMs)*time.Millisecond), nil
	}
	if s.deps.EmailLimiter != nil {
		return s.deps.EmailLimiter, nil
	}
	return batch.NewWindowLimiter(s.cfg.Email.RateLimit, s.cfg.Email.RateWindow()), nil
}

func (s *Service) sendWork(sessionID string, logger logpkg.Logger) batch.WorkFunc {
	return func(ctx context.Context, it batch.Item) (batch.Result, error) {
		msg, ok := it.Payload.(mailer.Message)
		if !ok {
			return batch.Result{}, batch.Permanent(fmt.Errorf("unexpected payload %T", it.Payload))
		}
		rec, err := s.deps.Sender.Send(ctx, msg)
		if err != nil {
			return batch.Result{}, err
		}
		if msg.AttachmentKey != "" && s.deps.Ledger != nil {
			if err := s.deps.Ledger.MarkUsed(ctx, msg.AttachmentKey, sessionID); err != nil {
				logger.Warn("mark attachment used failed", logpkg.Str("key", msg.AttachmentKey), logpkg.Err(err))
			}
		}
		return batch.Result{Output: rec.ID, Quota: rec.Quota}, nil
	}
}
