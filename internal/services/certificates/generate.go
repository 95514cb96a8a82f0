package certsvc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/batch"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/render"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/storage/files"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
)

// rowPayload is the queued unit for a generation session.
type rowPayload struct {
	Row      map[string]string
	FileName string
}

// StartGeneration validates req, prepares the renderer and starts a session
// rendering one PDF per row. If preparation fails the session is removed and
// an ErrSetup error returned.
func (s *Service) StartGeneration(ctx context.Context, req GenerateRequest) (StartResponse, error) {
	if len(req.Rows) == 0 {
		return StartResponse{}, batch.Validationf("rows must not be empty")
	}
	if len(req.Template.Fields) == 0 {
		return StartResponse{}, batch.Validationf("template must have at least one field")
	}
	switch req.Output.Backend {
	case "", "local":
	default:
		return StartResponse{}, batch.Validationf("unsupported output backend %q", req.Output.Backend)
	}
	size, err := s.batchSize(req.BatchSize)
	if err != nil {
		return StartResponse{}, err
	}
	filter, err := newRowFilter(req.Filter)
	if err != nil {
		return StartResponse{}, batch.Validationf("filter: %v", err)
	}
	if s.deps.Renderer == nil || s.deps.Storage == nil {
		return StartResponse{}, batch.Setupf("document rendering is not configured")
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	tpl := req.Template
	store := s.deps.Storage
	if req.Output.Prefix != "" {
		store = store.WithPrefix(req.Output.Prefix)
	} else {
		store = store.WithPrefix(id)
	}
	logger := s.logger.With(logpkg.SessionID(id), logpkg.Str("kind", KindGenerate))

	sess, err := s.reg.Create(id, batch.Config{
		Kind:           KindGenerate,
		Work:           s.renderWork(tpl, store),
		BatchSize:      size,
		StepDelay:      s.cfg.Batch.StepDelay(),
		Retry:          s.retryPolicy(),
		RemoveOnCancel: true,
		Logger:         logger,
	})
	if err != nil {
		return StartResponse{}, err
	}
	if err := s.deps.Renderer.Prepare(tpl); err != nil {
		s.reg.Remove(id)
		logger.Warn("generation setup failed", logpkg.Err(err))
		return StartResponse{}, batch.Setupf("prepare template: %v", err)
	}

	names := newFileNamer()
	entries := make([]batch.Entry, 0, len(req.Rows))
	skipped := 0
	for _, row := range req.Rows {
		if !filter.Match(row) {
			skipped++
			continue
		}
		value := row[req.NamingField]
		entries = append(entries, batch.Entry{
			Label:   value,
			Payload: rowPayload{Row: row, FileName: names.next(value)},
		})
	}
	if len(entries) == 0 {
		s.reg.Remove(id)
		return StartResponse{}, batch.Validationf("filter matched none of %d rows", len(req.Rows))
	}
	if _, err := sess.Enqueue(entries...); err != nil {
		s.reg.Remove(id)
		return StartResponse{}, batch.Setupf("enqueue: %v", err)
	}
	if err := sess.Start(); err != nil {
		s.reg.Remove(id)
		return StartResponse{}, batch.Setupf("start: %v", err)
	}
	return StartResponse{
		SessionID: id,
		Status:    "started",
		Total:     len(entries),
		BatchSize: size,
		Skipped:   skipped,
	}, nil
}

func (s *Service) renderWork(tpl render.Template, store *files.Local) batch.WorkFunc {
	return func(ctx context.Context, it batch.Item) (batch.Result, error) {
		p, ok := it.Payload.(rowPayload)
		if !ok {
			return batch.Result{}, batch.Permanent(fmt.Errorf("unexpected payload %T", it.Payload))
		}
		var buf bytes.Buffer
		if err := s.deps.Renderer.Render(&buf, tpl, p.Row); err != nil {
			return batch.Result{}, fmt.Errorf("render %s: %w", p.FileName, err)
		}
		loc, err := store.Put(ctx, p.FileName, &buf)
		if err != nil {
			return batch.Result{}, err
		}
		return batch.Result{Output: loc}, nil
	}
}
