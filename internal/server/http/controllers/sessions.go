package controllers

import (
	"net/http"

	certsvc "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/services/certificates"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
)

// SessionsController exposes poll, control, list, archive and the SSE
// progress feed.
type SessionsController struct {
	svc    *certsvc.Service
	logger logpkg.Logger
}

// NewSessionsController creates the controller.
func NewSessionsController(svc *certsvc.Service, logger logpkg.Logger) *SessionsController {
	return &SessionsController{svc: svc, logger: logger.WithComponent("http.sessions")}
}

// RegisterRoutes registers session endpoints.
func (c *SessionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", c.handleList)
	mux.HandleFunc("/v1/sessions/poll", c.handlePoll)
	mux.HandleFunc("/v1/sessions/control", c.handleControl)
	mux.HandleFunc("/v1/sessions/events", c.handleEvents)
	mux.HandleFunc("/v1/sessions/archive", c.handleArchive)
}

func (c *SessionsController) handlePoll(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	resp, err := c.svc.Poll(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (c *SessionsController) handleControl(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req controlReq
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	action, err := certsvc.ParseAction(req.Action)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := c.svc.Control(r.Context(), req.SessionID, action)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (c *SessionsController) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, map[string]any{"sessions": c.svc.List(r.Context())})
}

// handleArchive returns one archived session when session_id is given, or
// the most recent ones (bounded by limit) otherwise.
func (c *SessionsController) handleArchive(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	if id := q.Get("session_id"); id != "" {
		rec, err := c.svc.Archived(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, rec)
		return
	}
	limit := parseLimit(q.Get("limit"))
	if limit == 0 {
		limit = 50
	}
	recs, err := c.svc.ListArchived(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"sessions": recs})
}

// handleEvents streams progress snapshots until the session reaches a
// terminal state, is removed, or the client goes away.
func (c *SessionsController) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id := r.URL.Query().Get("session_id")
	ch, cancel, err := c.svc.Subscribe(r.Context(), id, 16)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer cancel()

	sink := newSSESink(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			if err := sink.Send(p); err != nil {
				c.logger.Debug("sse client gone", logpkg.SessionID(id), logpkg.Err(err))
				return
			}
			if p.Status.Terminal() {
				return
			}
		}
	}
}
