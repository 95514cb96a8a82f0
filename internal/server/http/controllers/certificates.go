package controllers

import (
	"net/http"

	certsvc "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/services/certificates"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
)

// CertificatesController starts generation and email sessions.
type CertificatesController struct {
	svc    *certsvc.Service
	logger logpkg.Logger
}

// NewCertificatesController creates the controller.
func NewCertificatesController(svc *certsvc.Service, logger logpkg.Logger) *CertificatesController {
	return &CertificatesController{svc: svc, logger: logger.WithComponent("http.certificates")}
}

// RegisterRoutes registers the start endpoints.
func (c *CertificatesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/certificates/generate", c.handleGenerate)
	mux.HandleFunc("/v1/emails/send", c.handleSendEmails)
}

// handleGenerate starts a generation session. Returns 202 with the
// session id; progress is read through /v1/sessions/poll.
func (c *CertificatesController) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req certsvc.GenerateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := c.svc.StartGeneration(r.Context(), req)
	if err != nil {
		c.logger.Warn("generate rejected", logpkg.Err(err))
		writeServiceError(w, err)
		return
	}
	c.logger.Info("generation started", logpkg.SessionID(resp.SessionID), logpkg.Int("total", resp.Total))
	writeJSONStatus(w, http.StatusAccepted, resp)
}

func (c *CertificatesController) handleSendEmails(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req certsvc.EmailRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := c.svc.StartEmail(r.Context(), req)
	if err != nil {
		c.logger.Warn("email send rejected", logpkg.Err(err))
		writeServiceError(w, err)
		return
	}
	c.logger.Info("email session started", logpkg.SessionID(resp.SessionID), logpkg.Int("total", resp.Total))
	writeJSONStatus(w, http.StatusAccepted, resp)
}
