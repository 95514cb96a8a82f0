package controllers

import (
	"net/http"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/runtime"
	certsvc "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/services/certificates"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes.
type ControllerRegistry struct {
	general      *GeneralController
	certificates *CertificatesController
	sessions     *SessionsController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, svc *certsvc.Service, logger logpkg.Logger) *ControllerRegistry {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &ControllerRegistry{
		general:      NewGeneralController(rt),
		certificates: NewCertificatesController(svc, logger),
		sessions:     NewSessionsController(svc, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.certificates.RegisterRoutes(mux)
	r.sessions.RegisterRoutes(mux)
}
