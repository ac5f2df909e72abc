package router

import (
	"net/http"

	"github.com/xmtp/allow-list-management/internal/monitoring"
	"github.com/xmtp/allow-list-management/internal/utils"
	"github.com/xmtp/allow-list-management/v1/handlers"
	"github.com/xmtp/allow-list-management/v1/middleware"
)

// Routes lists every registered path template. More specific templates come
// first so metrics labels resolve "export" before "{address}".
var Routes = []string{
	"/api/v1/health",
	"/api/v1/sessions",
	"/api/v1/sessions/{sessionId}",
	"/api/v1/sessions/{sessionId}/consents",
	"/api/v1/sessions/{sessionId}/consents/export",
	"/api/v1/sessions/{sessionId}/consents/{address}",
	"/api/v1/sessions/{sessionId}/peers",
	"/api/v1/consents/reconcile",
	"/metrics",
}

// V1Router handles all V1 API route registration
type V1Router struct {
	healthHandler  *handlers.HealthHandler
	sessionHandler *handlers.SessionHandler
	consentHandler *handlers.ConsentHandler
	authMiddleware *middleware.JWTAuthMiddleware
	corsMiddleware func(http.Handler) http.Handler
}

// NewV1Router creates a new V1 router with all dependencies
func NewV1Router(
	healthHandler *handlers.HealthHandler,
	sessionHandler *handlers.SessionHandler,
	consentHandler *handlers.ConsentHandler,
	verifier middleware.WalletTokenVerifier,
	allowedOrigins string,
) *V1Router {
	return &V1Router{
		healthHandler:  healthHandler,
		sessionHandler: sessionHandler,
		consentHandler: consentHandler,
		authMiddleware: middleware.NewJWTAuthMiddleware(verifier),
		corsMiddleware: middleware.NewCORSMiddleware(allowedOrigins),
	}
}

// RegisterRoutes registers all V1 API routes to the provided mux
func (r *V1Router) RegisterRoutes(mux *http.ServeMux) {
	monitoring.RegisterRoutes(Routes)

	// public
	mux.Handle("GET /api/v1/health", utils.PanicRecoveryMiddleware(http.HandlerFunc(r.healthHandler.HealthCheck)))
	mux.Handle("GET /metrics", monitoring.Handler())

	// authenticated
	r.protected(mux, "POST /api/v1/sessions", r.sessionHandler.CreateSession)
	r.protected(mux, "DELETE /api/v1/sessions/{sessionId}", r.sessionHandler.DeleteSession)
	r.protected(mux, "GET /api/v1/sessions/{sessionId}/consents", r.consentHandler.ListConsents)
	r.protected(mux, "GET /api/v1/sessions/{sessionId}/consents/export", r.consentHandler.ExportConsents)
	r.protected(mux, "PUT /api/v1/sessions/{sessionId}/consents/{address}", r.consentHandler.UpdateConsent)
	r.protected(mux, "POST /api/v1/sessions/{sessionId}/peers", r.consentHandler.RecordPeer)
	r.protected(mux, "POST /api/v1/consents/reconcile", r.consentHandler.ReconcileConsents)
}

func (r *V1Router) protected(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, utils.PanicRecoveryMiddleware(r.authMiddleware.Authenticate(h)))
}

// Handler wraps the mux with the cross-cutting middleware. CORS runs first so
// preflight requests never reach method-restricted patterns.
func (r *V1Router) Handler(mux *http.ServeMux) http.Handler {
	return r.corsMiddleware(monitoring.TraceIDMiddleware(monitoring.HTTPMetricsMiddleware(mux)))
}
