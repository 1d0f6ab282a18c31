package framemarble

import (
	"net/http"

	"github.com/gorilla/mux"

	svcerrors "github.com/R3E-Network/frame_layer/internal/errors"
	"github.com/R3E-Network/frame_layer/internal/httputil"
	"github.com/R3E-Network/frame_layer/internal/metrics"
	"github.com/R3E-Network/frame_layer/internal/middleware"
	"github.com/R3E-Network/frame_layer/manifest"
)

// =============================================================================
// API Routes
// =============================================================================

// registerRoutes registers all HTTP routes for the frame service.
func (s *Service) registerRoutes() {
	router := s.Router()
	router.Use(middleware.LoggingMiddleware(s.Logger()))
	router.Use(middleware.MetricsMiddleware())

	s.RegisterStandardRoutes()
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Discovery and rendering
	router.Handle("/.well-known/farcaster.json", s.manifest).Methods("GET")
	router.HandleFunc("/", s.handleLanding).Methods("GET")
	router.Handle(manifest.IconPath, iconAsset).Methods("GET")
	router.Handle(manifest.SplashPath, splashAsset).Methods("GET")
	router.Handle(manifest.ImagePath, ogImageAsset).Methods("GET")

	// Host webhooks
	router.Handle(manifest.WebhookPath, s.limiter.Handler(s.webhook)).Methods("POST")

	// Frame sessions
	router.HandleFunc("/frame/session", s.handleSession).Methods("GET")
	router.HandleFunc("/frame/sessions/{id}", s.sessionAccess(s.handleGetSession)).Methods("GET")
	router.HandleFunc("/frame/sessions/{id}/transfer", s.sessionAccess(s.handleTransfer)).Methods("POST")

	// Operator routes
	router.Handle("/frame/sessions", s.auth.Handler(http.HandlerFunc(s.handleListSessions))).Methods("GET")
	router.Handle("/frame/events", s.auth.Handler(http.HandlerFunc(s.handleActivity))).Methods("GET")
	router.Handle("/frame/notify", s.limiter.Handler(s.auth.Handler(http.HandlerFunc(s.handleNotify)))).Methods("POST")
}

// sessionAccess admits operators and holders of the session's grant token.
// Unknown sessions and wrong tokens get the same answer.
func (s *Service) sessionAccess(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if claims, err := s.auth.Authenticate(r); err == nil {
			next(w, r.WithContext(middleware.WithOperator(r.Context(), claims.Subject)))
			return
		}

		id := mux.Vars(r)["id"]
		if sess, ok := s.sessions.Get(id); ok && sess.Authorize(r.Header.Get(middleware.SessionTokenHeader)) {
			next(w, r)
			return
		}

		s.Logger().LogSecurityEvent(r.Context(), "session_access_denied", map[string]interface{}{
			"session_id": id,
			"path":       r.URL.Path,
			"method":     r.Method,
		})
		httputil.WriteError(w, svcerrors.Unauthorized("session token or operator token required"))
	}
}
