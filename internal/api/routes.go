package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/starfield/server/internal/auth"
	"github.com/starfield/server/internal/config"
	"github.com/starfield/server/internal/performance"
	"github.com/starfield/server/internal/session"
	"github.com/starfield/server/internal/streaming"
)

// authRateLimit caps operator login attempts per IP.
const authRateLimit = 5

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Config   *config.Config
	Manager  *streaming.Manager
	Bridge   *session.Bridge
	Profiler *performance.Profiler
	Logger   *slog.Logger
}

// Server is the assembled HTTP handler plus the stream hub the caller must
// run.
type Server struct {
	Handler   http.Handler
	WebSocket *WebSocketHandlers
}

// NewServer registers every route and wraps the mux in the shared
// middleware.
func NewServer(deps Dependencies) *Server {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler(deps.Manager))

	SetupUniverseRoutes(mux, deps.Manager, deps.Profiler, logger, cfg)
	SetupAuthRoutes(mux, cfg, logger)
	SetupAdminRoutes(mux, deps.Manager, cfg, logger)
	SetupSessionRoutes(mux, deps.Bridge, cfg, logger)

	ws := NewWebSocketHandlers(cfg, deps.Manager, deps.Bridge, deps.Profiler, logger)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket)

	var handler http.Handler = mux
	handler = CORSMiddleware(cfg.Server.AllowedOrigins)(handler)
	handler = auth.SecurityHeadersMiddleware(handler)
	return &Server{Handler: handler, WebSocket: ws}
}

// SetupUniverseRoutes registers the public universe routes.
func SetupUniverseRoutes(mux *http.ServeMux, manager *streaming.Manager, profiler *performance.Profiler, logger *slog.Logger, cfg *config.Config) {
	handlers := NewUniverseHandlers(manager, profiler, logger)
	limit := RateLimitMiddleware(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow, logger)

	mux.Handle("GET /api/universe", limit(http.HandlerFunc(handlers.GetUniverse)))
	mux.Handle("GET /api/universe/stats", limit(http.HandlerFunc(handlers.GetStats)))
	mux.Handle("GET /api/universe/chunks/{cx}/{cy}/{cz}", limit(http.HandlerFunc(handlers.GetChunk)))
	mux.Handle("POST /api/universe/visible", limit(http.HandlerFunc(handlers.PostVisible)))
}

// SetupAuthRoutes registers the operator token route with a strict limit.
func SetupAuthRoutes(mux *http.ServeMux, cfg *config.Config, logger *slog.Logger) {
	authHandlers := newAuthHandlers(cfg, logger)
	limit := RateLimitMiddleware(authRateLimit, time.Minute, logger)
	mux.Handle("POST /api/auth/token", limit(http.HandlerFunc(authHandlers.IssueToken)))
}

// SetupAdminRoutes registers operator-only routes.
func SetupAdminRoutes(mux *http.ServeMux, manager *streaming.Manager, cfg *config.Config, logger *slog.Logger) {
	handlers := NewAdminHandlers(manager, logger)
	authHandlers := newAuthHandlers(cfg, logger)
	limit := RateLimitMiddleware(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow, logger)

	protect := func(fn http.HandlerFunc) http.Handler {
		return limit(authHandlers.RequireOperator(fn))
	}
	mux.Handle("PUT /api/admin/universe/seed", protect(handlers.SetSeed))
	mux.Handle("PUT /api/admin/universe/custom-seed", protect(handlers.SetCustomSeed))
	mux.Handle("DELETE /api/admin/universe/cache", protect(handlers.ResetCache))
	mux.Handle("PUT /api/admin/universe/settings", protect(handlers.UpdateSettings))
}

// SetupSessionRoutes registers the session save/restore routes.
func SetupSessionRoutes(mux *http.ServeMux, bridge *session.Bridge, cfg *config.Config, logger *slog.Logger) {
	handlers := NewSessionHandlers(bridge, logger)
	limit := RateLimitMiddleware(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow, logger)

	mux.Handle("POST /api/sessions", limit(http.HandlerFunc(handlers.SaveSession)))
	mux.Handle("GET /api/sessions", limit(http.HandlerFunc(handlers.ListSessions)))
	mux.Handle("GET /api/sessions/{query}", limit(http.HandlerFunc(handlers.RestoreSession)))
	mux.Handle("DELETE /api/sessions/{name}", limit(http.HandlerFunc(handlers.DeleteSession)))
}

func newAuthHandlers(cfg *config.Config, logger *slog.Logger) *auth.AuthHandlers {
	return auth.NewAuthHandlers(
		auth.NewJWTService(cfg),
		auth.NewPasswordService(cfg),
		cfg.Auth.OperatorPasswordHash,
		logger,
	)
}

func healthHandler(manager *streaming.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"service":  "starfield-server",
			"protocol": ProtocolVersion1,
			"epoch":    manager.Epoch(),
		})
	}
}
