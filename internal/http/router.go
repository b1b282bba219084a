package http

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/api"
	"github.com/parsascontentcorner/modboard/internal/auth"
	"github.com/parsascontentcorner/modboard/internal/oauth"
)

// RouterConfig holds the cross-cutting settings of the router
type RouterConfig struct {
	AllowedOrigins []string
	CSRFEnabled    bool
	CSRFSecret     string
	SecureCookies  bool
}

// Handlers are the route handlers mounted by the router
type Handlers struct {
	OAuth    *oauth.Handlers
	API      *api.Handlers
	Sessions *auth.SessionManager
	// Realtime serves /ws; nil disables the route
	Realtime http.Handler
}

// NewRouter mounts every route and wraps them in the middleware chain
func NewRouter(cfg RouterConfig, handlers Handlers, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/discord", handlers.OAuth.StartHandler)
	mux.HandleFunc("GET /auth/discord/callback", handlers.OAuth.CallbackHandler)
	mux.HandleFunc("GET /auth/logout", handlers.OAuth.LogoutHandler)
	mux.HandleFunc("GET /auth/user", handlers.OAuth.UserHandler)
	if cfg.CSRFEnabled {
		mux.HandleFunc("GET /auth/csrf", handlers.OAuth.CSRFHandler)
	}

	handlers.API.Register(mux, auth.RequireAuth)

	if handlers.Realtime != nil {
		mux.Handle("GET /ws", handlers.Realtime)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	middlewares := []Middleware{
		recoverMiddleware(logger),
		loggingMiddleware(logger),
		corsMiddleware(cfg.AllowedOrigins),
	}
	if cfg.CSRFEnabled {
		middlewares = append(middlewares, csrfMiddleware(cfg.CSRFSecret, cfg.SecureCookies, originHosts(cfg.AllowedOrigins), logger))
	}
	middlewares = append(middlewares, handlers.Sessions.Middleware)

	logger.Info("HTTP routes configured",
		zap.Bool("csrf_enabled", cfg.CSRFEnabled),
		zap.Bool("realtime_enabled", handlers.Realtime != nil),
	)

	return chain(mux, middlewares...)
}

// originHosts returns the host part of each origin for referer checks
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}
