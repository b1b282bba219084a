package api

import "net/http"

// Register mounts the health probes and the guarded /api routes on mux
func (h *Handlers) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /health", h.HealthHandler)
	mux.HandleFunc("GET /health/detailed", h.DetailedHealthHandler)

	routes := map[string]http.Handler{
		"GET /api/guilds":                            http.HandlerFunc(h.GuildsHandler),
		"GET /api/guild/{guildId}/stats":             h.StatsHandler(),
		"GET /api/guild/{guildId}/leaderboard":       h.LeaderboardHandler(),
		"GET /api/guild/{guildId}/activity":          h.ActivityHandler(),
		"GET /api/guild/{guildId}/dashboard/metrics": h.MetricsHandler(),
		"GET /api/guild/{guildId}/reinforcements":    h.ReinforcementsHandler(),
		"GET /api/guild/{guildId}/alerts":            h.AlertsHandler(),
		"GET /api/guild/{guildId}/activity-feed":     h.FeedHandler(),
		"GET /api/guild/{guildId}/moderators":        h.ModeratorsHandler(),
		"GET /api/guild/{guildId}/analytics":         h.AnalyticsHandler(),
		"GET /api/guild/{guildId}/user/{userId}":     h.ProfileHandler(),
	}
	for pattern, handler := range routes {
		mux.Handle(pattern, guard(handler))
	}
}
