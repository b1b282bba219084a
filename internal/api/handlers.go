// Package api serves the health probes and the session-guarded guild views.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/auth"
	"github.com/parsascontentcorner/modboard/internal/dashboard"
	"github.com/parsascontentcorner/modboard/internal/models"
)

// Query parameter bounds
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
	DefaultActivityDays     = 7
	MaxActivityDays         = 90
)

// Views computes the guild aggregation views
type Views interface {
	Stats(ctx context.Context, guildID string) (*models.GuildStats, error)
	Leaderboard(ctx context.Context, guildID, metric string, limit int) ([]models.LeaderboardEntry, error)
	Activity(ctx context.Context, guildID string, days int) ([]models.ActivityDay, error)
	Metrics(ctx context.Context, guildID string) (*models.DashboardMetrics, error)
	Reinforcements(ctx context.Context, guildID string) ([]models.Reinforcement, error)
	Alerts(ctx context.Context, guildID string) ([]models.Alert, error)
	Feed(ctx context.Context, guildID string) ([]models.FeedEntry, error)
	Moderators(ctx context.Context, guildID string) ([]models.ModeratorStats, error)
	Analytics(ctx context.Context, guildID string) (*models.Analytics, error)
	Profile(ctx context.Context, guildID, userID string) (*models.UserProfile, error)
}

// HealthChecker reports store connectivity
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handlers contains the /health and /api handlers
type Handlers struct {
	views  Views
	health HealthChecker
	logger *zap.Logger
	now    func() time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(views Views, health HealthChecker, logger *zap.Logger) *Handlers {
	return &Handlers{
		views:  views,
		health: health,
		logger: logger,
		now:    time.Now,
	}
}

// HealthHandler answers liveness probes without touching the store
func (h *Handlers) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write health check response", zap.Error(err))
	}
}

// DetailedHealth is the body of the detailed health probe
type DetailedHealth struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// DetailedHealthHandler reports store connectivity, 503 when the store is down
func (h *Handlers) DetailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	body := DetailedHealth{Status: "healthy", Database: "connected", Timestamp: h.now().UTC()}
	status := http.StatusOK

	if err := h.health.Health(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		body.Status = "unhealthy"
		body.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, body)
}

// GuildsHandler returns the guild list of the session
func (h *Handlers) GuildsHandler(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())
	if session == nil {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	guilds := session.Profile.Guilds
	if guilds == nil {
		guilds = []models.ProfileGuild{}
	}
	h.writeJSON(w, http.StatusOK, guilds)
}

// guildView validates the guild route parameter before calling view
func (h *Handlers) guildView(name string, view func(r *http.Request, guildID string) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID := r.PathValue("guildId")
		if !models.IsSnowflake(guildID) {
			h.writeError(w, http.StatusBadRequest, "Invalid guild ID")
			return
		}

		result, err := view(r, guildID)
		if err != nil {
			h.viewError(w, name, guildID, err)
			return
		}

		h.writeJSON(w, http.StatusOK, result)
	}
}

// StatsHandler serves the headline counters
func (h *Handlers) StatsHandler() http.HandlerFunc {
	return h.guildView("stats", func(r *http.Request, guildID string) (any, error) {
		return h.views.Stats(r.Context(), guildID)
	})
}

// LeaderboardHandler serves ?metric=points|level|messages&limit=N
func (h *Handlers) LeaderboardHandler() http.HandlerFunc {
	return h.guildView("leaderboard", func(r *http.Request, guildID string) (any, error) {
		metric := r.URL.Query().Get("metric")
		if metric == "" {
			metric = models.MetricPoints
		}
		limit := clampedInt(r.URL.Query().Get("limit"), DefaultLeaderboardLimit, 1, MaxLeaderboardLimit)
		return h.views.Leaderboard(r.Context(), guildID, metric, limit)
	})
}

// ActivityHandler serves ?days=N of daily activity
func (h *Handlers) ActivityHandler() http.HandlerFunc {
	return h.guildView("activity", func(r *http.Request, guildID string) (any, error) {
		days := clampedInt(r.URL.Query().Get("days"), DefaultActivityDays, 1, MaxActivityDays)
		return h.views.Activity(r.Context(), guildID, days)
	})
}

// MetricsHandler serves the moderation workload summary
func (h *Handlers) MetricsHandler() http.HandlerFunc {
	return h.guildView("dashboard metrics", func(r *http.Request, guildID string) (any, error) {
		return h.views.Metrics(r.Context(), guildID)
	})
}

// ReinforcementsHandler serves the active case queue
func (h *Handlers) ReinforcementsHandler() http.HandlerFunc {
	return h.guildView("reinforcements", func(r *http.Request, guildID string) (any, error) {
		return h.views.Reinforcements(r.Context(), guildID)
	})
}

// AlertsHandler serves the unread alerts
func (h *Handlers) AlertsHandler() http.HandlerFunc {
	return h.guildView("alerts", func(r *http.Request, guildID string) (any, error) {
		return h.views.Alerts(r.Context(), guildID)
	})
}

// FeedHandler serves the audit feed
func (h *Handlers) FeedHandler() http.HandlerFunc {
	return h.guildView("activity feed", func(r *http.Request, guildID string) (any, error) {
		return h.views.Feed(r.Context(), guildID)
	})
}

// ModeratorsHandler serves the moderator roster
func (h *Handlers) ModeratorsHandler() http.HandlerFunc {
	return h.guildView("moderators", func(r *http.Request, guildID string) (any, error) {
		return h.views.Moderators(r.Context(), guildID)
	})
}

// AnalyticsHandler serves the 14 day analytics
func (h *Handlers) AnalyticsHandler() http.HandlerFunc {
	return h.guildView("analytics", func(r *http.Request, guildID string) (any, error) {
		return h.views.Analytics(r.Context(), guildID)
	})
}

// ProfileHandler serves one member profile
func (h *Handlers) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !models.IsSnowflake(r.PathValue("guildId")) {
			h.writeError(w, http.StatusBadRequest, "Invalid guild ID")
			return
		}
		userID := r.PathValue("userId")
		if !models.IsSnowflake(userID) {
			h.writeError(w, http.StatusBadRequest, "Invalid user ID")
			return
		}

		h.guildView("user profile", func(r *http.Request, guildID string) (any, error) {
			return h.views.Profile(r.Context(), guildID, userID)
		})(w, r)
	}
}

func (h *Handlers) viewError(w http.ResponseWriter, view, guildID string, err error) {
	switch {
	case errors.Is(err, dashboard.ErrInvalidMetric):
		h.writeError(w, http.StatusBadRequest, "Invalid metric")
		return
	case errors.Is(err, models.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "User not found")
		return
	}

	h.logger.Error("failed to build view",
		zap.String("view", view),
		zap.String("guild_id", guildID),
		zap.Error(err),
	)
	h.writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// clampedInt parses raw, falling back to def, and clamps it to [lo, hi]
func clampedInt(raw string, def, lo, hi int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		n = def
	}
	return max(lo, min(n, hi))
}
