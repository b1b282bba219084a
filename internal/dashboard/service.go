// Package dashboard composes store reads and derivations into the read views
// served under /api/guild/{guildId}.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parsascontentcorner/modboard/internal/derive"
	"github.com/parsascontentcorner/modboard/internal/models"
)

// View limits
const (
	ResponseSampleSize  = 100
	ReinforcementLimit  = 50
	AlertLimit          = 15
	FeedLimit           = 30
	TopModeratorLimit   = 8
	AnalyticsWindowDays = 14
)

// ErrInvalidMetric is returned for a leaderboard metric outside the ranked set
var ErrInvalidMetric = errors.New("invalid leaderboard metric")

// Store is the read side of the relational store used by the views
type Store interface {
	GuildStats(ctx context.Context, guildID string) (*models.GuildStats, error)
	PointsLeaderboard(ctx context.Context, guildID, metric string, limit int) ([]models.LeaderboardRow, error)
	MessageLeaderboard(ctx context.Context, guildID string, limit int) ([]models.LeaderboardRow, error)
	DailyActivity(ctx context.Context, guildID string, since time.Time) ([]models.ActivityRow, error)

	CountWarnings(ctx context.Context, guildID string, since time.Time) (*models.WarningCounts, error)
	RecentWarnings(ctx context.Context, guildID string, active bool, limit int) ([]models.Warning, error)
	ModeratedWarnings(ctx context.Context, guildID string) ([]models.Warning, error)
	WarningsInWindow(ctx context.Context, guildID string, since time.Time) ([]models.Warning, error)
	ActiveWarningDetails(ctx context.Context, guildID string, limit int) ([]models.WarningDetail, error)
	ModeratorLoad(ctx context.Context, guildID string, limit int) ([]models.ModeratorLoadRow, error)

	CountUnreadNotifications(ctx context.Context, guildID string) (int64, error)
	RecentNotifications(ctx context.Context, guildID string, limit int) ([]models.Notification, error)
	NotificationsSince(ctx context.Context, guildID string, since time.Time) ([]models.Notification, error)
	RecentAudits(ctx context.Context, guildID string, limit int) ([]models.AuditDetail, error)

	ActiveMembers(ctx context.Context, guildID string) ([]models.NamedMember, error)
	LatestPresence(ctx context.Context, guildID string) ([]models.PresenceSnapshot, error)
	GetMember(ctx context.Context, guildID, userID string) (*models.Member, models.DisplayName, error)
	GetPoints(ctx context.Context, guildID, userID string) (*models.Points, error)
	CountUserMessages(ctx context.Context, guildID, userID string) (int64, error)
	CountCompletedAchievements(ctx context.Context, guildID, userID string) (int64, error)
}

// Service builds the dashboard views of a guild
type Service struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock used for "now" and UTC day boundaries
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a view service; a zero timeout leaves queries unbounded
func NewService(store Store, logger *zap.Logger, timeout time.Duration, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// round1 rounds to one decimal place
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Stats returns the headline counters of a guild
func (s *Service) Stats(ctx context.Context, guildID string) (*models.GuildStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats, err := s.store.GuildStats(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return stats, nil
}

// Leaderboard ranks the users of a guild by metric, highest first
func (s *Service) Leaderboard(ctx context.Context, guildID, metric string, limit int) ([]models.LeaderboardEntry, error) {
	if !models.IsLeaderboardMetric(metric) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		rows []models.LeaderboardRow
		err  error
	)
	if metric == models.MetricMessages {
		rows, err = s.store.MessageLeaderboard(ctx, guildID, limit)
	} else {
		rows, err = s.store.PointsLeaderboard(ctx, guildID, metric, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, models.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   row.UserID,
			Username: row.Name.Format(),
			Value:    row.Value,
		})
	}
	return entries, nil
}

// Activity returns per-day activity counters over the trailing days, oldest first
func (s *Service) Activity(ctx context.Context, guildID string, days int) ([]models.ActivityDay, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	since := startOfWindow(s.clock(), days)
	rows, err := s.store.DailyActivity(ctx, guildID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}

	series := make([]models.ActivityDay, 0, len(rows))
	for _, row := range rows {
		series = append(series, models.ActivityDay{
			Date:        models.DateKey(row.Day),
			Messages:    row.Messages,
			Images:      row.Images,
			Attachments: row.Attachments,
		})
	}
	return series, nil
}

// Profile returns one member's record; models.ErrNotFound when the member does not exist
func (s *Service) Profile(ctx context.Context, guildID, userID string) (*models.UserProfile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	member, name, err := s.store.GetMember(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}

	profile := &models.UserProfile{
		Member:   *member,
		Username: name.Format(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		points, err := s.store.GetPoints(gctx, guildID, userID)
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Debug("member has no points record",
				zap.String("guild_id", guildID),
				zap.String("user_id", userID),
			)
			return nil
		}
		if err != nil {
			return err
		}
		profile.Points = points
		return nil
	})
	g.Go(func() error {
		count, err := s.store.CountUserMessages(gctx, guildID, userID)
		profile.MessageCount = count
		return err
	})
	g.Go(func() error {
		count, err := s.store.CountCompletedAchievements(gctx, guildID, userID)
		profile.Achievements = count
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}

func startOfDay(t time.Time) time.Time {
	return derive.StartOfUTCDay(t)
}

// startOfWindow is midnight UTC of the first of the trailing days ending today
func startOfWindow(now time.Time, days int) time.Time {
	return startOfDay(now).AddDate(0, 0, -(days - 1))
}
