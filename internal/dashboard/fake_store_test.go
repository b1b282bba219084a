package dashboard

import (
	"context"
	"database/sql"
	"time"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// fakeStore serves canned rows; err fails every read
type fakeStore struct {
	err error

	stats         *models.GuildStats
	pointsRows    []models.LeaderboardRow
	messageRows   []models.LeaderboardRow
	activity      []models.ActivityRow
	counts        *models.WarningCounts
	completed     []models.Warning
	active        []models.Warning
	moderated     []models.Warning
	window        []models.Warning
	details       []models.WarningDetail
	loads         []models.ModeratorLoadRow
	unread        int64
	notifications []models.Notification
	audits        []models.AuditDetail
	members       []models.NamedMember
	presence      []models.PresenceSnapshot
	member        *models.Member
	memberName    models.DisplayName
	points        *models.Points
	messageCount  int64
	achievements  int64

	lastMetric string
	lastLimit  int
	lastSince  time.Time
}

func (f *fakeStore) GuildStats(ctx context.Context, guildID string) (*models.GuildStats, error) {
	return f.stats, f.err
}

func (f *fakeStore) PointsLeaderboard(ctx context.Context, guildID, metric string, limit int) ([]models.LeaderboardRow, error) {
	f.lastMetric, f.lastLimit = metric, limit
	return f.pointsRows, f.err
}

func (f *fakeStore) MessageLeaderboard(ctx context.Context, guildID string, limit int) ([]models.LeaderboardRow, error) {
	f.lastMetric, f.lastLimit = models.MetricMessages, limit
	return f.messageRows, f.err
}

func (f *fakeStore) DailyActivity(ctx context.Context, guildID string, since time.Time) ([]models.ActivityRow, error) {
	f.lastSince = since
	return f.activity, f.err
}

func (f *fakeStore) CountWarnings(ctx context.Context, guildID string, since time.Time) (*models.WarningCounts, error) {
	if f.counts == nil {
		return &models.WarningCounts{}, f.err
	}
	return f.counts, f.err
}

func (f *fakeStore) RecentWarnings(ctx context.Context, guildID string, active bool, limit int) ([]models.Warning, error) {
	if active {
		return f.active, f.err
	}
	return f.completed, f.err
}

func (f *fakeStore) ModeratedWarnings(ctx context.Context, guildID string) ([]models.Warning, error) {
	return f.moderated, f.err
}

func (f *fakeStore) WarningsInWindow(ctx context.Context, guildID string, since time.Time) ([]models.Warning, error) {
	f.lastSince = since
	return f.window, f.err
}

func (f *fakeStore) ActiveWarningDetails(ctx context.Context, guildID string, limit int) ([]models.WarningDetail, error) {
	f.lastLimit = limit
	return f.details, f.err
}

func (f *fakeStore) ModeratorLoad(ctx context.Context, guildID string, limit int) ([]models.ModeratorLoadRow, error) {
	return f.loads, f.err
}

func (f *fakeStore) CountUnreadNotifications(ctx context.Context, guildID string) (int64, error) {
	return f.unread, f.err
}

func (f *fakeStore) RecentNotifications(ctx context.Context, guildID string, limit int) ([]models.Notification, error) {
	f.lastLimit = limit
	return f.notifications, f.err
}

func (f *fakeStore) NotificationsSince(ctx context.Context, guildID string, since time.Time) ([]models.Notification, error) {
	return f.notifications, f.err
}

func (f *fakeStore) RecentAudits(ctx context.Context, guildID string, limit int) ([]models.AuditDetail, error) {
	f.lastLimit = limit
	return f.audits, f.err
}

func (f *fakeStore) ActiveMembers(ctx context.Context, guildID string) ([]models.NamedMember, error) {
	return f.members, f.err
}

func (f *fakeStore) LatestPresence(ctx context.Context, guildID string) ([]models.PresenceSnapshot, error) {
	return f.presence, f.err
}

func (f *fakeStore) GetMember(ctx context.Context, guildID, userID string) (*models.Member, models.DisplayName, error) {
	if f.err != nil {
		return nil, models.DisplayName{}, f.err
	}
	if f.member == nil {
		return nil, models.DisplayName{}, models.ErrNotFound
	}
	return f.member, f.memberName, nil
}

func (f *fakeStore) GetPoints(ctx context.Context, guildID, userID string) (*models.Points, error) {
	if f.points == nil {
		return nil, models.ErrNotFound
	}
	return f.points, nil
}

func (f *fakeStore) CountUserMessages(ctx context.Context, guildID, userID string) (int64, error) {
	return f.messageCount, nil
}

func (f *fakeStore) CountCompletedAchievements(ctx context.Context, guildID, userID string) (int64, error) {
	return f.achievements, nil
}

func name(username, discriminator string) models.DisplayName {
	return models.DisplayName{
		Username:      sql.NullString{String: username, Valid: username != ""},
		Discriminator: sql.NullString{String: discriminator, Valid: discriminator != ""},
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
