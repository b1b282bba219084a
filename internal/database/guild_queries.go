package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// pointsColumns maps the ranked metrics stored in points to their column
var pointsColumns = map[string]string{
	models.MetricPoints: "points",
	models.MetricLevel:  "level",
}

// GuildStats counts active members and message records and sums points of a guild
func (db *DB) GuildStats(ctx context.Context, guildID string) (*models.GuildStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM members WHERE guild_id = $1 AND is_active),
			(SELECT COUNT(*) FROM message_stats WHERE guild_id = $1),
			(SELECT COALESCE(SUM(points), 0) FROM points WHERE guild_id = $1)
	`

	stats := &models.GuildStats{}
	err := db.QueryRowContext(ctx, query, guildID).Scan(
		&stats.TotalMembers,
		&stats.TotalMessages,
		&stats.TotalPoints,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get guild stats: %w", err)
	}

	return stats, nil
}

// PointsLeaderboard ranks the points records of a guild by points or level, descending
func (db *DB) PointsLeaderboard(ctx context.Context, guildID, metric string, limit int) ([]models.LeaderboardRow, error) {
	column, ok := pointsColumns[metric]
	if !ok {
		return nil, fmt.Errorf("unsupported points metric %q", metric)
	}

	query := fmt.Sprintf(`
		SELECT p.user_id, u.username, u.discriminator, p.%[1]s
		FROM points p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.guild_id = $1
		ORDER BY p.%[1]s DESC
		LIMIT $2
	`, column)

	return db.queryLeaderboard(ctx, query, guildID, limit)
}

// MessageLeaderboard ranks the users of a guild by message record count, descending
func (db *DB) MessageLeaderboard(ctx context.Context, guildID string, limit int) ([]models.LeaderboardRow, error) {
	query := `
		SELECT m.user_id, u.username, u.discriminator, COUNT(*) AS message_count
		FROM message_stats m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.guild_id = $1
		GROUP BY m.user_id, u.username, u.discriminator
		ORDER BY message_count DESC
		LIMIT $2
	`

	return db.queryLeaderboard(ctx, query, guildID, limit)
}

func (db *DB) queryLeaderboard(ctx context.Context, query, guildID string, limit int) ([]models.LeaderboardRow, error) {
	rows, err := db.QueryContext(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardRow
	for rows.Next() {
		var row models.LeaderboardRow
		if err := rows.Scan(&row.UserID, &row.Name.Username, &row.Name.Discriminator, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	return entries, nil
}

// DailyActivity sums the activity counters of a guild per day since the given day, ascending
func (db *DB) DailyActivity(ctx context.Context, guildID string, since time.Time) ([]models.ActivityRow, error) {
	query := `
		SELECT day,
			COALESCE(SUM(message_count), 0),
			COALESCE(SUM(image_count), 0),
			COALESCE(SUM(attachment_count), 0)
		FROM daily_activity
		WHERE guild_id = $1 AND day >= $2::date
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := db.QueryContext(ctx, query, guildID, since.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}
	defer rows.Close()

	var days []models.ActivityRow
	for rows.Next() {
		var day models.ActivityRow
		if err := rows.Scan(&day.Day, &day.Messages, &day.Images, &day.Attachments); err != nil {
			return nil, fmt.Errorf("failed to scan daily activity: %w", err)
		}
		days = append(days, day)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily activity: %w", err)
	}

	return days, nil
}

// ActiveMembers lists the active members of a guild with their display names
func (db *DB) ActiveMembers(ctx context.Context, guildID string) ([]models.NamedMember, error) {
	query := `
		SELECT m.user_id, u.username, u.discriminator
		FROM members m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.guild_id = $1 AND m.is_active
		ORDER BY m.user_id
	`

	rows, err := db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active members: %w", err)
	}
	defer rows.Close()

	var members []models.NamedMember
	for rows.Next() {
		var member models.NamedMember
		if err := rows.Scan(&member.UserID, &member.Name.Username, &member.Name.Discriminator); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}

	return members, nil
}

// LatestPresence returns the most recent presence snapshot of every user in a guild
func (db *DB) LatestPresence(ctx context.Context, guildID string) ([]models.PresenceSnapshot, error) {
	query := `
		SELECT DISTINCT ON (user_id) guild_id, user_id, status, timestamp
		FROM presence_snapshots
		WHERE guild_id = $1
		ORDER BY user_id, timestamp DESC
	`

	rows, err := db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query presence: %w", err)
	}
	defer rows.Close()

	var snapshots []models.PresenceSnapshot
	for rows.Next() {
		var snapshot models.PresenceSnapshot
		if err := rows.Scan(&snapshot.GuildID, &snapshot.UserID, &snapshot.Status, &snapshot.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan presence: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating presence: %w", err)
	}

	return snapshots, nil
}

// GetMember retrieves one membership record with the member's display name
func (db *DB) GetMember(ctx context.Context, guildID, userID string) (*models.Member, models.DisplayName, error) {
	query := `
		SELECT m.guild_id, m.user_id, m.is_active, m.roles, m.joined_at, u.username, u.discriminator
		FROM members m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.guild_id = $1 AND m.user_id = $2
	`

	member := &models.Member{}
	var name models.DisplayName
	err := db.QueryRowContext(ctx, query, guildID, userID).Scan(
		&member.GuildID,
		&member.UserID,
		&member.IsActive,
		&member.Roles,
		&member.JoinedAt,
		&name.Username,
		&name.Discriminator,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, name, fmt.Errorf("member %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, name, fmt.Errorf("failed to get member: %w", err)
	}

	return member, name, nil
}

// GetPoints retrieves one points record
func (db *DB) GetPoints(ctx context.Context, guildID, userID string) (*models.Points, error) {
	query := `
		SELECT guild_id, user_id, points, level
		FROM points
		WHERE guild_id = $1 AND user_id = $2
	`

	points := &models.Points{}
	err := db.QueryRowContext(ctx, query, guildID, userID).Scan(
		&points.GuildID,
		&points.UserID,
		&points.Points,
		&points.Level,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("points %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get points: %w", err)
	}

	return points, nil
}

// CountUserMessages counts the message records of one user in a guild
func (db *DB) CountUserMessages(ctx context.Context, guildID, userID string) (int64, error) {
	query := `SELECT COUNT(*) FROM message_stats WHERE guild_id = $1 AND user_id = $2`

	var count int64
	if err := db.QueryRowContext(ctx, query, guildID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user messages: %w", err)
	}

	return count, nil
}

// CountCompletedAchievements counts the completed achievements of one user in a guild
func (db *DB) CountCompletedAchievements(ctx context.Context, guildID, userID string) (int64, error) {
	query := `SELECT COUNT(*) FROM achievements WHERE guild_id = $1 AND user_id = $2 AND completed`

	var count int64
	if err := db.QueryRowContext(ctx, query, guildID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count achievements: %w", err)
	}

	return count, nil
}
