package database

import (
	"context"
	"fmt"
	"time"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// CountUnreadNotifications counts the unread notifications of a guild
func (db *DB) CountUnreadNotifications(ctx context.Context, guildID string) (int64, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE guild_id = $1 AND NOT read`

	var count int64
	if err := db.QueryRowContext(ctx, query, guildID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// RecentNotifications returns the most recent notifications of a guild
func (db *DB) RecentNotifications(ctx context.Context, guildID string, limit int) ([]models.Notification, error) {
	query := `
		SELECT id, guild_id, type, title, message, metadata, read, created_at
		FROM notifications
		WHERE guild_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return db.queryNotifications(ctx, query, guildID, limit)
}

// NotificationsSince returns the notifications of a guild created since the given time, oldest first
func (db *DB) NotificationsSince(ctx context.Context, guildID string, since time.Time) ([]models.Notification, error) {
	query := `
		SELECT id, guild_id, type, title, message, metadata, read, created_at
		FROM notifications
		WHERE guild_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`

	return db.queryNotifications(ctx, query, guildID, since)
}

func (db *DB) queryNotifications(ctx context.Context, query string, args ...any) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(
			&n.ID,
			&n.GuildID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.Metadata,
			&n.Read,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

// RecentAudits returns the most recent audit entries of a guild with actor names
func (db *DB) RecentAudits(ctx context.Context, guildID string, limit int) ([]models.AuditDetail, error) {
	query := `
		SELECT a.id, a.guild_id, a.actor_id, a.action, a.timestamp, u.username, u.discriminator
		FROM audits a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE a.guild_id = $1
		ORDER BY a.timestamp DESC
		LIMIT $2
	`

	rows, err := db.QueryContext(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audits: %w", err)
	}
	defer rows.Close()

	var audits []models.AuditDetail
	for rows.Next() {
		var a models.AuditDetail
		err := rows.Scan(
			&a.ID,
			&a.GuildID,
			&a.ActorID,
			&a.Action,
			&a.Timestamp,
			&a.Actor.Username,
			&a.Actor.Discriminator,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		audits = append(audits, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audits: %w", err)
	}

	return audits, nil
}
