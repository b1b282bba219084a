package database

import (
	"context"
	"fmt"
	"time"

	"github.com/parsascontentcorner/modboard/internal/models"
)

const warningColumns = `w.id, w.guild_id, w.user_id, w.moderator_id, w.reason, w.active, w.created_at, w.expires_at`

func scanWarning(scanner interface{ Scan(...any) error }, w *models.Warning, extra ...any) error {
	dest := append([]any{
		&w.ID,
		&w.GuildID,
		&w.UserID,
		&w.ModeratorID,
		&w.Reason,
		&w.Active,
		&w.CreatedAt,
		&w.ExpiresAt,
	}, extra...)
	return scanner.Scan(dest...)
}

func (db *DB) queryWarnings(ctx context.Context, query string, args ...any) ([]models.Warning, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query warnings: %w", err)
	}
	defer rows.Close()

	var warnings []models.Warning
	for rows.Next() {
		var w models.Warning
		if err := scanWarning(rows, &w); err != nil {
			return nil, fmt.Errorf("failed to scan warning: %w", err)
		}
		warnings = append(warnings, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating warnings: %w", err)
	}

	return warnings, nil
}

// CountWarnings counts active and completed cases of a guild, and the cases completed since the given time
func (db *DB) CountWarnings(ctx context.Context, guildID string, since time.Time) (*models.WarningCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE active),
			COUNT(*) FILTER (WHERE NOT active),
			COUNT(*) FILTER (WHERE NOT active AND COALESCE(expires_at, created_at) >= $2)
		FROM warnings
		WHERE guild_id = $1
	`

	counts := &models.WarningCounts{}
	err := db.QueryRowContext(ctx, query, guildID, since).Scan(
		&counts.Active,
		&counts.Completed,
		&counts.CompletedSince,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count warnings: %w", err)
	}

	return counts, nil
}

// RecentWarnings returns the most recent active or completed cases of a guild
func (db *DB) RecentWarnings(ctx context.Context, guildID string, active bool, limit int) ([]models.Warning, error) {
	query := `
		SELECT ` + warningColumns + `
		FROM warnings w
		WHERE w.guild_id = $1 AND w.active = $2
		ORDER BY w.created_at DESC
		LIMIT $3
	`

	return db.queryWarnings(ctx, query, guildID, active, limit)
}

// ModeratedWarnings returns every case of a guild that has a moderator assigned
func (db *DB) ModeratedWarnings(ctx context.Context, guildID string) ([]models.Warning, error) {
	query := `
		SELECT ` + warningColumns + `
		FROM warnings w
		WHERE w.guild_id = $1 AND w.moderator_id IS NOT NULL
	`

	return db.queryWarnings(ctx, query, guildID)
}

// WarningsInWindow returns the cases of a guild created or completed since the given time
func (db *DB) WarningsInWindow(ctx context.Context, guildID string, since time.Time) ([]models.Warning, error) {
	query := `
		SELECT ` + warningColumns + `
		FROM warnings w
		WHERE w.guild_id = $1
			AND (w.created_at >= $2 OR (NOT w.active AND COALESCE(w.expires_at, w.created_at) >= $2))
		ORDER BY w.created_at ASC
	`

	return db.queryWarnings(ctx, query, guildID, since)
}

// ActiveWarningDetails returns the most recent active cases with requester and moderator names
func (db *DB) ActiveWarningDetails(ctx context.Context, guildID string, limit int) ([]models.WarningDetail, error) {
	query := `
		SELECT ` + warningColumns + `,
			ru.username, ru.discriminator, mu.username, mu.discriminator
		FROM warnings w
		LEFT JOIN users ru ON ru.id = w.user_id
		LEFT JOIN users mu ON mu.id = w.moderator_id
		WHERE w.guild_id = $1 AND w.active
		ORDER BY w.created_at DESC
		LIMIT $2
	`

	rows, err := db.QueryContext(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active warnings: %w", err)
	}
	defer rows.Close()

	var details []models.WarningDetail
	for rows.Next() {
		var d models.WarningDetail
		err := scanWarning(rows, &d.Warning,
			&d.Requester.Username, &d.Requester.Discriminator,
			&d.Moderator.Username, &d.Moderator.Discriminator,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan warning: %w", err)
		}
		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating warnings: %w", err)
	}

	return details, nil
}

// ModeratorLoad ranks moderator ids by currently active assigned cases; unassigned cases group under a null id
func (db *DB) ModeratorLoad(ctx context.Context, guildID string, limit int) ([]models.ModeratorLoadRow, error) {
	query := `
		SELECT w.moderator_id, u.username, u.discriminator, COUNT(*) AS active_cases
		FROM warnings w
		LEFT JOIN users u ON u.id = w.moderator_id
		WHERE w.guild_id = $1 AND w.active
		GROUP BY w.moderator_id, u.username, u.discriminator
		ORDER BY active_cases DESC
		LIMIT $2
	`

	rows, err := db.QueryContext(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query moderator load: %w", err)
	}
	defer rows.Close()

	var loads []models.ModeratorLoadRow
	for rows.Next() {
		var row models.ModeratorLoadRow
		if err := rows.Scan(&row.ModeratorID, &row.Name.Username, &row.Name.Discriminator, &row.ActiveCases); err != nil {
			return nil, fmt.Errorf("failed to scan moderator load: %w", err)
		}
		loads = append(loads, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moderator load: %w", err)
	}

	return loads, nil
}
