package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// CreateSession stores a new session
func (db *DB) CreateSession(ctx context.Context, session *models.Session) error {
	profile, err := json.Marshal(session.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode session profile: %w", err)
	}

	query := `
		INSERT INTO sessions (token, profile, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`

	err = db.QueryRowContext(ctx, query,
		session.Token,
		string(profile),
		session.ExpiresAt,
	).Scan(&session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves an unexpired session by token
func (db *DB) GetSession(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT token, profile, created_at, updated_at, expires_at
		FROM sessions
		WHERE token = $1 AND expires_at > NOW()
	`

	session := &models.Session{}
	var profile []byte
	err := db.QueryRowContext(ctx, query, token).Scan(
		&session.Token,
		&profile,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.ExpiresAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := json.Unmarshal(profile, &session.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode session profile: %w", err)
	}

	return session, nil
}

// UpdateSession replaces the profile of an unexpired session and extends its expiry
func (db *DB) UpdateSession(ctx context.Context, session *models.Session) error {
	profile, err := json.Marshal(session.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode session profile: %w", err)
	}

	query := `
		UPDATE sessions
		SET profile = $2, expires_at = $3, updated_at = NOW()
		WHERE token = $1 AND expires_at > NOW()
		RETURNING created_at, updated_at
	`

	err = db.QueryRowContext(ctx, query,
		session.Token,
		string(profile),
		session.ExpiresAt,
	).Scan(&session.CreatedAt, &session.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %w", models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return nil
}

// DeleteSession deletes a session
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	query := `DELETE FROM sessions WHERE token = $1`

	result, err := db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("session %w", models.ErrNotFound)
	}

	return nil
}

// CreateOAuthState creates a new OAuth state for CSRF protection
func (db *DB) CreateOAuthState(ctx context.Context, state *models.OAuthState) error {
	query := `
		INSERT INTO oauth_states (state, expires_at)
		VALUES ($1, $2)
		RETURNING created_at
	`

	err := db.QueryRowContext(ctx, query,
		state.State,
		state.ExpiresAt,
	).Scan(&state.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create oauth state: %w", err)
	}

	return nil
}

// ValidateAndDeleteOAuthState validates and deletes an OAuth state (single-use)
func (db *DB) ValidateAndDeleteOAuthState(ctx context.Context, state string) (*models.OAuthState, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// DELETE ... RETURNING makes concurrent validations of one state race for a single row
	query := `
		DELETE FROM oauth_states
		WHERE state = $1
		RETURNING state, created_at, expires_at
	`

	oauthState := &models.OAuthState{}
	err = tx.QueryRowContext(ctx, query, state).Scan(
		&oauthState.State,
		&oauthState.CreatedAt,
		&oauthState.ExpiresAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invalid state: not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate oauth state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if oauthState.IsExpired() {
		return nil, fmt.Errorf("state has expired")
	}

	return oauthState, nil
}

// CleanupExpiredSessions deletes expired sessions and states
func (db *DB) CleanupExpiredSessions(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("failed to cleanup expired oauth states: %w", err)
	}

	db.logger.Debug("cleaned up expired sessions and states")
	return nil
}

// StartCleanupJob starts a background job to periodically cleanup expired sessions
func (db *DB) StartCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := db.CleanupExpiredSessions(ctx); err != nil {
					db.logger.Error("failed to cleanup expired sessions", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	db.logger.Info("started cleanup job", zap.Duration("interval", interval))
}
