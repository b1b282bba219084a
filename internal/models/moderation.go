package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parsascontentcorner/modboard/internal/derive"
)

// Warning is a moderation case tracked from creation (active) to resolution
type Warning struct {
	ID          int64          `json:"id"`
	GuildID     string         `json:"guildId"`
	UserID      string         `json:"userId"`
	ModeratorID sql.NullString `json:"moderatorId"`
	Reason      sql.NullString `json:"reason"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   sql.NullTime   `json:"expiresAt"`
}

// ExpiresAtPtr returns the expiry or nil when unset
func (w *Warning) ExpiresAtPtr() *time.Time {
	if !w.ExpiresAt.Valid {
		return nil
	}
	t := w.ExpiresAt.Time
	return &t
}

// CompletedAt returns the instant the case counts as finished at now
func (w *Warning) CompletedAt(now time.Time) time.Time {
	return derive.CompletionTime(w.CreatedAt, w.ExpiresAtPtr(), w.Active, now)
}

// DurationMinutes is the non-negative time from creation to completion
func (w *Warning) DurationMinutes(now time.Time) float64 {
	return derive.DurationMinutes(w.CreatedAt, w.CompletedAt(now))
}

// WarningDetail is a warning joined with requester and moderator names
type WarningDetail struct {
	Warning
	Requester DisplayName
	Moderator DisplayName
}

// WarningCounts are the case counters of one guild
type WarningCounts struct {
	Active         int64
	Completed      int64
	CompletedSince int64
}

// ModeratorLoadRow is the count of active cases assigned to one moderator id
type ModeratorLoadRow struct {
	ModeratorID sql.NullString
	Name        DisplayName
	ActiveCases int64
}

// Notification is an alert raised for the moderators of a guild
type Notification struct {
	ID        int64          `json:"id"`
	GuildID   string         `json:"guildId"`
	Type      string         `json:"type"`
	Title     sql.NullString `json:"title"`
	Message   sql.NullString `json:"message"`
	Metadata  Metadata       `json:"metadata"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Metadata is the loosely typed JSONB payload of a notification
type Metadata map[string]any

// Scan implements sql.Scanner for JSONB columns
func (m *Metadata) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}

	decoded := Metadata{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}
	*m = decoded
	return nil
}

// Value implements driver.Valuer; the JSON is returned as a string since
// lib/pq encodes []byte parameters as bytea
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

// String returns the value at key when it is a string, otherwise ""
func (m Metadata) String(key string) string {
	if value, ok := m[key].(string); ok {
		return value
	}
	return ""
}

// Channel returns the channel id the notification refers to
func (m Metadata) Channel() string {
	return m.String("channel")
}

// ChannelName returns the channel name the notification refers to
func (m Metadata) ChannelName() string {
	return m.String("channelName")
}

// User returns the user the notification refers to
func (m Metadata) User() string {
	return m.String("user")
}

// Audit is a logged action
type Audit struct {
	ID        int64          `json:"id"`
	GuildID   string         `json:"guildId"`
	ActorID   sql.NullString `json:"actorId"`
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditDetail is an audit entry joined with the actor name
type AuditDetail struct {
	Audit
	Actor DisplayName
}
