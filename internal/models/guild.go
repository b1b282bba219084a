package models

import (
	"database/sql"
	"errors"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/parsascontentcorner/modboard/internal/derive"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

var snowflakePattern = regexp.MustCompile(`^\d{17,19}$`)

// IsSnowflake reports whether s is a 17 to 19 digit Discord identifier
func IsSnowflake(s string) bool {
	return snowflakePattern.MatchString(s)
}

// User represents a Discord account known to the bot
type User struct {
	ID            string         `json:"id"`
	Username      sql.NullString `json:"username"`
	Discriminator sql.NullString `json:"discriminator"`
}

// DisplayName holds the nullable name columns joined from users
type DisplayName struct {
	Username      sql.NullString
	Discriminator sql.NullString
}

// Format renders the name the way the dashboard shows it
func (d DisplayName) Format() string {
	return derive.FormatUsername(d.Username.String, d.Discriminator.String)
}

// Member represents a user's membership in one guild
type Member struct {
	GuildID  string         `json:"guildId"`
	UserID   string         `json:"userId"`
	IsActive bool           `json:"isActive"`
	Roles    pq.StringArray `json:"roles"`
	JoinedAt time.Time      `json:"joinedAt"`
}

// Points is the per-guild gamification record of a user
type Points struct {
	GuildID string `json:"guildId"`
	UserID  string `json:"userId"`
	Points  int64  `json:"points"`
	Level   int    `json:"level"`
}

// NamedMember is an active member with the joined display name
type NamedMember struct {
	UserID string
	Name   DisplayName
}

// PresenceSnapshot is the last known status of a user
type PresenceSnapshot struct {
	GuildID   string    `json:"guildId"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// LeaderboardRow is one ranked row as read from the store
type LeaderboardRow struct {
	UserID string
	Name   DisplayName
	Value  int64
}

// ActivityRow is the per-day counter sum of daily_activity
type ActivityRow struct {
	Day         time.Time
	Messages    int64
	Images      int64
	Attachments int64
}
