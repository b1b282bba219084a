package models

import (
	"time"

	"github.com/parsascontentcorner/modboard/internal/derive"
)

// Leaderboard metrics
const (
	MetricPoints   = "points"
	MetricLevel    = "level"
	MetricMessages = "messages"
)

// IsLeaderboardMetric reports whether metric is one of the ranked metrics
func IsLeaderboardMetric(metric string) bool {
	switch metric {
	case MetricPoints, MetricLevel, MetricMessages:
		return true
	}
	return false
}

// GuildStats is the headline counters of a guild
type GuildStats struct {
	TotalMembers  int64 `json:"totalMembers"`
	TotalMessages int64 `json:"totalMessages"`
	TotalPoints   int64 `json:"totalPoints"`
}

// LeaderboardEntry is one ranked user
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Value    int64  `json:"value"`
}

// ActivityDay is one day of the activity series
type ActivityDay struct {
	Date        string `json:"date"`
	Messages    int64  `json:"messages"`
	Images      int64  `json:"images"`
	Attachments int64  `json:"attachments"`
}

// DashboardMetrics summarises the moderation workload of a guild
type DashboardMetrics struct {
	ActiveCases     int64   `json:"activeCases"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	UnreadAlerts    int64   `json:"unreadAlerts"`
	CompletionRate  float64 `json:"completionRate"`
	CompletedToday  int64   `json:"completedToday"`
}

// Reinforcement is one case of the reinforcement queue
type Reinforcement struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"userId"`
	Requester   string          `json:"requester"`
	ModeratorID *string         `json:"moderatorId"`
	Assignee    *string         `json:"assignee"`
	Reason      string          `json:"reason"`
	Priority    derive.Priority `json:"priority"`
	Status      string          `json:"status"`
	Tags        []string        `json:"tags"`
	CreatedAt   time.Time       `json:"createdAt"`
	ExpiresAt   *time.Time      `json:"expiresAt"`
}

// Alert is a notification mapped to an alert level
type Alert struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Level       string    `json:"level"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Channel     string    `json:"channel,omitempty"`
	ChannelName string    `json:"channelName,omitempty"`
	User        string    `json:"user,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FeedEntry is one audit entry of the activity feed
type FeedEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	ActorID   *string   `json:"actorId"`
	Actor     string    `json:"actor"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ModeratorStats is one row of the moderator roster
type ModeratorStats struct {
	UserID               string  `json:"userId"`
	Username             string  `json:"username"`
	ActiveAssignments    int64   `json:"activeAssignments"`
	CompletedToday       int64   `json:"completedToday"`
	AvgResolutionMinutes float64 `json:"avgResolutionMinutes"`
	Presence             string  `json:"presence"`
	Score                int     `json:"score"`
}

// Analytics is the trailing 14 day analytics of a guild
type Analytics struct {
	Timeline             []TimelineDay        `json:"timeline"`
	PriorityDistribution PriorityDistribution `json:"priorityDistribution"`
	ResolutionTimes      []ResolutionDay      `json:"resolutionTimes"`
	Sentiment            []SentimentDay       `json:"sentiment"`
	TopModerators        []ModeratorLoad      `json:"topModerators"`
}

// TimelineDay holds created and resolved cases of one day with running totals
type TimelineDay struct {
	Date               string `json:"date"`
	Created            int64  `json:"created"`
	Resolved           int64  `json:"resolved"`
	CumulativeCreated  int64  `json:"cumulativeCreated"`
	CumulativeResolved int64  `json:"cumulativeResolved"`
	InProgress         int64  `json:"inProgress"`
}

// PriorityDistribution counts cases per derived priority
type PriorityDistribution struct {
	Urgent int64 `json:"urgent"`
	High   int64 `json:"high"`
	Medium int64 `json:"medium"`
	Low    int64 `json:"low"`
}

// Add counts one case of priority p
func (d *PriorityDistribution) Add(p derive.Priority) {
	switch p {
	case derive.PriorityUrgent:
		d.Urgent++
	case derive.PriorityHigh:
		d.High++
	case derive.PriorityMedium:
		d.Medium++
	default:
		d.Low++
	}
}

// ResolutionDay is the mean resolution time of the cases resolved on one day
type ResolutionDay struct {
	Date       string  `json:"date"`
	Resolved   int64   `json:"resolved"`
	AvgMinutes float64 `json:"avgMinutes"`
}

// SentimentDay buckets the notifications of one day by sentiment
type SentimentDay struct {
	Date     string `json:"date"`
	Positive int64  `json:"positive"`
	Neutral  int64  `json:"neutral"`
	Negative int64  `json:"negative"`
}

// Add counts one notification of the given sentiment
func (d *SentimentDay) Add(sentiment string) {
	switch sentiment {
	case derive.SentimentPositive:
		d.Positive++
	case derive.SentimentNegative:
		d.Negative++
	default:
		d.Neutral++
	}
}

// ModeratorLoad is a moderator ranked by currently active assigned cases
type ModeratorLoad struct {
	ModeratorID *string `json:"moderatorId"`
	Username    string  `json:"username"`
	ActiveCases int64   `json:"activeCases"`
}

// UserProfile is one member's record in a guild
type UserProfile struct {
	Member       Member  `json:"member"`
	Username     string  `json:"username"`
	Points       *Points `json:"points"`
	MessageCount int64   `json:"messageCount"`
	Achievements int64   `json:"achievements"`
}

// DateKey formats a day bucket key
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
