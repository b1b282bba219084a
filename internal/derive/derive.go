// Package derive holds the pure transforms applied to store records when
// building dashboard views: priority and tag extraction from free-text reasons,
// display-name formatting, keyword classification and moderator scoring.
package derive

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// Priority of a moderation case
type Priority string

// Priority levels
const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// UnknownMember is shown when a user record has no username
const UnknownMember = "Unknown Member"

const (
	maxTags      = 4
	minTagLength = 3

	minModeratorScore = 55
	maxModeratorScore = 100
)

var tagStripper = regexp.MustCompile(`[^A-Za-z0-9#_-]`)

// keywordRule maps any matching keyword to a label; rules are evaluated in order
type keywordRule struct {
	keywords []string
	label    string
}

func classify(text string, rules []keywordRule, fallback string) string {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.label
			}
		}
	}
	return fallback
}

var priorityRules = []keywordRule{
	{keywords: []string{"urgent", "raid", "critical"}, label: string(PriorityUrgent)},
	{keywords: []string{"high", "warning"}, label: string(PriorityHigh)},
	{keywords: []string{"medium", "review"}, label: string(PriorityMedium)},
}

// DeterminePriority classifies a case reason; an empty reason is medium
func DeterminePriority(reason string) Priority {
	if reason == "" {
		return PriorityMedium
	}
	return Priority(classify(reason, priorityRules, string(PriorityLow)))
}

// ExtractTags returns up to four tokens of the reason, in order, keeping only
// alphanumerics, '#', '_' and '-' and dropping tokens shorter than three characters.
func ExtractTags(reason string) []string {
	tags := make([]string, 0, maxTags)
	for _, field := range strings.Fields(reason) {
		token := tagStripper.ReplaceAllString(field, "")
		if len(token) < minTagLength {
			continue
		}
		tags = append(tags, token)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// FormatUsername renders name#discriminator, omitting the legacy "0" discriminator
func FormatUsername(name, discriminator string) string {
	if name == "" {
		return UnknownMember
	}
	if discriminator != "" && discriminator != "0" {
		return name + "#" + discriminator
	}
	return name
}

// Audit statuses
const (
	AuditSuccess = "success"
	AuditPending = "pending"
	AuditError   = "error"
)

var auditRules = []keywordRule{
	{keywords: []string{"fail", "error"}, label: AuditError},
	{keywords: []string{"pending", "request"}, label: AuditPending},
}

// AuditStatus derives the feed status of an audit action
func AuditStatus(action string) string {
	return classify(action, auditRules, AuditSuccess)
}

// Alert levels
const (
	AlertInfo     = "info"
	AlertWarning  = "warning"
	AlertUrgent   = "urgent"
	AlertResolved = "resolved"
)

var alertRules = []keywordRule{
	{keywords: []string{"urgent", "warning", "ban"}, label: AlertUrgent},
	{keywords: []string{"error", "strike"}, label: AlertWarning},
	{keywords: []string{"resolved"}, label: AlertResolved},
}

// AlertLevel maps a notification type to its alert level
func AlertLevel(notificationType string) string {
	return classify(notificationType, alertRules, AlertInfo)
}

// Notification sentiments
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

var sentimentRules = []keywordRule{
	{keywords: []string{"level", "achievement"}, label: SentimentPositive},
	{keywords: []string{"warn", "ban", "incident"}, label: SentimentNegative},
}

// Sentiment buckets a notification type for the analytics view
func Sentiment(notificationType string) string {
	return classify(notificationType, sentimentRules, SentimentNeutral)
}

// Case statuses
const (
	CaseInProgress = "in_progress"
	CaseQueued     = "queued"
)

// CaseStatus is in_progress once a moderator is assigned
func CaseStatus(moderatorAssigned bool) string {
	if moderatorAssigned {
		return CaseInProgress
	}
	return CaseQueued
}

// Presence buckets
const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceOffline = "offline"
)

// PresenceBucket folds a Discord status into online, away or offline
func PresenceBucket(status string) string {
	switch strings.ToLower(status) {
	case "online":
		return PresenceOnline
	case "idle", "dnd":
		return PresenceAway
	default:
		return PresenceOffline
	}
}

// CompletionTime is the instant a case counts as finished: expiresAt when
// set, otherwise now for active cases and createdAt for completed ones.
func CompletionTime(createdAt time.Time, expiresAt *time.Time, active bool, now time.Time) time.Time {
	if expiresAt != nil {
		return *expiresAt
	}
	if active {
		return now
	}
	return createdAt
}

// DurationMinutes returns the minutes from start to end, never negative
func DurationMinutes(start, end time.Time) float64 {
	return math.Max(0, end.Sub(start).Minutes())
}

// Mean is the arithmetic mean, 0 for an empty set
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CompletionRate is completed/(active+completed) as a percentage, 100 with no cases
func CompletionRate(active, completed int64) float64 {
	total := active + completed
	if total == 0 {
		return 100
	}
	return float64(completed) / float64(total) * 100
}

// ModeratorScore is clamp(100 - 2*meanMinutes - activeAssignments + 3*completedToday, 55, 100), rounded
func ModeratorScore(meanMinutes float64, activeAssignments, completedToday int64) int {
	raw := 100 - 2*meanMinutes - float64(activeAssignments) + 3*float64(completedToday)
	clamped := math.Min(maxModeratorScore, math.Max(minModeratorScore, raw))
	return int(math.Round(clamped))
}

// StartOfUTCDay truncates t to midnight UTC
func StartOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
