package dashboard

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parsascontentcorner/modboard/internal/derive"
	"github.com/parsascontentcorner/modboard/internal/models"
)

// Metrics summarises the moderation workload of a guild. The reads run in
// parallel and are not taken from one snapshot.
func (s *Service) Metrics(ctx context.Context, guildID string) (*models.DashboardMetrics, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.clock()

	var (
		counts    *models.WarningCounts
		completed []models.Warning
		active    []models.Warning
		unread    int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.store.CountWarnings(gctx, guildID, startOfDay(now))
		return err
	})
	g.Go(func() (err error) {
		completed, err = s.store.RecentWarnings(gctx, guildID, false, ResponseSampleSize)
		return err
	})
	g.Go(func() (err error) {
		active, err = s.store.RecentWarnings(gctx, guildID, true, ResponseSampleSize)
		return err
	})
	g.Go(func() (err error) {
		unread, err = s.store.CountUnreadNotifications(gctx, guildID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load dashboard metrics: %w", err)
	}

	// Completed cases are sampled when any exist, otherwise the active ones
	sample := completed
	if len(sample) == 0 {
		sample = active
	}

	return &models.DashboardMetrics{
		ActiveCases:     counts.Active,
		AvgResponseTime: round1(meanDuration(sample, now)),
		UnreadAlerts:    unread,
		CompletionRate:  round1(derive.CompletionRate(counts.Active, counts.Completed)),
		CompletedToday:  counts.CompletedSince,
	}, nil
}

func meanDuration(warnings []models.Warning, now time.Time) float64 {
	durations := make([]float64, 0, len(warnings))
	for i := range warnings {
		durations = append(durations, warnings[i].DurationMinutes(now))
	}
	return derive.Mean(durations)
}

// Reinforcements returns the most recent active cases with derived priority, status and tags
func (s *Service) Reinforcements(ctx context.Context, guildID string) ([]models.Reinforcement, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	details, err := s.store.ActiveWarningDetails(ctx, guildID, ReinforcementLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load reinforcements: %w", err)
	}

	queue := make([]models.Reinforcement, 0, len(details))
	for i := range details {
		d := &details[i]
		item := models.Reinforcement{
			ID:        d.ID,
			UserID:    d.UserID,
			Requester: d.Requester.Format(),
			Reason:    d.Reason.String,
			Priority:  derive.DeterminePriority(d.Reason.String),
			Status:    derive.CaseStatus(d.ModeratorID.Valid),
			Tags:      derive.ExtractTags(d.Reason.String),
			CreatedAt: d.CreatedAt,
			ExpiresAt: d.ExpiresAtPtr(),
		}
		if d.ModeratorID.Valid {
			moderatorID := d.ModeratorID.String
			assignee := d.Moderator.Format()
			item.ModeratorID = &moderatorID
			item.Assignee = &assignee
		}
		queue = append(queue, item)
	}
	return queue, nil
}

// Alerts returns the most recent notifications mapped to alert levels
func (s *Service) Alerts(ctx context.Context, guildID string) ([]models.Alert, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	notifications, err := s.store.RecentNotifications(ctx, guildID, AlertLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	alerts := make([]models.Alert, 0, len(notifications))
	for i := range notifications {
		n := &notifications[i]
		title := n.Title.String
		if title == "" {
			title = n.Type
		}
		alerts = append(alerts, models.Alert{
			ID:          n.ID,
			Type:        n.Type,
			Level:       derive.AlertLevel(n.Type),
			Title:       title,
			Message:     n.Message.String,
			Channel:     n.Metadata.Channel(),
			ChannelName: n.Metadata.ChannelName(),
			User:        n.Metadata.User(),
			Read:        n.Read,
			CreatedAt:   n.CreatedAt,
		})
	}
	return alerts, nil
}

// SystemActor names audit entries without an actor
const SystemActor = "System"

// Feed returns the most recent audit entries with a derived status
func (s *Service) Feed(ctx context.Context, guildID string) ([]models.FeedEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	audits, err := s.store.RecentAudits(ctx, guildID, FeedLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity feed: %w", err)
	}

	feed := make([]models.FeedEntry, 0, len(audits))
	for i := range audits {
		a := &audits[i]
		entry := models.FeedEntry{
			ID:        a.ID,
			Action:    a.Action,
			Actor:     SystemActor,
			Status:    derive.AuditStatus(a.Action),
			Timestamp: a.Timestamp,
		}
		if a.ActorID.Valid {
			actorID := a.ActorID.String
			entry.ActorID = &actorID
			entry.Actor = a.Actor.Format()
		}
		feed = append(feed, entry)
	}
	return feed, nil
}

type moderatorTally struct {
	active         int64
	completedToday int64
	durations      []float64
}

// Moderators returns the roster of active members with workload and score,
// highest score first and ties broken by cases completed today.
func (s *Service) Moderators(ctx context.Context, guildID string) ([]models.ModeratorStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		members  []models.NamedMember
		warnings []models.Warning
		presence []models.PresenceSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		members, err = s.store.ActiveMembers(gctx, guildID)
		return err
	})
	g.Go(func() (err error) {
		warnings, err = s.store.ModeratedWarnings(gctx, guildID)
		return err
	})
	g.Go(func() (err error) {
		presence, err = s.store.LatestPresence(gctx, guildID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load moderators: %w", err)
	}

	now := s.clock()
	today := startOfDay(now)

	tallies := make(map[string]*moderatorTally)
	for i := range warnings {
		w := &warnings[i]
		tally, ok := tallies[w.ModeratorID.String]
		if !ok {
			tally = &moderatorTally{}
			tallies[w.ModeratorID.String] = tally
		}
		if w.Active {
			tally.active++
			continue
		}
		if !w.CompletedAt(now).Before(today) {
			tally.completedToday++
		}
		tally.durations = append(tally.durations, w.DurationMinutes(now))
	}

	statuses := make(map[string]string, len(presence))
	for _, p := range presence {
		statuses[p.UserID] = p.Status
	}

	roster := make([]models.ModeratorStats, 0, len(members))
	for _, m := range members {
		tally := tallies[m.UserID]
		if tally == nil {
			tally = &moderatorTally{}
		}
		mean := derive.Mean(tally.durations)
		roster = append(roster, models.ModeratorStats{
			UserID:               m.UserID,
			Username:             m.Name.Format(),
			ActiveAssignments:    tally.active,
			CompletedToday:       tally.completedToday,
			AvgResolutionMinutes: round1(mean),
			Presence:             derive.PresenceBucket(statuses[m.UserID]),
			Score:                derive.ModeratorScore(mean, tally.active, tally.completedToday),
		})
	}

	slices.SortStableFunc(roster, func(a, b models.ModeratorStats) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(b.CompletedToday, a.CompletedToday)
	})

	return roster, nil
}
