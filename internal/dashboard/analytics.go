package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/parsascontentcorner/modboard/internal/derive"
	"github.com/parsascontentcorner/modboard/internal/models"
)

// UnassignedModerator names the bucket of active cases without a moderator
const UnassignedModerator = "Unassigned"

// Analytics returns the case timeline, priority mix, resolution times,
// notification sentiment and moderator load of the trailing 14 UTC days.
func (s *Service) Analytics(ctx context.Context, guildID string) (*models.Analytics, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.clock()
	start := startOfWindow(now, AnalyticsWindowDays)

	var (
		warnings      []models.Warning
		notifications []models.Notification
		loads         []models.ModeratorLoadRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		warnings, err = s.store.WarningsInWindow(gctx, guildID, start)
		return err
	})
	g.Go(func() (err error) {
		notifications, err = s.store.NotificationsSince(gctx, guildID, start)
		return err
	})
	g.Go(func() (err error) {
		loads, err = s.store.ModeratorLoad(gctx, guildID, TopModeratorLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load analytics: %w", err)
	}

	keys := make([]string, AnalyticsWindowDays)
	index := make(map[string]int, AnalyticsWindowDays)
	for i := range keys {
		keys[i] = models.DateKey(start.AddDate(0, 0, i))
		index[keys[i]] = i
	}

	created := make([]int64, AnalyticsWindowDays)
	resolved := make([]int64, AnalyticsWindowDays)
	durations := make([][]float64, AnalyticsWindowDays)
	result := &models.Analytics{}

	for i := range warnings {
		w := &warnings[i]
		if !w.CreatedAt.Before(start) {
			if day, ok := index[models.DateKey(w.CreatedAt)]; ok {
				created[day]++
				result.PriorityDistribution.Add(derive.DeterminePriority(w.Reason.String))
			}
		}
		if w.Active {
			continue
		}
		completedAt := w.CompletedAt(now)
		if completedAt.Before(start) {
			continue
		}
		if day, ok := index[models.DateKey(completedAt)]; ok {
			resolved[day]++
			durations[day] = append(durations[day], w.DurationMinutes(now))
		}
	}

	sentiment := make([]models.SentimentDay, AnalyticsWindowDays)
	for i := range sentiment {
		sentiment[i].Date = keys[i]
	}
	for i := range notifications {
		if day, ok := index[models.DateKey(notifications[i].CreatedAt)]; ok {
			sentiment[day].Add(derive.Sentiment(notifications[i].Type))
		}
	}

	result.Timeline = make([]models.TimelineDay, 0, AnalyticsWindowDays)
	result.ResolutionTimes = make([]models.ResolutionDay, 0, AnalyticsWindowDays)
	var cumulativeCreated, cumulativeResolved int64
	for i, key := range keys {
		cumulativeCreated += created[i]
		cumulativeResolved += resolved[i]
		result.Timeline = append(result.Timeline, models.TimelineDay{
			Date:               key,
			Created:            created[i],
			Resolved:           resolved[i],
			CumulativeCreated:  cumulativeCreated,
			CumulativeResolved: cumulativeResolved,
			InProgress:         cumulativeCreated - cumulativeResolved,
		})
		result.ResolutionTimes = append(result.ResolutionTimes, models.ResolutionDay{
			Date:       key,
			Resolved:   resolved[i],
			AvgMinutes: round1(derive.Mean(durations[i])),
		})
	}
	result.Sentiment = sentiment

	result.TopModerators = make([]models.ModeratorLoad, 0, len(loads))
	for _, row := range loads {
		load := models.ModeratorLoad{
			Username:    UnassignedModerator,
			ActiveCases: row.ActiveCases,
		}
		if row.ModeratorID.Valid {
			moderatorID := row.ModeratorID.String
			load.ModeratorID = &moderatorID
			load.Username = row.Name.Format()
		}
		result.TopModerators = append(result.TopModerators, load)
	}

	return result, nil
}
