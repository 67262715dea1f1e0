package tracker

import (
	"context"
	"fmt"
	"time"

	"sitewatch/internal/domain"
	"sitewatch/internal/repo"
	"sitewatch/internal/urlutil"
)

// defaultWindowDays is the rolling stats window when callers pass none.
const defaultWindowDays = 30

// UptimeStats is the window-scoped rollup served to charts: overall uptime
// percentage over the window plus one uptime fraction per day.
type UptimeStats struct {
	Percentage       float64   `json:"percentage"`
	Trend            []float64 `json:"trend"`
	TotalChecks      int       `json:"total_checks"`
	SuccessfulChecks int       `json:"successful_checks"`
}

// UptimeStats computes rolling statistics over the last windowDays days.
// The window starts at the earliest trend bucket (local midnight, windowDays-1
// days back), so Percentage and TotalChecks cover exactly the records the
// trend buckets do. An empty window returns domain.ErrNoData — "never
// monitored" is not the same as an all-zero series.
func (s *Service) UptimeStats(ctx context.Context, ownerID, url string, windowDays int) (*UptimeStats, error) {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	canon, err := urlutil.Canonicalize(url)
	if err != nil {
		return nil, err
	}
	tgt, err := s.profiles.Get(ctx, ownerID, canon)
	if err != nil {
		return nil, err
	}

	now := s.now()
	since := startOfWindow(now, windowDays)
	recs, err := s.history.Query(ctx, repo.HistoryQuery{TargetID: tgt.ID, Since: &since})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(recs) == 0 {
		return nil, domain.ErrNoData
	}

	successful := 0
	for _, r := range recs {
		if r.Status == domain.StatusOnline {
			successful++
		}
	}

	return &UptimeStats{
		Percentage:       100 * float64(successful) / float64(len(recs)),
		Trend:            dailyTrend(recs, now, windowDays),
		TotalChecks:      len(recs),
		SuccessfulChecks: successful,
	}, nil
}

// dailyTrend buckets records into windowDays contiguous 24-hour slots
// anchored at local midnight of "today", walking backward. The result is
// oldest-to-newest, one fraction in [0,1] per day. A day with no checks is
// reported as 0, never carried forward from the previous day.
func dailyTrend(recs []*domain.CheckRecord, now time.Time, windowDays int) []float64 {
	midnight := startOfDay(now)

	trend := make([]float64, 0, windowDays)
	for i := windowDays - 1; i >= 0; i-- {
		start := midnight.AddDate(0, 0, -i)
		end := start.Add(24 * time.Hour)

		var total, online int
		for _, r := range recs {
			if r.CheckedAt.Before(start) || !r.CheckedAt.Before(end) {
				continue
			}
			total++
			if r.Status == domain.StatusOnline {
				online++
			}
		}
		if total == 0 {
			trend = append(trend, 0)
		} else {
			trend = append(trend, float64(online)/float64(total))
		}
	}
	return trend
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWindow is the start of the earliest trend bucket.
func startOfWindow(now time.Time, windowDays int) time.Time {
	return startOfDay(now).AddDate(0, 0, -(windowDays - 1))
}
