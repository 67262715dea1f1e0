package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"sitewatch/internal/domain"
	"sitewatch/internal/repo/memory"
)

func newTrendService(t *testing.T, now time.Time) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := New(store, store, store, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, store
}

func appendAt(t *testing.T, store *memory.Store, id domain.TargetID, at time.Time, status domain.Status) {
	t.Helper()
	rec := &domain.CheckRecord{TargetID: id, Status: status, CheckedAt: at}
	if err := store.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestUptimeStats_BucketCountAndRange(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	svc, store := newTrendService(t, now)
	tgt, _ := store.Upsert(ctx, "alice", "https://example.com", nil)

	// sparse history: a handful of checks scattered across the window
	appendAt(t, store, tgt.ID, now.Add(-2*time.Hour), domain.StatusOnline)
	appendAt(t, store, tgt.ID, now.AddDate(0, 0, -5), domain.StatusOffline)
	appendAt(t, store, tgt.ID, now.AddDate(0, 0, -20), domain.StatusOnline)

	stats, err := svc.UptimeStats(ctx, "alice", "https://example.com", 30)
	if err != nil {
		t.Fatalf("UptimeStats: %v", err)
	}
	if len(stats.Trend) != 30 {
		t.Fatalf("trend length=%d, want 30", len(stats.Trend))
	}
	for i, v := range stats.Trend {
		if v < 0 || v > 1 {
			t.Fatalf("trend[%d]=%v out of [0,1]", i, v)
		}
	}
}

func TestUptimeStats_BucketValues(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	svc, store := newTrendService(t, now)
	tgt, _ := store.Upsert(ctx, "alice", "https://example.com", nil)

	day := func(daysAgo int, hour int) time.Time {
		return time.Date(2026, 8, 28-daysAgo, hour, 0, 0, 0, time.UTC)
	}

	// today: 2 online, 1 offline -> 2/3
	appendAt(t, store, tgt.ID, day(0, 1), domain.StatusOnline)
	appendAt(t, store, tgt.ID, day(0, 2), domain.StatusOffline)
	appendAt(t, store, tgt.ID, day(0, 3), domain.StatusOnline)
	// yesterday: all offline -> 0
	appendAt(t, store, tgt.ID, day(1, 12), domain.StatusOffline)
	// two days ago: all online -> 1
	appendAt(t, store, tgt.ID, day(2, 8), domain.StatusOnline)
	appendAt(t, store, tgt.ID, day(2, 9), domain.StatusOnline)
	// three days ago: no checks -> explicit 0, no carry-forward from day 2

	stats, err := svc.UptimeStats(ctx, "alice", "https://example.com", 30)
	if err != nil {
		t.Fatalf("UptimeStats: %v", err)
	}
	tr := stats.Trend
	if got := tr[29]; got < 0.66 || got > 0.67 {
		t.Fatalf("today bucket=%v, want 2/3", got)
	}
	if tr[28] != 0 {
		t.Fatalf("yesterday bucket=%v, want 0 (all offline)", tr[28])
	}
	if tr[27] != 1 {
		t.Fatalf("day-2 bucket=%v, want 1", tr[27])
	}
	if tr[26] != 0 {
		t.Fatalf("empty day-3 bucket=%v, want explicit 0", tr[26])
	}

	if stats.TotalChecks != 6 || stats.SuccessfulChecks != 4 {
		t.Fatalf("counts wrong: %+v", stats)
	}
	want := 100 * 4.0 / 6.0
	if stats.Percentage != want {
		t.Fatalf("percentage=%v, want %v", stats.Percentage, want)
	}
}

func TestUptimeStats_WindowScoped(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	svc, store := newTrendService(t, now)
	tgt, _ := store.Upsert(ctx, "alice", "https://example.com", nil)

	// a pile of offline checks well outside the 7-day window
	for i := 0; i < 10; i++ {
		appendAt(t, store, tgt.ID, now.AddDate(0, 0, -15), domain.StatusOffline)
	}
	appendAt(t, store, tgt.ID, now.Add(-time.Hour), domain.StatusOnline)

	stats, err := svc.UptimeStats(ctx, "alice", "https://example.com", 7)
	if err != nil {
		t.Fatalf("UptimeStats: %v", err)
	}
	if stats.TotalChecks != 1 || stats.Percentage != 100 {
		t.Fatalf("old records leaked into window: %+v", stats)
	}
	if len(stats.Trend) != 7 {
		t.Fatalf("trend length=%d, want 7", len(stats.Trend))
	}
}

func TestUptimeStats_WindowAlignedToEarliestBucket(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	svc, store := newTrendService(t, now)
	tgt, _ := store.Upsert(ctx, "alice", "https://example.com", nil)

	// the earliest of 7 buckets starts at midnight Aug 22; a check in the
	// hours before that must not count toward Percentage either, or the
	// trend buckets and the counts would disagree about the window
	appendAt(t, store, tgt.ID, time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC), domain.StatusOffline)
	appendAt(t, store, tgt.ID, time.Date(2026, 8, 22, 1, 0, 0, 0, time.UTC), domain.StatusOnline)
	appendAt(t, store, tgt.ID, now.Add(-time.Hour), domain.StatusOnline)

	stats, err := svc.UptimeStats(ctx, "alice", "https://example.com", 7)
	if err != nil {
		t.Fatalf("UptimeStats: %v", err)
	}
	if stats.TotalChecks != 2 || stats.SuccessfulChecks != 2 {
		t.Fatalf("pre-bucket record leaked into counts: %+v", stats)
	}
	if stats.Percentage != 100 {
		t.Fatalf("percentage=%v, want 100", stats.Percentage)
	}
	if stats.Trend[0] != 1 {
		t.Fatalf("earliest bucket=%v, want 1 (only the Aug 22 online check)", stats.Trend[0])
	}
}

func TestUptimeStats_DefaultWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	svc, store := newTrendService(t, now)
	tgt, _ := store.Upsert(ctx, "alice", "https://example.com", nil)
	appendAt(t, store, tgt.ID, now.Add(-time.Hour), domain.StatusOnline)

	stats, err := svc.UptimeStats(ctx, "alice", "https://example.com", 0)
	if err != nil {
		t.Fatalf("UptimeStats: %v", err)
	}
	if len(stats.Trend) != 30 {
		t.Fatalf("default window trend length=%d, want 30", len(stats.Trend))
	}
}

func TestUptimeStats_UnknownProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTrendService(t, time.Now())
	if _, err := svc.UptimeStats(ctx, "alice", "https://nowhere.example.com", 30); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
