package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"sitewatch/internal/domain"
	"sitewatch/internal/repo"
)

func TestUpsert_CreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.Upsert(ctx, "alice", "https://example.com", &domain.Metadata{Title: "Example"})
	if err != nil {
		t.Fatalf("Upsert create: %v", err)
	}
	if first.ID == "" || first.Domain != "example.com" || !first.Active {
		t.Fatalf("unexpected target: %+v", first)
	}

	// second upsert must hit the same row, keep the title and not clear it
	second, err := s.Upsert(ctx, "alice", "https://example.com", &domain.Metadata{Language: "en"})
	if err != nil {
		t.Fatalf("Upsert merge: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert created a duplicate: %s vs %s", second.ID, first.ID)
	}
	if second.Meta.Title != "Example" || second.Meta.Language != "en" {
		t.Fatalf("metadata merge wrong: %+v", second.Meta)
	}
	if second.LastChecked.Before(first.LastChecked) {
		t.Fatalf("lastChecked not bumped")
	}
}

func TestUpsert_OwnerScoping(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, _ := s.Upsert(ctx, "alice", "https://example.com", nil)
	b, _ := s.Upsert(ctx, "bob", "https://example.com", nil)
	if a.ID == b.ID {
		t.Fatalf("same URL for different owners must be distinct targets")
	}
	if _, err := s.Get(ctx, "carol", "https://example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown owner, got %v", err)
	}
}

func TestHistory_QueryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	tgt, _ := s.Upsert(ctx, "alice", "https://example.com", nil)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := &domain.CheckRecord{TargetID: tgt.ID, Status: domain.StatusOnline, CheckedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	asc, err := s.Query(ctx, repo.HistoryQuery{TargetID: tgt.ID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(asc) != 5 || !asc[0].CheckedAt.Before(asc[4].CheckedAt) {
		t.Fatalf("ascending order broken: %d records", len(asc))
	}

	desc, _ := s.Query(ctx, repo.HistoryQuery{TargetID: tgt.ID, Desc: true, Limit: 2})
	if len(desc) != 2 || !desc[0].CheckedAt.After(desc[1].CheckedAt) {
		t.Fatalf("descending limited query broken")
	}

	since := base.Add(3 * time.Minute)
	tail, _ := s.Query(ctx, repo.HistoryQuery{TargetID: tgt.ID, Since: &since})
	if len(tail) != 2 {
		t.Fatalf("since filter: want 2, got %d", len(tail))
	}
}

func TestHistory_RejectsBadStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := &domain.CheckRecord{TargetID: "T1", Status: "flaky"}
	if err := s.Append(ctx, rec); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestCountAndAvg(t *testing.T) {
	ctx := context.Background()
	s := New()
	tgt, _ := s.Upsert(ctx, "alice", "https://example.com", nil)

	rt := func(v float64) *float64 { return &v }
	recs := []*domain.CheckRecord{
		{TargetID: tgt.ID, Status: domain.StatusOnline, ResponseTime: rt(100)},
		{TargetID: tgt.ID, Status: domain.StatusOffline},
		{TargetID: tgt.ID, Status: domain.StatusOnline, ResponseTime: rt(200)},
	}
	for _, r := range recs {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	online, _ := s.CountByStatus(ctx, tgt.ID, domain.StatusOnline)
	if online != 2 {
		t.Fatalf("online count=%d", online)
	}
	avg, _ := s.ResponseTimeAvg(ctx, tgt.ID)
	if avg == nil || *avg != 150 {
		t.Fatalf("avg=%v, want 150 (offline record has no response time)", avg)
	}
}

func TestDelete_CascadesAndReportsCount(t *testing.T) {
	ctx := context.Background()
	s := New()
	tgt, _ := s.Upsert(ctx, "alice", "https://example.com", nil)

	for i := 0; i < 3; i++ {
		_ = s.Append(ctx, &domain.CheckRecord{TargetID: tgt.ID, Status: domain.StatusOnline})
	}
	_ = s.PutSnapshot(ctx, domain.NewSnapshot(tgt.ID))

	n, err := s.Delete(ctx, "alice", "https://example.com")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted checks=%d, want 3", n)
	}
	if _, err := s.Get(ctx, "alice", "https://example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("target should be gone, got %v", err)
	}
	if _, err := s.GetSnapshot(ctx, tgt.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("snapshot should be gone, got %v", err)
	}
	if _, err := s.Delete(ctx, "alice", "https://example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete should be NotFound, got %v", err)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := New()
	tgt, _ := s.Upsert(ctx, "alice", "https://example.com", nil)

	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	_ = s.Append(ctx, &domain.CheckRecord{TargetID: tgt.ID, Status: domain.StatusOnline, CheckedAt: old})
	_ = s.Append(ctx, &domain.CheckRecord{TargetID: tgt.ID, Status: domain.StatusOnline, CheckedAt: time.Now().UTC()})

	n, err := s.Prune(ctx, tgt.ID, time.Now().UTC().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned=%d, want 1", n)
	}
	rest, _ := s.Query(ctx, repo.HistoryQuery{TargetID: tgt.ID})
	if len(rest) != 1 {
		t.Fatalf("left=%d, want 1", len(rest))
	}
}
