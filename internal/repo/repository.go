package repo

import (
	"context"
	"time"

	"sitewatch/internal/domain"
)

// Ports (interfaces) — swap in any DB adapter later.

// HistoryQuery selects check records for one target. Records come back in
// ascending (CheckedAt, ID) order unless Desc is set; Limit <= 0 means no
// limit.
type HistoryQuery struct {
	TargetID domain.TargetID
	Since    *time.Time
	Limit    int
	Desc     bool
}

// ProfileStore owns target identity and metadata. Upsert is the only write
// path for profiles: lookup-or-create keyed on (owner, url), merging
// non-empty metadata and bumping LastChecked.
type ProfileStore interface {
	Upsert(ctx context.Context, ownerID, url string, meta *domain.Metadata) (*domain.Target, error)
	Get(ctx context.Context, ownerID, url string) (*domain.Target, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Target, error)
	ListAll(ctx context.Context, limit, offset int) ([]*domain.Target, error)
	// Delete removes the target and cascades to its history and analytics.
	// It reports how many check records were removed.
	Delete(ctx context.Context, ownerID, url string) (int, error)
}

// HistoryStore is the append-only per-target check ledger.
type HistoryStore interface {
	Append(ctx context.Context, rec *domain.CheckRecord) error
	Query(ctx context.Context, q HistoryQuery) ([]*domain.CheckRecord, error)
	CountByStatus(ctx context.Context, id domain.TargetID, status domain.Status) (int, error)
	// ResponseTimeAvg returns the mean response time over records that have
	// one, or nil when none do.
	ResponseTimeAvg(ctx context.Context, id domain.TargetID) (*float64, error)
	// Prune drops records older than before and reports how many went away.
	Prune(ctx context.Context, id domain.TargetID, before time.Time) (int, error)
}

// AnalyticsStore persists the derived snapshot per target.
type AnalyticsStore interface {
	GetSnapshot(ctx context.Context, id domain.TargetID) (*domain.Snapshot, error)
	PutSnapshot(ctx context.Context, s *domain.Snapshot) error
}

// Store bundles the three ports; every adapter in this repo implements all
// of them on one value.
type Store interface {
	ProfileStore
	HistoryStore
	AnalyticsStore
}
