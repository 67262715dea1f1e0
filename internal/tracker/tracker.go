// Package tracker is the uptime analytics engine: it ingests check results
// per (owner, URL) pair, keeps the derived analytics snapshot in step with
// the append-only check ledger, and serves rolling statistics back out.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"sitewatch/internal/domain"
	"sitewatch/internal/repo"
	"sitewatch/internal/urlutil"
)

// recentCheckLimit caps the ledger slice returned with a profile view.
const recentCheckLimit = 30

type Service struct {
	profiles  repo.ProfileStore
	history   repo.HistoryStore
	analytics repo.AnalyticsStore
	log       *zap.Logger
	locks     *keyedMutex
	now       func() time.Time
}

// New wires the engine to its stores. Store handles are explicit — the
// engine keeps no ambient global state.
func New(profiles repo.ProfileStore, history repo.HistoryStore, analytics repo.AnalyticsStore, log *zap.Logger) *Service {
	return &Service{
		profiles:  profiles,
		history:   history,
		analytics: analytics,
		log:       log,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// RecordCheck ingests one probe outcome: upsert the profile, append to the
// ledger, then recompute the snapshot under the per-target lock. If the
// snapshot update fails the ledger append is NOT rolled back — history is
// the source of truth and the next successful check recomputes from it.
func (s *Service) RecordCheck(ctx context.Context, res domain.CheckResult, ownerID string) (*domain.Snapshot, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	canon, err := urlutil.Canonicalize(res.URL)
	if err != nil {
		return nil, err
	}

	var meta *domain.Metadata
	if !res.Meta.Empty() {
		meta = &res.Meta
	}
	tgt, err := s.profiles.Upsert(ctx, ownerID, canon, meta)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	rec := res.Record(tgt.ID, s.now().UTC())
	if err := s.history.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append check: %w", err)
	}

	unlock := s.locks.lock(tgt.ID)
	defer unlock()

	snap, err := s.updateSnapshot(ctx, rec)
	if err != nil {
		s.log.Warn("analytics_update_failed",
			zap.String("target_id", string(tgt.ID)),
			zap.String("url", canon),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Debug("check_recorded",
		zap.String("target_id", string(tgt.ID)),
		zap.String("url", canon),
		zap.String("status", string(rec.Status)),
		zap.Float64("uptime", snap.OverallUptime),
	)
	return snap, nil
}

// updateSnapshot folds one new ledger entry into the target's snapshot.
// Uptime and average response time are recounted against the ledger rather
// than incremented, so a stale snapshot heals on the next check; the
// downtime streak counters are the only truly incremental state, which is
// why callers must hold the per-target lock.
func (s *Service) updateSnapshot(ctx context.Context, rec *domain.CheckRecord) (*domain.Snapshot, error) {
	snap, err := s.analytics.GetSnapshot(ctx, rec.TargetID)
	if errors.Is(err, domain.ErrNotFound) {
		snap = domain.NewSnapshot(rec.TargetID)
	} else if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap.LastStatus = rec.Status

	// Full recount against the ledger rather than incrementing counters:
	// in the serial path this equals the previous total plus one, and after
	// a lost snapshot write it converges back to the truth on its own.
	online, err := s.history.CountByStatus(ctx, rec.TargetID, domain.StatusOnline)
	if err != nil {
		return nil, fmt.Errorf("recount online checks: %w", err)
	}
	offline, err := s.history.CountByStatus(ctx, rec.TargetID, domain.StatusOffline)
	if err != nil {
		return nil, fmt.Errorf("recount offline checks: %w", err)
	}
	snap.TotalChecks = online + offline
	if snap.TotalChecks > 0 {
		snap.OverallUptime = 100 * float64(online) / float64(snap.TotalChecks)
	} else {
		snap.OverallUptime = 100
	}

	if rec.ResponseTime != nil {
		avg, err := s.history.ResponseTimeAvg(ctx, rec.TargetID)
		if err != nil {
			return nil, fmt.Errorf("recompute response time: %w", err)
		}
		if avg != nil {
			snap.AvgResponseTime = int(math.Round(*avg))
		}
	}

	if rec.SSL != nil {
		ssl := *rec.SSL
		snap.SSL = &ssl // most recent observation wins, no merge
	}

	if rec.Status == domain.StatusOffline {
		snap.ConsecutiveDowntime++
	} else if snap.ConsecutiveDowntime > 0 {
		if snap.ConsecutiveDowntime > snap.LongestDowntime {
			snap.LongestDowntime = snap.ConsecutiveDowntime
		}
		snap.ConsecutiveDowntime = 0
	}

	snap.UpdatedAt = s.now().UTC()
	if err := s.analytics.PutSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}
	return snap, nil
}

// Rebuild recomputes the snapshot by replaying the full ledger. It exists
// as the recovery path for the derived state and as the independent oracle
// the aggregator is tested against.
func (s *Service) Rebuild(ctx context.Context, id domain.TargetID) (*domain.Snapshot, error) {
	recs, err := s.history.Query(ctx, repo.HistoryQuery{TargetID: id})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	snap := domain.NewSnapshot(id)
	var online int
	var rtSum float64
	var rtCount int
	for _, r := range recs {
		snap.TotalChecks++
		snap.LastStatus = r.Status
		if r.Status == domain.StatusOnline {
			online++
			if snap.ConsecutiveDowntime > 0 {
				if snap.ConsecutiveDowntime > snap.LongestDowntime {
					snap.LongestDowntime = snap.ConsecutiveDowntime
				}
				snap.ConsecutiveDowntime = 0
			}
		} else {
			snap.ConsecutiveDowntime++
		}
		if r.ResponseTime != nil {
			rtSum += *r.ResponseTime
			rtCount++
		}
		if r.SSL != nil {
			ssl := *r.SSL
			snap.SSL = &ssl
		}
	}
	if snap.TotalChecks > 0 {
		snap.OverallUptime = 100 * float64(online) / float64(snap.TotalChecks)
	}
	if rtCount > 0 {
		snap.AvgResponseTime = int(math.Round(rtSum / float64(rtCount)))
	}

	snap.UpdatedAt = s.now().UTC()
	unlock := s.locks.lock(id)
	defer unlock()
	if err := s.analytics.PutSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}
	return snap, nil
}

// ProfileView is the full read model for one target.
type ProfileView struct {
	Profile      *domain.Target        `json:"profile"`
	Analytics    *domain.Snapshot      `json:"analytics"`
	RecentChecks []*domain.CheckRecord `json:"recent_checks"`
}

// GetProfile returns the target with its snapshot and the 30 most recent
// checks, newest first. A target that exists but was never aggregated gets
// the optimistic zero-history snapshot.
func (s *Service) GetProfile(ctx context.Context, ownerID, url string) (*ProfileView, error) {
	canon, err := urlutil.Canonicalize(url)
	if err != nil {
		return nil, err
	}
	tgt, err := s.profiles.Get(ctx, ownerID, canon)
	if err != nil {
		return nil, err
	}

	snap, err := s.analytics.GetSnapshot(ctx, tgt.ID)
	if errors.Is(err, domain.ErrNotFound) {
		snap = domain.NewSnapshot(tgt.ID)
	} else if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	recent, err := s.history.Query(ctx, repo.HistoryQuery{TargetID: tgt.ID, Desc: true, Limit: recentCheckLimit})
	if err != nil {
		return nil, fmt.Errorf("load recent checks: %w", err)
	}

	return &ProfileView{Profile: tgt, Analytics: snap, RecentChecks: recent}, nil
}

// ProfileListItem pairs a target with its snapshot for list views.
// Analytics is nil for targets that have never been checked.
type ProfileListItem struct {
	Profile   *domain.Target   `json:"profile"`
	Analytics *domain.Snapshot `json:"analytics,omitempty"`
}

// ListProfiles returns the owner's active targets, most recently checked
// first.
func (s *Service) ListProfiles(ctx context.Context, ownerID string, limit, offset int) ([]ProfileListItem, error) {
	targets, err := s.profiles.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return s.attachSnapshots(ctx, targets)
}

// ListAllProfiles is the operator view: every owner's active targets.
func (s *Service) ListAllProfiles(ctx context.Context, limit, offset int) ([]ProfileListItem, error) {
	targets, err := s.profiles.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return s.attachSnapshots(ctx, targets)
}

func (s *Service) attachSnapshots(ctx context.Context, targets []*domain.Target) ([]ProfileListItem, error) {
	out := make([]ProfileListItem, 0, len(targets))
	for _, t := range targets {
		snap, err := s.analytics.GetSnapshot(ctx, t.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		out = append(out, ProfileListItem{Profile: t, Analytics: snap})
	}
	return out, nil
}

// DeleteProfile removes a target and everything derived from it. It reports
// how many ledger entries went with it.
func (s *Service) DeleteProfile(ctx context.Context, ownerID, url string) (int, error) {
	canon, err := urlutil.Canonicalize(url)
	if err != nil {
		return 0, err
	}
	n, err := s.profiles.Delete(ctx, ownerID, canon)
	if err != nil {
		return 0, err
	}
	s.log.Info("profile_deleted",
		zap.String("owner_id", ownerID),
		zap.String("url", canon),
		zap.Int("deleted_checks", n),
	)
	return n, nil
}
