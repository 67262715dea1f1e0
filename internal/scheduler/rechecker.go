// Package scheduler drives periodic re-checks of every known target and
// keeps the ledger trimmed to the retention window.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitewatch/internal/domain"
	"sitewatch/internal/meta"
	"sitewatch/internal/probe"
	"sitewatch/internal/repo"
	"sitewatch/internal/tracker"
)

// HTMLFetcher retrieves page bodies for metadata refresh during a pass.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

type Rechecker struct {
	Logger        *zap.Logger
	Tracker       *tracker.Service
	Profiles      repo.ProfileStore
	History       repo.HistoryStore
	Checker       probe.Checker
	Fetcher       HTMLFetcher // optional
	Interval      time.Duration
	Timeout       time.Duration
	Concurrency   int
	RetentionDays int
}

func NewRechecker(
	logger *zap.Logger,
	svc *tracker.Service,
	profiles repo.ProfileStore,
	history repo.HistoryStore,
	checker probe.Checker,
	interval time.Duration,
	timeout time.Duration,
	concurrency int,
	retentionDays int,
) *Rechecker {
	if concurrency < 1 {
		concurrency = 1
	}
	if interval < 0 {
		interval = 0
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Rechecker{
		Logger:        logger,
		Tracker:       svc,
		Profiles:      profiles,
		History:       history,
		Checker:       checker,
		Interval:      interval,
		Timeout:       timeout,
		Concurrency:   concurrency,
		RetentionDays: retentionDays,
	}
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled.
func (r *Rechecker) Run(ctx context.Context) {
	if r.Interval == 0 {
		// disabled
		r.Logger.Info("rechecker_disabled")
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	// immediate pass
	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("rechecker_stopped")
			return
		case <-t.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Rechecker) runOnce(ctx context.Context) {
	targets, err := r.Profiles.ListAll(ctx, 0, 0)
	if err != nil {
		r.Logger.Warn("rechecker_list_error", zap.Error(err))
		return
	}
	if len(targets) == 0 {
		return
	}

	sem := make(chan struct{}, r.Concurrency)
	var wg sync.WaitGroup

	for _, tgt := range targets {
		t := tgt
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()
			r.checkOne(ctx, t)
		}()
	}
	wg.Wait()

	r.pruneOld(ctx, targets)
}

func (r *Rechecker) checkOne(ctx context.Context, t *domain.Target) {
	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	out := r.Checker.Check(cctx, t.URL)

	var md domain.Metadata
	if out.Status == domain.StatusOnline && r.Fetcher != nil {
		if html, err := r.Fetcher.FetchHTML(cctx, t.URL); err == nil {
			md = meta.Extract(html, t.URL)
		}
	}

	snap, err := r.Tracker.RecordCheck(ctx, out.Result(t.URL, md), t.OwnerID)
	if err != nil {
		r.Logger.Warn("rechecker_record_error",
			zap.String("target_id", string(t.ID)),
			zap.String("url", t.URL),
			zap.Error(err),
		)
		return
	}
	r.Logger.Debug("rechecker_checked",
		zap.String("target_id", string(t.ID)),
		zap.String("url", t.URL),
		zap.String("status", string(out.Status)),
		zap.Float64("uptime", snap.OverallUptime),
	)
}

// pruneOld trims each target's ledger to the retention window. Analytics
// snapshots are untouched: overall counters keep their full-history meaning.
func (r *Rechecker) pruneOld(ctx context.Context, targets []*domain.Target) {
	if r.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -r.RetentionDays)
	for _, t := range targets {
		n, err := r.History.Prune(ctx, t.ID, cutoff)
		if err != nil {
			r.Logger.Warn("rechecker_prune_error",
				zap.String("target_id", string(t.ID)),
				zap.Error(err),
			)
			continue
		}
		if n > 0 {
			r.Logger.Info("history_pruned",
				zap.String("target_id", string(t.ID)),
				zap.Int("removed", n),
			)
		}
	}
}
