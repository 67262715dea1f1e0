package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"sitewatch/internal/domain"
	"sitewatch/internal/repo"
	"sitewatch/internal/urlutil"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS targets (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	url          TEXT NOT NULL,
	domain       TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	favicon      TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT '',
	charset      TEXT NOT NULL DEFAULT '',
	robots       TEXT NOT NULL DEFAULT '',
	viewport     TEXT NOT NULL DEFAULT '',
	first_seen   TIMESTAMPTZ NOT NULL,
	last_checked TIMESTAMPTZ NOT NULL,
	active       BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE(owner_id, url)
);
CREATE INDEX IF NOT EXISTS idx_targets_owner_last ON targets(owner_id, last_checked DESC);

CREATE TABLE IF NOT EXISTS checks (
	id                 BIGSERIAL PRIMARY KEY,
	target_id          TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	checked_at         TIMESTAMPTZ NOT NULL,
	status             TEXT NOT NULL,
	status_code        INTEGER,
	response_time_ms   DOUBLE PRECISION,
	last_modified      TIMESTAMPTZ,
	ssl_valid          BOOLEAN,
	ssl_expiry         TIMESTAMPTZ,
	ssl_days_remaining INTEGER,
	error              TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_checks_target_checked ON checks(target_id, checked_at, id);

CREATE TABLE IF NOT EXISTS analytics (
	target_id            TEXT PRIMARY KEY REFERENCES targets(id) ON DELETE CASCADE,
	total_checks         INTEGER NOT NULL DEFAULT 0,
	overall_uptime       DOUBLE PRECISION NOT NULL DEFAULT 100,
	avg_response_time_ms INTEGER NOT NULL DEFAULT 0,
	last_status          TEXT NOT NULL DEFAULT '',
	consecutive_downtime INTEGER NOT NULL DEFAULT 0,
	longest_downtime     INTEGER NOT NULL DEFAULT 0,
	ssl_valid            BOOLEAN,
	ssl_expiry           TIMESTAMPTZ,
	ssl_days_remaining   INTEGER,
	updated_at           TIMESTAMPTZ NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ---- ProfileStore ----

const targetCols = `id, owner_id, url, domain, title, description, favicon,
	language, charset, robots, viewport, first_seen, last_checked, active`

func scanTarget(row pgx.Row) (*domain.Target, error) {
	var t domain.Target
	var id string
	err := row.Scan(&id, &t.OwnerID, &t.URL, &t.Domain, &t.Meta.Title, &t.Meta.Description,
		&t.Meta.Favicon, &t.Meta.Language, &t.Meta.Charset, &t.Meta.Robots,
		&t.Meta.Viewport, &t.FirstSeen, &t.LastChecked, &t.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan target: %w", err)
	}
	t.ID = domain.TargetID(id)
	return &t, nil
}

func (s *Store) Upsert(ctx context.Context, ownerID, url string, meta *domain.Metadata) (*domain.Target, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	cur, err := scanTarget(tx.QueryRow(ctx,
		`SELECT `+targetCols+` FROM targets WHERE owner_id = $1 AND url = $2`, ownerID, url))
	switch {
	case err == nil:
		if meta != nil {
			cur.Meta.Merge(*meta)
		}
		cur.LastChecked = now
		_, err = tx.Exec(ctx, `
UPDATE targets
   SET title = $1, description = $2, favicon = $3, language = $4, charset = $5,
       robots = $6, viewport = $7, last_checked = $8
 WHERE id = $9`,
			cur.Meta.Title, cur.Meta.Description, cur.Meta.Favicon, cur.Meta.Language,
			cur.Meta.Charset, cur.Meta.Robots, cur.Meta.Viewport, now, string(cur.ID))
		if err != nil {
			return nil, fmt.Errorf("update target: %w", err)
		}
	case errors.Is(err, domain.ErrNotFound):
		cur = &domain.Target{
			ID:          domain.TargetID(uuid.NewString()),
			OwnerID:     ownerID,
			URL:         url,
			Domain:      urlutil.Host(url),
			FirstSeen:   now,
			LastChecked: now,
			Active:      true,
		}
		if meta != nil {
			cur.Meta.Merge(*meta)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO targets
	(id, owner_id, url, domain, title, description, favicon, language, charset,
	 robots, viewport, first_seen, last_checked, active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,TRUE)`,
			string(cur.ID), ownerID, url, cur.Domain, cur.Meta.Title, cur.Meta.Description,
			cur.Meta.Favicon, cur.Meta.Language, cur.Meta.Charset, cur.Meta.Robots,
			cur.Meta.Viewport, now, now)
		if err != nil {
			return nil, fmt.Errorf("insert target: %w", err)
		}
	default:
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return cur, nil
}

func (s *Store) Get(ctx context.Context, ownerID, url string) (*domain.Target, error) {
	return scanTarget(s.pool.QueryRow(ctx,
		`SELECT `+targetCols+` FROM targets WHERE owner_id = $1 AND url = $2`, ownerID, url))
}

func (s *Store) List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Target, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listRows(ctx,
		`SELECT `+targetCols+` FROM targets
		  WHERE owner_id = $1 AND active
		  ORDER BY last_checked DESC, id LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
}

func (s *Store) ListAll(ctx context.Context, limit, offset int) ([]*domain.Target, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listRows(ctx,
		`SELECT `+targetCols+` FROM targets
		  WHERE active
		  ORDER BY last_checked DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
}

func (s *Store) listRows(ctx context.Context, query string, args ...any) ([]*domain.Target, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	out := []*domain.Target{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, ownerID, url string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx,
		`SELECT id FROM targets WHERE owner_id = $1 AND url = $2`, ownerID, url).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup target: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM checks WHERE target_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete checks: %w", err)
	}
	// analytics row rides on the FK cascade
	if _, err := tx.Exec(ctx, `DELETE FROM targets WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete target: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- HistoryStore ----

func (s *Store) Append(ctx context.Context, rec *domain.CheckRecord) error {
	if _, err := domain.ParseStatus(string(rec.Status)); err != nil {
		return err
	}
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}
	var sslValid *bool
	var sslExpiry *time.Time
	var sslDays *int
	if rec.SSL != nil {
		sslValid = &rec.SSL.Valid
		sslExpiry = &rec.SSL.Expiry
		sslDays = &rec.SSL.DaysRemaining
	}
	err := s.pool.QueryRow(ctx, `
INSERT INTO checks
	(target_id, checked_at, status, status_code, response_time_ms, last_modified,
	 ssl_valid, ssl_expiry, ssl_days_remaining, error)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`,
		string(rec.TargetID), rec.CheckedAt, string(rec.Status), rec.StatusCode,
		rec.ResponseTime, rec.LastModified, sslValid, sslExpiry, sslDays, rec.Error,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q repo.HistoryQuery) ([]*domain.CheckRecord, error) {
	query := `
SELECT id, target_id, checked_at, status, status_code, response_time_ms,
       last_modified, ssl_valid, ssl_expiry, ssl_days_remaining, error
  FROM checks
 WHERE target_id = $1`
	args := []any{string(q.TargetID)}
	if q.Since != nil {
		query += fmt.Sprintf(` AND checked_at >= $%d`, len(args)+1)
		args = append(args, *q.Since)
	}
	if q.Desc {
		query += ` ORDER BY checked_at DESC, id DESC`
	} else {
		query += ` ORDER BY checked_at, id`
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	out := []*domain.CheckRecord{}
	for rows.Next() {
		var r domain.CheckRecord
		var tid, status string
		var sslValid *bool
		var sslExpiry *time.Time
		var sslDays *int
		if err := rows.Scan(&r.ID, &tid, &r.CheckedAt, &status, &r.StatusCode,
			&r.ResponseTime, &r.LastModified, &sslValid, &sslExpiry, &sslDays, &r.Error); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		r.TargetID = domain.TargetID(tid)
		r.Status = domain.Status(status)
		if sslValid != nil {
			info := domain.SSLInfo{Valid: *sslValid}
			if sslExpiry != nil {
				info.Expiry = *sslExpiry
			}
			if sslDays != nil {
				info.DaysRemaining = *sslDays
			}
			r.SSL = &info
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context, id domain.TargetID, status domain.Status) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM checks WHERE target_id = $1 AND status = $2`,
		string(id), string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count checks: %w", err)
	}
	return n, nil
}

func (s *Store) ResponseTimeAvg(ctx context.Context, id domain.TargetID) (*float64, error) {
	var avg *float64
	err := s.pool.QueryRow(ctx,
		`SELECT AVG(response_time_ms) FROM checks WHERE target_id = $1 AND response_time_ms IS NOT NULL`,
		string(id)).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("avg response time: %w", err)
	}
	return avg, nil
}

func (s *Store) Prune(ctx context.Context, id domain.TargetID, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM checks WHERE target_id = $1 AND checked_at < $2`, string(id), before)
	if err != nil {
		return 0, fmt.Errorf("prune checks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- AnalyticsStore ----

func (s *Store) GetSnapshot(ctx context.Context, id domain.TargetID) (*domain.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
SELECT total_checks, overall_uptime, avg_response_time_ms, last_status,
       consecutive_downtime, longest_downtime, ssl_valid, ssl_expiry,
       ssl_days_remaining, updated_at
  FROM analytics WHERE target_id = $1`, string(id))

	var snap domain.Snapshot
	var lastStatus string
	var sslValid *bool
	var sslExpiry *time.Time
	var sslDays *int
	err := row.Scan(&snap.TotalChecks, &snap.OverallUptime, &snap.AvgResponseTime,
		&lastStatus, &snap.ConsecutiveDowntime, &snap.LongestDowntime,
		&sslValid, &sslExpiry, &sslDays, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.TargetID = id
	snap.LastStatus = domain.Status(lastStatus)
	if sslValid != nil {
		info := domain.SSLInfo{Valid: *sslValid}
		if sslExpiry != nil {
			info.Expiry = *sslExpiry
		}
		if sslDays != nil {
			info.DaysRemaining = *sslDays
		}
		snap.SSL = &info
	}
	return &snap, nil
}

func (s *Store) PutSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	var sslValid *bool
	var sslExpiry *time.Time
	var sslDays *int
	if snap.SSL != nil {
		sslValid = &snap.SSL.Valid
		sslExpiry = &snap.SSL.Expiry
		sslDays = &snap.SSL.DaysRemaining
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO analytics
	(target_id, total_checks, overall_uptime, avg_response_time_ms, last_status,
	 consecutive_downtime, longest_downtime, ssl_valid, ssl_expiry,
	 ssl_days_remaining, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (target_id) DO UPDATE SET
	total_checks = EXCLUDED.total_checks,
	overall_uptime = EXCLUDED.overall_uptime,
	avg_response_time_ms = EXCLUDED.avg_response_time_ms,
	last_status = EXCLUDED.last_status,
	consecutive_downtime = EXCLUDED.consecutive_downtime,
	longest_downtime = EXCLUDED.longest_downtime,
	ssl_valid = EXCLUDED.ssl_valid,
	ssl_expiry = EXCLUDED.ssl_expiry,
	ssl_days_remaining = EXCLUDED.ssl_days_remaining,
	updated_at = EXCLUDED.updated_at`,
		string(snap.TargetID), snap.TotalChecks, snap.OverallUptime, snap.AvgResponseTime,
		string(snap.LastStatus), snap.ConsecutiveDowntime, snap.LongestDowntime,
		sslValid, sslExpiry, sslDays, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}
