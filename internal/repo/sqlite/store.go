// Package sqlite is the embedded-database store adapter, used when the
// service runs without an external Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sitewatch/internal/domain"
	"sitewatch/internal/repo"
	"sitewatch/internal/urlutil"
)

type Store struct {
	db *sql.DB
}

var _ repo.Store = (*Store)(nil)

const schema = `
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
	first_seen   TEXT NOT NULL,
	last_checked TEXT NOT NULL,
	active       INTEGER NOT NULL DEFAULT 1,
	UNIQUE(owner_id, url)
);
CREATE INDEX IF NOT EXISTS idx_targets_owner_last ON targets(owner_id, last_checked DESC);

CREATE TABLE IF NOT EXISTS checks (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id          TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	checked_at         TEXT NOT NULL,
	status             TEXT NOT NULL,
	status_code        INTEGER,
	response_time_ms   REAL,
	last_modified      TEXT,
	ssl_valid          INTEGER,
	ssl_expiry         TEXT,
	ssl_days_remaining INTEGER,
	error              TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_checks_target_checked ON checks(target_id, checked_at, id);

CREATE TABLE IF NOT EXISTS analytics (
	target_id            TEXT PRIMARY KEY REFERENCES targets(id) ON DELETE CASCADE,
	total_checks         INTEGER NOT NULL DEFAULT 0,
	overall_uptime       REAL NOT NULL DEFAULT 100,
	avg_response_time_ms INTEGER NOT NULL DEFAULT 0,
	last_status          TEXT NOT NULL DEFAULT '',
	consecutive_downtime INTEGER NOT NULL DEFAULT 0,
	longest_downtime     INTEGER NOT NULL DEFAULT 0,
	ssl_valid            INTEGER,
	ssl_expiry           TEXT,
	ssl_days_remaining   INTEGER,
	updated_at           TEXT NOT NULL
);
`

// New opens (or creates) the database file and ensures the schema.
// MaxOpenConns is 1 to serialize writes and avoid SQLITE_BUSY.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

// ---- ProfileStore ----

func (s *Store) Upsert(ctx context.Context, ownerID, url string, meta *domain.Metadata) (*domain.Target, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	cur, err := s.getTx(ctx, tx, ownerID, url)
	switch {
	case err == nil:
		if meta != nil {
			cur.Meta.Merge(*meta)
		}
		cur.LastChecked = now
		_, err = tx.ExecContext(ctx, `
UPDATE targets
   SET title = ?, description = ?, favicon = ?, language = ?, charset = ?,
       robots = ?, viewport = ?, last_checked = ?
 WHERE id = ?`,
			cur.Meta.Title, cur.Meta.Description, cur.Meta.Favicon, cur.Meta.Language,
			cur.Meta.Charset, cur.Meta.Robots, cur.Meta.Viewport, fmtTime(now), string(cur.ID))
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
		_, err = tx.ExecContext(ctx, `
INSERT INTO targets
	(id, owner_id, url, domain, title, description, favicon, language, charset,
	 robots, viewport, first_seen, last_checked, active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			string(cur.ID), ownerID, url, cur.Domain, cur.Meta.Title, cur.Meta.Description,
			cur.Meta.Favicon, cur.Meta.Language, cur.Meta.Charset, cur.Meta.Robots,
			cur.Meta.Viewport, fmtTime(now), fmtTime(now))
		if err != nil {
			return nil, fmt.Errorf("insert target: %w", err)
		}
	default:
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return cur, nil
}

const targetCols = `id, owner_id, url, domain, title, description, favicon,
	language, charset, robots, viewport, first_seen, last_checked, active`

func scanTarget(row interface{ Scan(...any) error }) (*domain.Target, error) {
	var t domain.Target
	var id, firstSeen, lastChecked string
	var active int
	err := row.Scan(&id, &t.OwnerID, &t.URL, &t.Domain, &t.Meta.Title, &t.Meta.Description,
		&t.Meta.Favicon, &t.Meta.Language, &t.Meta.Charset, &t.Meta.Robots,
		&t.Meta.Viewport, &firstSeen, &lastChecked, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan target: %w", err)
	}
	t.ID = domain.TargetID(id)
	t.FirstSeen = parseTime(firstSeen)
	t.LastChecked = parseTime(lastChecked)
	t.Active = active != 0
	return &t, nil
}

func (s *Store) getTx(ctx context.Context, tx *sql.Tx, ownerID, url string) (*domain.Target, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+targetCols+` FROM targets WHERE owner_id = ? AND url = ?`, ownerID, url)
	return scanTarget(row)
}

func (s *Store) Get(ctx context.Context, ownerID, url string) (*domain.Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+targetCols+` FROM targets WHERE owner_id = ? AND url = ?`, ownerID, url)
	return scanTarget(row)
}

func (s *Store) List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Target, error) {
	return s.listWhere(ctx,
		`SELECT `+targetCols+` FROM targets
		  WHERE owner_id = ? AND active = 1
		  ORDER BY last_checked DESC, id LIMIT ? OFFSET ?`,
		ownerID, normLimit(limit), offset)
}

func (s *Store) ListAll(ctx context.Context, limit, offset int) ([]*domain.Target, error) {
	return s.listWhere(ctx,
		`SELECT `+targetCols+` FROM targets
		  WHERE active = 1
		  ORDER BY last_checked DESC, id LIMIT ? OFFSET ?`,
		normLimit(limit), offset)
}

func normLimit(limit int) int {
	if limit <= 0 {
		return -1 // sqlite: no limit
	}
	return limit
}

func (s *Store) listWhere(ctx context.Context, query string, args ...any) ([]*domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM targets WHERE owner_id = ? AND url = ?`, ownerID, url).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup target: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM checks WHERE target_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete checks: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, `DELETE FROM analytics WHERE target_id = ?`, id); err != nil {
		return 0, fmt.Errorf("delete analytics: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("delete target: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return int(n), nil
}

// ---- HistoryStore ----

func (s *Store) Append(ctx context.Context, rec *domain.CheckRecord) error {
	if _, err := domain.ParseStatus(string(rec.Status)); err != nil {
		return err
	}
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}

	var lastMod any
	if rec.LastModified != nil {
		lastMod = fmtTime(*rec.LastModified)
	}
	var sslValid, sslExpiry, sslDays any
	if rec.SSL != nil {
		sslValid = boolInt(rec.SSL.Valid)
		sslExpiry = fmtTime(rec.SSL.Expiry)
		sslDays = rec.SSL.DaysRemaining
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO checks
	(target_id, checked_at, status, status_code, response_time_ms, last_modified,
	 ssl_valid, ssl_expiry, ssl_days_remaining, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.TargetID), fmtTime(rec.CheckedAt), string(rec.Status),
		ptrArg(rec.StatusCode), ptrArg(rec.ResponseTime), lastMod,
		sslValid, sslExpiry, sslDays, rec.Error)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ptrArg turns a typed nil pointer into an untyped nil driver argument.
func ptrArg[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *Store) Query(ctx context.Context, q repo.HistoryQuery) ([]*domain.CheckRecord, error) {
	query := `
SELECT id, target_id, checked_at, status, status_code, response_time_ms,
       last_modified, ssl_valid, ssl_expiry, ssl_days_remaining, error
  FROM checks
 WHERE target_id = ?`
	args := []any{string(q.TargetID)}
	if q.Since != nil {
		query += ` AND checked_at >= ?`
		args = append(args, fmtTime(*q.Since))
	}
	if q.Desc {
		query += ` ORDER BY checked_at DESC, id DESC`
	} else {
		query += ` ORDER BY checked_at, id`
	}
	query += ` LIMIT ?`
	args = append(args, normLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	out := []*domain.CheckRecord{}
	for rows.Next() {
		var r domain.CheckRecord
		var tid, checkedAt, status string
		var code sql.NullInt64
		var respTime sql.NullFloat64
		var lastMod, sslExpiry sql.NullString
		var sslValid, sslDays sql.NullInt64
		if err := rows.Scan(&r.ID, &tid, &checkedAt, &status, &code, &respTime,
			&lastMod, &sslValid, &sslExpiry, &sslDays, &r.Error); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		r.TargetID = domain.TargetID(tid)
		r.CheckedAt = parseTime(checkedAt)
		r.Status = domain.Status(status)
		if code.Valid {
			v := int(code.Int64)
			r.StatusCode = &v
		}
		if respTime.Valid {
			v := respTime.Float64
			r.ResponseTime = &v
		}
		if lastMod.Valid {
			v := parseTime(lastMod.String)
			r.LastModified = &v
		}
		if sslValid.Valid {
			r.SSL = &domain.SSLInfo{
				Valid:         sslValid.Int64 != 0,
				Expiry:        parseTime(sslExpiry.String),
				DaysRemaining: int(sslDays.Int64),
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context, id domain.TargetID, status domain.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM checks WHERE target_id = ? AND status = ?`,
		string(id), string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count checks: %w", err)
	}
	return n, nil
}

func (s *Store) ResponseTimeAvg(ctx context.Context, id domain.TargetID) (*float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(response_time_ms) FROM checks WHERE target_id = ? AND response_time_ms IS NOT NULL`,
		string(id)).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("avg response time: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

func (s *Store) Prune(ctx context.Context, id domain.TargetID, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checks WHERE target_id = ? AND checked_at < ?`,
		string(id), fmtTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune checks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- AnalyticsStore ----

func (s *Store) GetSnapshot(ctx context.Context, id domain.TargetID) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT total_checks, overall_uptime, avg_response_time_ms, last_status,
       consecutive_downtime, longest_downtime, ssl_valid, ssl_expiry,
       ssl_days_remaining, updated_at
  FROM analytics WHERE target_id = ?`, string(id))

	var snap domain.Snapshot
	var lastStatus, updatedAt string
	var sslValid, sslDays sql.NullInt64
	var sslExpiry sql.NullString
	err := row.Scan(&snap.TotalChecks, &snap.OverallUptime, &snap.AvgResponseTime,
		&lastStatus, &snap.ConsecutiveDowntime, &snap.LongestDowntime,
		&sslValid, &sslExpiry, &sslDays, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.TargetID = id
	snap.LastStatus = domain.Status(lastStatus)
	snap.UpdatedAt = parseTime(updatedAt)
	if sslValid.Valid {
		snap.SSL = &domain.SSLInfo{
			Valid:         sslValid.Int64 != 0,
			Expiry:        parseTime(sslExpiry.String),
			DaysRemaining: int(sslDays.Int64),
		}
	}
	return &snap, nil
}

func (s *Store) PutSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	var sslValid, sslExpiry, sslDays any
	if snap.SSL != nil {
		sslValid = boolInt(snap.SSL.Valid)
		sslExpiry = fmtTime(snap.SSL.Expiry)
		sslDays = snap.SSL.DaysRemaining
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO analytics
	(target_id, total_checks, overall_uptime, avg_response_time_ms, last_status,
	 consecutive_downtime, longest_downtime, ssl_valid, ssl_expiry,
	 ssl_days_remaining, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(target_id) DO UPDATE SET
	total_checks = excluded.total_checks,
	overall_uptime = excluded.overall_uptime,
	avg_response_time_ms = excluded.avg_response_time_ms,
	last_status = excluded.last_status,
	consecutive_downtime = excluded.consecutive_downtime,
	longest_downtime = excluded.longest_downtime,
	ssl_valid = excluded.ssl_valid,
	ssl_expiry = excluded.ssl_expiry,
	ssl_days_remaining = excluded.ssl_days_remaining,
	updated_at = excluded.updated_at`,
		string(snap.TargetID), snap.TotalChecks, snap.OverallUptime, snap.AvgResponseTime,
		string(snap.LastStatus), snap.ConsecutiveDowntime, snap.LongestDowntime,
		sslValid, sslExpiry, sslDays, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}
