package domain

import "time"

type TargetID string

// Status is the outcome of a single probe: a site is either reachable or not.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOnline, StatusOffline:
		return Status(s), nil
	}
	return "", invalidf("status must be %q or %q, got %q", StatusOnline, StatusOffline, s)
}

// SSLInfo is a TLS certificate summary supplied by an external checker.
type SSLInfo struct {
	Valid         bool      `json:"valid"`
	Expiry        time.Time `json:"expiry"`
	DaysRemaining int       `json:"days_remaining"`
}

// Metadata holds descriptive fields scraped from a site's HTML.
// Empty fields mean "not observed" and never overwrite a stored value.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Favicon     string `json:"favicon,omitempty"`
	Language    string `json:"language,omitempty"`
	Charset     string `json:"charset,omitempty"`
	Robots      string `json:"robots,omitempty"`
	Viewport    string `json:"viewport,omitempty"`
}

// Empty reports whether no field is set.
func (m Metadata) Empty() bool {
	return m == Metadata{}
}

// Merge copies every non-empty field of src over m.
func (m *Metadata) Merge(src Metadata) {
	if src.Title != "" {
		m.Title = src.Title
	}
	if src.Description != "" {
		m.Description = src.Description
	}
	if src.Favicon != "" {
		m.Favicon = src.Favicon
	}
	if src.Language != "" {
		m.Language = src.Language
	}
	if src.Charset != "" {
		m.Charset = src.Charset
	}
	if src.Robots != "" {
		m.Robots = src.Robots
	}
	if src.Viewport != "" {
		m.Viewport = src.Viewport
	}
}

// Target is one monitored (owner, URL) pair.
type Target struct {
	ID          TargetID  `json:"id"`
	OwnerID     string    `json:"owner_id"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Meta        Metadata  `json:"meta"`
	FirstSeen   time.Time `json:"first_seen"`
	LastChecked time.Time `json:"last_checked"`
	Active      bool      `json:"active"`
}

// CheckRecord is one immutable ledger entry for a Target. Records are
// totally ordered by (CheckedAt, ID); ID breaks timestamp ties in
// insertion order.
type CheckRecord struct {
	ID           int64      `json:"id"`
	TargetID     TargetID   `json:"target_id"`
	CheckedAt    time.Time  `json:"checked_at"`
	Status       Status     `json:"status"`
	StatusCode   *int       `json:"status_code,omitempty"`
	ResponseTime *float64   `json:"response_time_ms,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	SSL          *SSLInfo   `json:"ssl,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Snapshot is the derived analytics row for a Target. It is a cache over
// the check ledger and must always be recoverable by replaying it.
type Snapshot struct {
	TargetID            TargetID  `json:"target_id"`
	TotalChecks         int       `json:"total_checks"`
	OverallUptime       float64   `json:"overall_uptime"`
	AvgResponseTime     int       `json:"avg_response_time_ms"`
	LastStatus          Status    `json:"last_status,omitempty"`
	ConsecutiveDowntime int       `json:"consecutive_downtime"`
	LongestDowntime     int       `json:"longest_downtime"`
	SSL                 *SSLInfo  `json:"ssl,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewSnapshot returns the optimistic zero-history snapshot: a target that
// has never been checked reports 100% uptime, distinguished from real data
// only by TotalChecks == 0.
func NewSnapshot(id TargetID) *Snapshot {
	return &Snapshot{TargetID: id, OverallUptime: 100}
}
