package domain

import "time"

// CheckResult is the inbound value an external prober hands to the engine.
// It is keyed by URL rather than TargetID because the profile may not exist
// yet — the engine upserts it on first sight.
type CheckResult struct {
	URL          string     `json:"url"`
	Status       Status     `json:"status"`
	StatusCode   *int       `json:"status_code,omitempty"`
	ResponseTime *float64   `json:"response_time_ms,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	SSL          *SSLInfo   `json:"ssl,omitempty"`
	Error        string     `json:"error,omitempty"`
	Meta         Metadata   `json:"meta,omitempty"`
}

// Validate rejects shapes that must never reach a store.
func (r *CheckResult) Validate() error {
	if r.URL == "" {
		return invalidf("url is required")
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if r.StatusCode != nil && *r.StatusCode < 0 {
		return invalidf("status_code must be non-negative, got %d", *r.StatusCode)
	}
	if r.ResponseTime != nil && *r.ResponseTime < 0 {
		return invalidf("response_time_ms must be non-negative, got %v", *r.ResponseTime)
	}
	return nil
}

// Record converts the result into a ledger entry for the given target.
func (r *CheckResult) Record(id TargetID, at time.Time) *CheckRecord {
	return &CheckRecord{
		TargetID:     id,
		CheckedAt:    at,
		Status:       r.Status,
		StatusCode:   r.StatusCode,
		ResponseTime: r.ResponseTime,
		LastModified: r.LastModified,
		SSL:          r.SSL,
		Error:        r.Error,
	}
}
