// Package probe performs the HTTP reachability checks whose outcomes feed
// the tracker. The engine itself never does network I/O; everything here is
// a collaborator in front of it.
package probe

import (
	"context"
	"time"

	"sitewatch/internal/domain"
)

// Outcome is what one probe observed. Optional fields are nil when the
// probe could not observe them (transport errors carry no status code).
type Outcome struct {
	Status       domain.Status
	StatusCode   *int
	ResponseTime *float64
	LastModified *time.Time
	SSL          *domain.SSLInfo
	Reason       string
}

// Result shapes the outcome into the engine's inbound value.
func (o Outcome) Result(url string, meta domain.Metadata) domain.CheckResult {
	return domain.CheckResult{
		URL:          url,
		Status:       o.Status,
		StatusCode:   o.StatusCode,
		ResponseTime: o.ResponseTime,
		LastModified: o.LastModified,
		SSL:          o.SSL,
		Error:        o.Reason,
		Meta:         meta,
	}
}

// Checker is implemented by any probe flavor (plain HTTP, retrying, fakes
// in tests).
type Checker interface {
	Check(ctx context.Context, url string) Outcome
}
