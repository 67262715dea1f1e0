package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a target (or its analytics row) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned before any store mutation for malformed input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoData is returned by read paths that distinguish "never checked"
	// from a real zero (uptime stats over an empty ledger).
	ErrNoData = errors.New("no data available")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
