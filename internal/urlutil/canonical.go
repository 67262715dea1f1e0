package urlutil

import (
	"fmt"
	"net/url"
	"strings"

	"sitewatch/internal/domain"
)

// Canonicalize parses a raw URL and returns its canonical form:
// scheme and host lowercased, default ports stripped, fragment removed,
// trailing slash trimmed (a bare root path becomes empty, so
// "https://example.com/" and "https://example.com" key the same target).
// Only absolute http/https URLs are accepted.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %v", domain.ErrInvalidInput, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: url must be an absolute http or https url", domain.ErrInvalidInput)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}

	u.Fragment = ""

	if strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// Host returns the hostname component of a canonical URL.
func Host(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
