// Package meta extracts descriptive metadata from raw HTML. It is a pure
// function over text — no network I/O happens here; callers hand in a page
// body they already fetched.
package meta

import (
	"net/url"
	"regexp"
	"strings"

	"sitewatch/internal/domain"
)

var (
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>([^<]+)</title>`)
	descRe     = regexp.MustCompile(`(?is)<meta[^>]*name=["']description["'][^>]*content=["']([^"']+)["'][^>]*>`)
	descRevRe  = regexp.MustCompile(`(?is)<meta[^>]*content=["']([^"']+)["'][^>]*name=["']description["'][^>]*>`)
	faviconRe  = regexp.MustCompile(`(?is)<link[^>]*rel=["'](?:shortcut )?icon["'][^>]*href=["']([^"']+)["'][^>]*>`)
	langRe     = regexp.MustCompile(`(?is)<html[^>]*\blang=["']([^"']+)["'][^>]*>`)
	charsetRe  = regexp.MustCompile(`(?is)<meta[^>]*charset=["']?([a-zA-Z0-9_-]+)["']?[^>]*>`)
	robotsRe   = regexp.MustCompile(`(?is)<meta[^>]*name=["']robots["'][^>]*content=["']([^"']+)["'][^>]*>`)
	viewportRe = regexp.MustCompile(`(?is)<meta[^>]*name=["']viewport["'][^>]*content=["']([^"']+)["'][^>]*>`)
)

// Extract pulls title, description, favicon, language, charset, robots and
// viewport hints out of html. Relative favicon links are resolved against
// baseURL. Fields that cannot be found stay empty.
func Extract(html, baseURL string) domain.Metadata {
	var m domain.Metadata

	if g := titleRe.FindStringSubmatch(html); g != nil {
		m.Title = strings.TrimSpace(g[1])
	}
	if g := descRe.FindStringSubmatch(html); g != nil {
		m.Description = strings.TrimSpace(g[1])
	} else if g := descRevRe.FindStringSubmatch(html); g != nil {
		m.Description = strings.TrimSpace(g[1])
	}
	if g := faviconRe.FindStringSubmatch(html); g != nil {
		m.Favicon = resolveFavicon(g[1], baseURL)
	}
	if g := langRe.FindStringSubmatch(html); g != nil {
		m.Language = g[1]
	}
	if g := charsetRe.FindStringSubmatch(html); g != nil {
		m.Charset = strings.ToLower(g[1])
	}
	if g := robotsRe.FindStringSubmatch(html); g != nil {
		m.Robots = strings.TrimSpace(g[1])
	}
	if g := viewportRe.FindStringSubmatch(html); g != nil {
		m.Viewport = strings.TrimSpace(g[1])
	}
	return m
}

func resolveFavicon(href, baseURL string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
