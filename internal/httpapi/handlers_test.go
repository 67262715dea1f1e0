package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"sitewatch/internal/domain"
	"sitewatch/internal/httpapi/middleware"
	"sitewatch/internal/probe"
	"sitewatch/internal/repo/memory"
	"sitewatch/internal/tracker"
)

// fakeChecker returns a scripted outcome without touching the network.
type fakeChecker struct {
	out probe.Outcome
}

func (f *fakeChecker) Check(ctx context.Context, url string) probe.Outcome {
	return f.out
}

type fakeFetcher struct {
	html string
	err  error
}

func (f *fakeFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	return f.html, f.err
}

func onlineOutcome() probe.Outcome {
	code := 200
	rt := 120.0
	return probe.Outcome{Status: domain.StatusOnline, StatusCode: &code, ResponseTime: &rt}
}

func newTestServer(t *testing.T, out probe.Outcome) *Server {
	t.Helper()
	store := memory.New()
	svc := tracker.New(store, store, store, zap.NewNop())
	return &Server{
		Logger:  zap.NewNop(),
		Tracker: svc,
		Checker: &fakeChecker{out: out},
		Keys:    middleware.Keys{Owners: map[string]string{"alice-key": "alice"}, Admin: []string{"root-key"}},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRunCheck_CreatesProfile(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	h := s.Router()

	rr := doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{"url": "https://Example.com/"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Analytics domain.Snapshot `json:"analytics"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Analytics.TotalChecks != 1 || resp.Analytics.OverallUptime != 100 {
		t.Fatalf("analytics = %+v, want 1 check at 100%%", resp.Analytics)
	}

	// the profile is readable back under the canonical URL
	rr = doJSON(t, h, http.MethodGet, "/api/profile?url=https://example.com", "alice-key", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get profile: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var view tracker.ProfileView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Profile.URL != "https://example.com" {
		t.Fatalf("profile url = %q, want canonical form", view.Profile.URL)
	}
	if len(view.RecentChecks) != 1 {
		t.Fatalf("recent checks = %d, want 1", len(view.RecentChecks))
	}
}

func TestRunCheck_ExtractsMetadataWhenOnline(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	s.Fetcher = &fakeFetcher{html: `<html><head><title>Example Site</title></head></html>`}
	h := s.Router()

	rr := doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{"url": "https://example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/api/profile?url=https://example.com", "alice-key", nil)
	var view tracker.ProfileView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Profile.Meta.Title != "Example Site" {
		t.Fatalf("title = %q, want %q", view.Profile.Meta.Title, "Example Site")
	}
}

func TestRunCheck_SkipsMetadataWhenOffline(t *testing.T) {
	rt := 50.0
	s := newTestServer(t, probe.Outcome{Status: domain.StatusOffline, ResponseTime: &rt, Reason: "timeout"})
	s.Fetcher = &fakeFetcher{err: errors.New("should not be called")}
	h := s.Router()

	rr := doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{"url": "https://example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Analytics domain.Snapshot `json:"analytics"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Analytics.LastStatus != domain.StatusOffline || resp.Analytics.ConsecutiveDowntime != 1 {
		t.Fatalf("analytics = %+v, want offline with streak 1", resp.Analytics)
	}
}

func TestRunCheck_BadPayload(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	h := s.Router()

	rr := doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestRunCheck_InvalidURLMapsTo400(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	h := s.Router()

	rr := doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{"url": "ftp://example.com"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rr.Code, rr.Body.String())
	}
}

func TestGetProfile_UnknownURLMapsTo404(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	h := s.Router()

	rr := doJSON(t, h, http.MethodGet, "/api/profile?url=https://nowhere.example", "alice-key", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestProfiles_ScopedToOwner(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	s.Keys.Owners["bob-key"] = "bob"
	h := s.Router()

	doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{"url": "https://alice.example"})
	doJSON(t, h, http.MethodPost, "/api/checks", "bob-key", map[string]string{"url": "https://bob.example"})

	rr := doJSON(t, h, http.MethodGet, "/api/profiles", "alice-key", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var items []tracker.ProfileListItem
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Profile.URL != "https://alice.example" {
		t.Fatalf("items = %+v, want only alice's target", items)
	}

	// bob's profile is invisible to alice even by direct lookup
	rr = doJSON(t, h, http.MethodGet, "/api/profile?url=https://bob.example", "alice-key", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cross-owner lookup: status = %d, want 404", rr.Code)
	}
}

func TestProfilesAll_AdminOnly(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	s.Keys.Owners["bob-key"] = "bob"
	h := s.Router()

	doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{"url": "https://alice.example"})
	doJSON(t, h, http.MethodPost, "/api/checks", "bob-key", map[string]string{"url": "https://bob.example"})

	rr := doJSON(t, h, http.MethodGet, "/api/profiles/all", "alice-key", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("owner key: status = %d, want 403", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/profiles/all", "root-key", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin key: status = %d", rr.Code)
	}
	var items []tracker.ProfileListItem
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
}

func TestDeleteProfile(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	h := s.Router()

	doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{"url": "https://example.com"})
	doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{"url": "https://example.com"})

	rr := doJSON(t, h, http.MethodDelete, "/api/profile?url=https://example.com", "alice-key", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		DeletedChecks int `json:"deleted_checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.DeletedChecks != 2 {
		t.Fatalf("deleted_checks = %d, want 2", resp.DeletedChecks)
	}

	rr = doJSON(t, h, http.MethodDelete, "/api/profile?url=https://example.com", "alice-key", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d, want 404", rr.Code)
	}
}

func TestUptime_NoDataMapsTo404(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	h := s.Router()

	doJSON(t, h, http.MethodPost, "/api/checks", "alice-key", map[string]string{"url": "https://example.com"})

	// recorded checks exist, so a stats call succeeds
	rr := doJSON(t, h, http.MethodGet, "/api/uptime?url=https://example.com&days=7", "alice-key", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var stats tracker.UptimeStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Percentage != 100 || len(stats.Trend) != 7 {
		t.Fatalf("stats = %+v, want 100%% over 7 buckets", stats)
	}

	// unknown profile maps to 404
	rr = doJSON(t, h, http.MethodGet, "/api/uptime?url=https://unknown.example", "alice-key", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown: status = %d, want 404", rr.Code)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	h := s.Router()

	rr := doJSON(t, h, http.MethodGet, "/api/profiles", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, onlineOutcome())
	h := s.Router()

	rr := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("got %d %q", rr.Code, rr.Body.String())
	}
}
