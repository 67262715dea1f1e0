package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"sitewatch/internal/domain"
	"sitewatch/internal/httpapi/middleware"
	"sitewatch/internal/meta"
	"sitewatch/internal/probe"
	"sitewatch/internal/tracker"
)

// HTMLFetcher retrieves page bodies for metadata extraction.
// *probe.HTTPChecker satisfies it; tests plug in fakes.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Limits holds the per-tier rate limit settings.
type Limits struct {
	PublicRPM   int
	PublicBurst int
	AdminRPM    int
	AdminBurst  int
}

type Server struct {
	Logger  *zap.Logger
	Tracker *tracker.Service
	Checker probe.Checker
	Fetcher HTMLFetcher // optional; nil skips metadata refresh
	Keys    middleware.Keys
	Limits  Limits
	Origins []string
}

func NewServer(l *zap.Logger, t *tracker.Service, c probe.Checker) *Server {
	return &Server{Logger: l, Tracker: t, Checker: c}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	if len(s.Origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.Origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "X-API-Key", "X-Owner-ID", "Content-Type"},
		}))
	} else {
		r.Use(cors.AllowAll().Handler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.Limits.PublicRPM, s.Limits.PublicBurst))
		r.Use(middleware.RequireOwner(s.Keys))

		r.Post("/api/checks", s.handleRunCheck)
		r.Get("/api/profiles", s.handleListProfiles)
		r.Get("/api/profile", s.handleGetProfile)
		r.Delete("/api/profile", s.handleDeleteProfile)
		r.Get("/api/uptime", s.handleUptime)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.Limits.AdminRPM, s.Limits.AdminBurst))
		r.Use(middleware.RequireAdmin(s.Keys))

		r.Get("/api/profiles/all", s.handleListAllProfiles)
	})

	return r
}

type checkPayload struct {
	URL string `json:"url"`
}

// handleRunCheck probes the URL once, synchronously, and folds the outcome
// into the caller's profile. Immediate feedback, same path the scheduler
// uses.
func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	var p checkPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.URL == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	out := s.Checker.Check(r.Context(), p.URL)

	var md domain.Metadata
	if out.Status == domain.StatusOnline && s.Fetcher != nil {
		if html, err := s.Fetcher.FetchHTML(r.Context(), p.URL); err == nil {
			md = meta.Extract(html, p.URL)
		}
	}

	res := out.Result(p.URL, md)
	snap, err := s.Tracker.RecordCheck(r.Context(), res, middleware.OwnerID(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.Logger.Info("check_ran",
		zap.String("url", p.URL),
		zap.String("status", string(res.Status)),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"result":    res,
		"analytics": snap,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	view, err := s.Tracker.GetProfile(r.Context(), middleware.OwnerID(r), u)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	n, err := s.Tracker.DeleteProfile(r.Context(), middleware.OwnerID(r), u)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_checks": n})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	items, err := s.Tracker.ListProfiles(r.Context(), middleware.OwnerID(r), limit, offset)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleListAllProfiles(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	items, err := s.Tracker.ListAllProfiles(r.Context(), limit, offset)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	stats, err := s.Tracker.UptimeStats(r.Context(), middleware.OwnerID(r), u, days)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeErr maps the engine's sentinel errors onto HTTP status codes.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, domain.ErrNoData):
		writeError(w, http.StatusNotFound, "no checks recorded in window")
	default:
		s.Logger.Error("request_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
