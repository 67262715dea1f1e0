package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Keys maps API credentials to identities. Owner keys carry the owner id
// every profile operation is scoped to; admin keys unlock operator routes.
// A configured key may be stored as a bcrypt hash instead of plaintext.
type Keys struct {
	Owners map[string]string // key (or bcrypt hash of it) -> owner id
	Admin  []string
}

type ctxKey int

const ownerCtxKey ctxKey = iota

// OwnerID returns the authenticated owner for the request, or "" when the
// request was not owner-authenticated.
func OwnerID(r *http.Request) string {
	v, _ := r.Context().Value(ownerCtxKey).(string)
	return v
}

func readAuth(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	return ""
}

// matchKey compares a presented key against a configured one, accepting
// bcrypt-hashed configuration values.
func matchKey(given, configured string) bool {
	if given == "" || configured == "" {
		return false
	}
	if strings.HasPrefix(configured, "$2a$") || strings.HasPrefix(configured, "$2b$") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(given)) == nil
	}
	return given == configured
}

func resolveOwner(given string, keys Keys) (string, bool) {
	for k, owner := range keys.Owners {
		if matchKey(given, k) {
			return owner, true
		}
	}
	return "", false
}

func isAdmin(given string, keys Keys) bool {
	for _, k := range keys.Admin {
		if matchKey(given, k) {
			return true
		}
	}
	return false
}

// RequireOwner authenticates the request and stashes the owner id in the
// context. Admin keys pass too, acting for the owner named in X-Owner-ID.
// With no keys configured every request is allowed as owner "local"
// (handy for local dev).
func RequireOwner(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Owners) > 0 || len(keys.Admin) > 0
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, withOwner(r, "local"))
				return
			}
			key := readAuth(r)
			if owner, ok := resolveOwner(key, keys); ok {
				next.ServeHTTP(w, withOwner(r, owner))
				return
			}
			if isAdmin(key, keys) {
				owner := r.Header.Get("X-Owner-ID")
				if owner == "" {
					owner = "admin"
				}
				next.ServeHTTP(w, withOwner(r, owner))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		})
	}
}

// RequireAdmin only permits requests presenting an admin key. With no
// admin keys configured it allows all requests (dev).
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Admin) > 0
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isAdmin(readAuth(r), keys) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}`))
		})
	}
}

func withOwner(r *http.Request, owner string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ownerCtxKey, owner))
}
