// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	owner := strings.TrimSpace(os.Getenv("OWNER_API_KEYS"))
	admin := strings.TrimSpace(os.Getenv("ADMIN_API_KEYS"))
	apiAddr := strings.TrimSpace(os.Getenv("ADDR"))
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	sqlitePath := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	interval := strings.TrimSpace(os.Getenv("CHECK_INTERVAL_MS"))
	retention := strings.TrimSpace(os.Getenv("RETENTION_DAYS"))
	allowed := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS"))

	if owner == "" && admin == "" {
		warn("OWNER_API_KEYS and ADMIN_API_KEYS both empty — API runs open, every caller is owner \"local\".")
	}
	if owner != "" {
		// entries must be key:owner pairs
		for _, part := range strings.Split(owner, ",") {
			if !strings.Contains(part, ":") {
				fail("OWNER_API_KEYS entry " + strconv.Quote(part) + " is not key:owner — it will be ignored.")
			}
		}
		ok("OWNER_API_KEYS present")
	}
	if admin != "" {
		if strings.Contains(admin, " ") {
			warn("ADMIN_API_KEYS contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
		ok("ADMIN_API_KEYS present")
	}

	if apiAddr == "" {
		warn("ADDR is empty; default 127.0.0.1:8080 will be used.")
	} else {
		ok("ADDR=" + apiAddr)
	}

	switch {
	case db != "":
		ok("DATABASE_URL present (postgres backend)")
		if sqlitePath != "" {
			warn("SQLITE_PATH is set but DATABASE_URL wins; sqlite path will be ignored.")
		}
	case sqlitePath != "":
		ok("SQLITE_PATH=" + sqlitePath)
	default:
		warn("no DATABASE_URL or SQLITE_PATH — profiles and history vanish on restart.")
	}

	if interval == "" || interval == "0" {
		warn("CHECK_INTERVAL_MS unset — background rechecks disabled, only on-demand checks run.")
	} else if ms, err := strconv.Atoi(interval); err != nil || ms < 0 {
		fail("CHECK_INTERVAL_MS=" + interval + " is not a non-negative integer.")
	} else {
		ok("CHECK_INTERVAL_MS=" + interval)
	}

	if retention != "" {
		if d, err := strconv.Atoi(retention); err != nil || d < 0 {
			fail("RETENTION_DAYS=" + retention + " is not a non-negative integer.")
		} else if d == 0 {
			warn("RETENTION_DAYS=0 — history grows without bound.")
		}
	}

	if allowed == "" {
		warn("ALLOWED_ORIGINS empty — CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + allowed)
	}

	ok("preflight passed")
}
