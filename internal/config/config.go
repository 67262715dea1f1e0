package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr   string // API bind address, e.g. ":8080"
	LogDir string // logs directory

	DatabaseURL string // postgres DSN; empty means use SQLite
	SQLitePath  string // sqlite file path; empty means in-memory stores

	OwnerAPIKeys map[string]string // API key (or bcrypt hash) -> owner id
	AdminAPIKeys []string

	HTTPTimeout   time.Duration // per-probe timeout
	RetryAttempts int           // how many times to retry a failed probe
	RetryBackoff  time.Duration

	CheckInterval       time.Duration // 0 disables the background rechecker
	MaxConcurrentChecks int
	RetentionDays       int // rolling history window

	PublicRPM   int
	PublicBurst int
	AdminRPM    int
	AdminBurst  int

	AllowedOrigins []string
}

func FromEnv() Config {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}

	return Config{
		Addr:   addr,
		LogDir: logDir,

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),

		OwnerAPIKeys: parsePairs(os.Getenv("OWNER_API_KEYS")),
		AdminAPIKeys: parseList(os.Getenv("ADMIN_API_KEYS")),

		HTTPTimeout:   durMS("HTTP_TIMEOUT_MS", 10*time.Second),
		RetryAttempts: intEnv("RETRY_ATTEMPTS", 2),
		RetryBackoff:  durMS("RETRY_BACKOFF_MS", 300*time.Millisecond),

		CheckInterval:       durMS("CHECK_INTERVAL_MS", 0),
		MaxConcurrentChecks: intEnv("MAX_CONCURRENT_CHECKS", 8),
		RetentionDays:       intEnv("RETENTION_DAYS", 30),

		PublicRPM:   intEnv("PUBLIC_RPM", 120),
		PublicBurst: intEnv("PUBLIC_BURST", 60),
		AdminRPM:    intEnv("ADMIN_RPM", 60),
		AdminBurst:  intEnv("ADMIN_BURST", 30),

		AllowedOrigins: parseList(os.Getenv("ALLOWED_ORIGINS")),
	}
}

// parsePairs reads "key:owner,key2:owner2" into a lookup map. Entries
// without a colon are dropped.
func parsePairs(v string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		key, owner, ok := strings.Cut(part, ":")
		if !ok || key == "" || owner == "" {
			continue
		}
		out[key] = owner
	}
	return out
}

func parseList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intEnv(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func durMS(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
