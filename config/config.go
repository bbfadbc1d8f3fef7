package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market data feed
	StreamURL        string
	SubscribeSymbols string
	Timeframes       string
	LatenessSeconds  int
	StaleThreshold   time.Duration
	// EmitUpdates turns on per-tick non-final candle emissions for
	// realtime consumers. Off by default: the stock fan-out only
	// forwards finals, so updates would be built and discarded.
	EmitUpdates bool

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	DataRoot      string
	AuditRoot     string
	MetricsAddr   string
	WebhookURL    string
	LogLevel      string

	// Agent identity for intent logs
	RepoID    string
	AgentName string
	AgentMode string
	GitSHA    string

	// Allocation
	DefaultOrderQty int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		StreamURL:        mustEnv("STREAM_URL"),
		SubscribeSymbols: getEnv("SUBSCRIBE_SYMBOLS", "SPY"),
		Timeframes:       getEnv("ENABLED_TIMEFRAMES", "1m,5m"),
		LatenessSeconds:  getEnvInt("LATENESS_SECONDS", 5),
		StaleThreshold:   time.Duration(getEnvInt("STALE_THRESHOLD_SECONDS", 30)) * time.Second,
		EmitUpdates:      getEnvBool("EMIT_CANDLE_UPDATES", false),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/tradecore.db"),
		DataRoot:      getEnv("DATA_ROOT", "data"),
		AuditRoot:     getEnv("AUDIT_ROOT", "audit_artifacts"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		WebhookURL:    getEnv("ALERT_WEBHOOK_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		RepoID:    getEnv("REPO_ID", "tradecore"),
		AgentName: getEnv("AGENT_NAME", "tradecore-agent"),
		AgentMode: getEnv("AGENT_MODE", "shadow"),
		GitSHA:    getEnv("GIT_SHA", ""),

		DefaultOrderQty: int64(getEnvInt("DEFAULT_ORDER_QTY", 1)),
	}
}

// ParseSymbols splits SubscribeSymbols into a deduplicated list.
func (c *Config) ParseSymbols() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range strings.Split(c.SubscribeSymbols, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
