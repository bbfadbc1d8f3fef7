package safety

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultConfigDir holds per-key config files; a file named after a
	// key wins over the environment variable of the same name.
	DefaultConfigDir = "/etc/tradecore-safety"

	// EnvConfigDir overrides DefaultConfigDir.
	EnvConfigDir = "SAFETY_CONFIG_DIR"

	KeyTradingEnabled = "TRADING_ENABLED"
	KeyKillSwitch     = "KILL_SWITCH"
	KeyStaleThreshold = "STALE_THRESHOLD_SECONDS"

	defaultStaleThreshold = 30 * time.Second
	minStaleThreshold     = 1 * time.Second
	maxStaleThreshold     = 3600 * time.Second
)

// Config is the operator-controlled part of the safety evaluation.
type Config struct {
	TradingEnabled bool
	KillSwitch     bool
	StaleThreshold time.Duration
	TTLSeconds     int
}

// LoadConfig resolves each key file-first, then environment, then
// default. A file that exists but cannot be read or parsed forces the
// kill switch on with the default threshold.
func LoadConfig() Config {
	dir := os.Getenv(EnvConfigDir)
	if dir == "" {
		dir = DefaultConfigDir
	}

	cfg := Config{
		TradingEnabled: true,
		StaleThreshold: defaultStaleThreshold,
		TTLSeconds:     60,
	}

	enabled, ok, bad := lookupBool(dir, KeyTradingEnabled)
	if bad {
		return failClosed(cfg, KeyTradingEnabled)
	}
	if ok {
		cfg.TradingEnabled = enabled
	}

	kill, ok, bad := lookupBool(dir, KeyKillSwitch)
	if bad {
		return failClosed(cfg, KeyKillSwitch)
	}
	if ok {
		cfg.KillSwitch = kill
	}

	secs, ok, bad := lookupInt(dir, KeyStaleThreshold)
	if bad {
		return failClosed(cfg, KeyStaleThreshold)
	}
	if ok {
		cfg.StaleThreshold = clampThreshold(time.Duration(secs) * time.Second)
	}

	return cfg
}

func failClosed(cfg Config, key string) Config {
	log.Printf("[safety] config key %s unreadable, failing closed", key)
	cfg.KillSwitch = true
	cfg.StaleThreshold = defaultStaleThreshold
	return cfg
}

func clampThreshold(d time.Duration) time.Duration {
	if d < minStaleThreshold {
		return minStaleThreshold
	}
	if d > maxStaleThreshold {
		return maxStaleThreshold
	}
	return d
}

// lookup returns the raw value for key: the config-dir file if present,
// else the environment variable. bad is true when a present source
// cannot be read.
func lookup(dir, key string) (val string, ok, bad bool) {
	path := filepath.Join(dir, key)
	if _, err := os.Stat(path); err == nil {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", false, true
		}
		return strings.TrimSpace(string(raw)), true, false
	}
	if v, found := os.LookupEnv(key); found {
		return strings.TrimSpace(v), true, false
	}
	return "", false, false
}

func lookupBool(dir, key string) (val, ok, bad bool) {
	raw, ok, bad := lookup(dir, key)
	if !ok || bad {
		return false, ok, bad
	}
	b, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, true, true
	}
	return b, true, false
}

func lookupInt(dir, key string) (val int, ok, bad bool) {
	raw, ok, bad := lookup(dir, key)
	if !ok || bad {
		return 0, ok, bad
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, true
	}
	return n, true, false
}
