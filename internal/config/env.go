// Package config handles environment-based configuration loading for the
// steering service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Network
	ListenAddress   string
	Port            int
	APIMaxBodyBytes int

	// Node monitor (C1)
	NetworkName     string
	MonitorInterval time.Duration
	StaticNodesFile string

	// Latency oracle (C2)
	OracleInterval time.Duration

	// Bandit (C3)
	Strategy string
	Epsilon  float64

	// Structured logger (C5)
	LogDir    string
	LogSuffix string
	Verbose   bool

	// Admin auth for /latency_event
	AdminToken string

	// GeoIP fallback
	GeoIPDBPath         string
	GeoIPUpdateSchedule string
}

// LoadEnvConfig reads environment variables and returns a validated
// EnvConfig. Returns an error naming every problem found, not just the
// first one.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	cfg.ListenAddress = strings.TrimSpace(envStr("STEERING_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("STEERING_PORT", 30500, &errs)
	cfg.APIMaxBodyBytes = envInt("STEERING_API_MAX_BODY_BYTES", 1<<20, &errs)

	cfg.NetworkName = envStr("STEERING_NETWORK_NAME", "video-streaming_default")
	cfg.MonitorInterval = envDuration("STEERING_MONITOR_INTERVAL", 2*time.Second, &errs)
	cfg.StaticNodesFile = envStr("STEERING_STATIC_NODES_FILE", "")

	cfg.OracleInterval = clampMinDuration(envDuration("STEERING_ORACLE_INTERVAL", 1*time.Second, &errs), 500*time.Millisecond)

	cfg.Strategy = envStr("STEERING_STRATEGY", "epsilon_greedy")
	cfg.Epsilon = envFloat("STEERING_EPSILON", 0.1, &errs)

	cfg.LogDir = envStr("STEERING_LOG_DIR", "Graphics/Logs")
	cfg.LogSuffix = envStr("STEERING_LOG_SUFFIX", "")
	cfg.Verbose = envBool("STEERING_VERBOSE", false)

	cfg.AdminToken = os.Getenv("STEERING_ADMIN_TOKEN")

	cfg.GeoIPDBPath = envStr("STEERING_GEOIP_DB_PATH", "")
	cfg.GeoIPUpdateSchedule = envStr("STEERING_GEOIP_UPDATE_SCHEDULE", "0 7 * * *")

	validatePort("STEERING_PORT", cfg.Port, &errs)
	validatePositive("STEERING_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	if cfg.MonitorInterval <= 0 {
		errs = append(errs, "STEERING_MONITOR_INTERVAL must be positive")
	}
	if cfg.OracleInterval <= 0 {
		errs = append(errs, "STEERING_ORACLE_INTERVAL must be positive")
	}
	if !IsValidStrategy(cfg.Strategy) {
		errs = append(errs, fmt.Sprintf("STEERING_STRATEGY: invalid value %q", cfg.Strategy))
	}
	if cfg.Epsilon < 0 || cfg.Epsilon > 1 {
		errs = append(errs, "STEERING_EPSILON must be within [0,1]")
	}
	if cfg.AdminToken != "" && IsWeakToken(cfg.AdminToken) {
		errs = append(errs, "STEERING_ADMIN_TOKEN is too weak; choose a stronger token")
	}
	if cfg.GeoIPDBPath != "" {
		if _, err := cron.ParseStandard(cfg.GeoIPUpdateSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("STEERING_GEOIP_UPDATE_SCHEDULE: invalid cron expression %q: %v", cfg.GeoIPUpdateSchedule, err))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

// IsValidStrategy reports whether name is one of the six supported bandit
// strategies.
func IsValidStrategy(name string) bool {
	switch name {
	case "epsilon_greedy", "no_steering", "random", "ucb1", "d_ucb", "oracle_best_choice":
		return true
	default:
		return false
	}
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envFloat(key string, defaultVal float64, errs *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid float %q", key, v))
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
