// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// bot (command prefix, cooldowns, mute sweep, leaderboard sessions), the
// persisted tables, the admin HTTP server, and observability.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS and the
// admin bearer token.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
	AdminToken string // ADMIN_TOKEN; empty disables the bearer check
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "modbot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// BotConfig holds the chat-side settings.
type BotConfig struct {
	CommandPrefix         string
	MutedRole             string
	MuteSweepInterval     time.Duration
	RuleCooldown          time.Duration // fallback when setting rule-user is absent
	ThanksCooldown        time.Duration // fallback when setting thanks-user is absent
	LeaderboardPageSize   int
	LeaderboardSessionTTL time.Duration
	ConfirmDeleteAfter    time.Duration
	EventRateRPS          float64 // per-user events per second
	EventRateBurst        int
}

// BreakerConfig tunes the circuit breaker in front of the chat platform.
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	HTTPEnabled       bool
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	APIBasePath       string        // base path for API routes

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Storage
	DataDir        string // directory holding the JSON tables
	DBPath         string // SQLite audit log
	ModerationFile string // YAML moderation policy; optional

	Bot BotConfig

	// Rate limiting (admin HTTP)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Breaker BreakerConfig

	// Observability
	OTEL OTELConfig
}

// TablePath returns the backing file of table name inside DataDir.
func (c Config) TablePath(name string) string {
	return filepath.Join(c.DataDir, name+".json")
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a .env file when present, then configuration from environment
// variables, applies defaults, normalizes values, and validates the result.
// Variables already set in the environment win over the .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		// Server
		HTTPEnabled:       getbool("HTTP_ENABLED", true),
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Storage
		DataDir:        getenv("DATA_DIR", "data"),
		DBPath:         getenv("DB_PATH", "data/audit.db"),
		ModerationFile: getenv("MODERATION_FILE", "moderation.yaml"),

		Bot: BotConfig{
			CommandPrefix:         getenv("COMMAND_PREFIX", "!"),
			MutedRole:             getenv("MUTED_ROLE", "Muted"),
			MuteSweepInterval:     getdur("MUTE_SWEEP_INTERVAL", time.Minute),
			RuleCooldown:          getdur("RULE_COOLDOWN", 30*time.Second),
			ThanksCooldown:        getdur("THANKS_COOLDOWN", time.Minute),
			LeaderboardPageSize:   getint("LEADERBOARD_PAGE_SIZE", 10),
			LeaderboardSessionTTL: getdur("LEADERBOARD_SESSION_TTL", 5*time.Minute),
			ConfirmDeleteAfter:    getdur("CONFIRM_DELETE_AFTER", 3*time.Second),
			EventRateRPS:          getfloat("EVENT_RATE_RPS", 1.0),
			EventRateBurst:        getint("EVENT_RATE_BURST", 5),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			AdminToken: strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Breaker: BreakerConfig{
			MaxFailures: uint32(getint("BREAKER_MAX_FAILURES", 5)),
			OpenTimeout: getdur("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "modbot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.Bot.CommandPrefix = strings.TrimSpace(cfg.Bot.CommandPrefix)

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return cfg, errors.New("DATA_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Bot.CommandPrefix == "" {
		return cfg, errors.New("COMMAND_PREFIX must not be empty")
	}
	if strings.TrimSpace(cfg.Bot.MutedRole) == "" {
		return cfg, errors.New("MUTED_ROLE must not be empty")
	}
	if cfg.Bot.MuteSweepInterval <= 0 {
		return cfg, errors.New("MUTE_SWEEP_INTERVAL must be > 0")
	}
	if cfg.Bot.RuleCooldown < 0 || cfg.Bot.ThanksCooldown < 0 {
		return cfg, errors.New("RULE_COOLDOWN and THANKS_COOLDOWN must be >= 0")
	}
	if cfg.Bot.LeaderboardPageSize < 1 {
		return cfg, errors.New("LEADERBOARD_PAGE_SIZE must be >= 1")
	}
	if cfg.Bot.LeaderboardSessionTTL <= 0 {
		return cfg, errors.New("LEADERBOARD_SESSION_TTL must be > 0")
	}
	if cfg.Bot.ConfirmDeleteAfter < 0 {
		return cfg, errors.New("CONFIRM_DELETE_AFTER must be >= 0")
	}
	if cfg.Bot.EventRateRPS < 0 || cfg.Bot.EventRateBurst < 1 {
		return cfg, errors.New("EVENT_RATE_RPS must be >= 0 and EVENT_RATE_BURST >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 || cfg.Breaker.OpenTimeout <= 0 {
		return cfg, errors.New("BREAKER_MAX_FAILURES must be >= 1 and BREAKER_OPEN_TIMEOUT > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

// getdur accepts Go durations ("90s") and bare integers as seconds.
func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		v = strings.TrimSpace(v)
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
