// Package config loads server configuration from the environment.
//
// Every setting has an env var and most have a default, so a bare
// `go run ./cmd/server` starts a working local server backed by SQLite and
// a directory of evidence files. Hosted deployments switch on Postgres,
// Redis and Cloud Storage by setting DATABASE_URL, REDIS_ADDR and GCS_BUCKET.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full server configuration.
type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	// Storage. DATABASE_URL wins over DB_PATH when set.
	DBPath      string `env:"DB_PATH"      envDefault:"data/schoolquest.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Auth. Without JWT_SECRET the auth routes are not registered.
	JWTSecret          string `env:"JWT_SECRET"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`
	AllowedEmailDomain string `env:"ALLOWED_EMAIL_DOMAIN"`
	CookieSecure       bool   `env:"COOKIE_SECURE"`

	RedisAddr string `env:"REDIS_ADDR"`
	RedisKey  string `env:"REDIS_KEY" envDefault:"schoolquest:leaderboard"`

	// Evidence uploads.
	EvidenceDir      string   `env:"EVIDENCE_DIR"       envDefault:"data/evidence"`
	GCSBucket        string   `env:"GCS_BUCKET"`
	MaxUploadBytes   int64    `env:"MAX_UPLOAD_BYTES"   envDefault:"10485760"`
	AllowedMIMETypes []string `env:"ALLOWED_MIME_TYPES" envDefault:"image/png,image/jpeg,image/gif,image/webp,application/pdf,text/plain" envSeparator:","`

	ScenarioSeedFile string `env:"SCENARIO_SEED_FILE"`
	RunnerConfigFile string `env:"RUNNER_CONFIG_FILE"`

	MissionPoints     map[string]int `env:"MISSION_POINTS"     envDefault:"A:3,B:2" envSeparator:"," envKeyValSeparator:":"`
	MissionMultiplier int            `env:"MISSION_MULTIPLIER" envDefault:"100"`

	XP XP

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"60s"`
}

// XP is the score awarded per system event kind.
type XP struct {
	Login        int `env:"XP_LOGIN"          envDefault:"0"`
	Heartbeat    int `env:"XP_HEARTBEAT"      envDefault:"0"`
	CheckIn      int `env:"XP_CHECKIN"        envDefault:"10"`
	Reflection   int `env:"XP_REFLECTION"     envDefault:"50"`
	Evidence     int `env:"XP_EVIDENCE"       envDefault:"100"`
	MaxGameScore int `env:"XP_MAX_GAME_SCORE" envDefault:"100000"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive")
	}
	if c.MissionMultiplier < 0 {
		return fmt.Errorf("config: MISSION_MULTIPLIER must not be negative")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: HEARTBEAT_INTERVAL must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT %q: want text or json", c.LogFormat)
	}
	return nil
}

// AuthEnabled reports whether Google sign-in can be offered.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != "" && c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// CallbackURL is GOOGLE_CALLBACK_URL or the local default for Port.
func (c Config) CallbackURL() string {
	if c.GoogleCallbackURL != "" {
		return c.GoogleCallbackURL
	}
	return fmt.Sprintf("http://localhost:%d/auth/google/callback", c.Port)
}

// ParseLevel maps LOG_LEVEL names to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL %q: %w", s, err)
	}
	return l, nil
}
