// Package config loads sinkron's configuration. The document- and
// auth-facing settings (spec.md §6.4: host, port, apiToken, syncAuthUrl,
// db.*) come from a JSON blob, matching the original Rust binary's
// SINKRON_CONFIG convention; the ambient operational knobs (log level,
// worker pool sizing, rate limits) layer on top via caarlos0/env/v11 struct
// tags, the way the teacher's config.go does it. Precedence is
// env vars > JSON config > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// DBConfig is the Postgres connection descriptor (spec.md §6.4's db object).
type DBConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// Config is sinkron's full runtime configuration.
type Config struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	APIToken    string   `json:"apiToken"`
	SyncAuthUrl string   `json:"syncAuthUrl"`
	DB          DBConfig `json:"db"`

	// Ambient knobs. Not part of the JSON schema spec.md describes; these
	// are operational dials the teacher exposes as env vars.
	LogLevel  string `env:"SINKRON_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SINKRON_LOG_FORMAT" envDefault:"json"`

	MetricsAddr string `env:"SINKRON_METRICS_ADDR" envDefault:":9090"`

	MaxConnections int `env:"SINKRON_MAX_CONNECTIONS" envDefault:"10000"`

	MergeWorkers   int           `env:"SINKRON_MERGE_WORKERS" envDefault:"8"`
	MergeQueueSize int           `env:"SINKRON_MERGE_QUEUE_SIZE" envDefault:"800"`
	MergeTimeout   time.Duration `env:"SINKRON_MERGE_TIMEOUT" envDefault:"500ms"`

	ClientRateLimit  float64       `env:"SINKRON_CLIENT_RATE_LIMIT" envDefault:"20"`
	ClientRateBurst  int           `env:"SINKRON_CLIENT_RATE_BURST" envDefault:"40"`
	HeartbeatTimeout time.Duration `env:"SINKRON_HEARTBEAT_TIMEOUT" envDefault:"60s"`

	CPURejectThreshold float64 `env:"SINKRON_CPU_REJECT_THRESHOLD" envDefault:"85.0"`

	DBPoolMaxConns int32 `env:"SINKRON_DB_POOL_MAX_CONNS" envDefault:"4"`

	MetricsInterval time.Duration `env:"SINKRON_METRICS_INTERVAL" envDefault:"15s"`
}

// LoadConfig reads the JSON config object from SINKRON_CONFIG (inline) or
// SINKRON_CONFIG_FILE (path to a file), then layers ambient env vars on
// top. logger may be nil, in which case no progress is reported.
func LoadConfig(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}

	raw, err := readConfigJSON()
	if err != nil {
		return nil, fmt.Errorf("reading config json: %w", err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config json: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if logger != nil {
		logger.Info().Msg("configuration loaded and validated")
	}
	return cfg, nil
}

func readConfigJSON() ([]byte, error) {
	if inline := os.Getenv("SINKRON_CONFIG"); inline != "" {
		return []byte(inline), nil
	}
	if path := os.Getenv("SINKRON_CONFIG_FILE"); path != "" {
		return os.ReadFile(path)
	}
	return nil, nil
}

// Validate checks configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.APIToken == "" {
		return fmt.Errorf("apiToken is required")
	}
	if c.DB.Database == "" {
		return fmt.Errorf("db.database is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("SINKRON_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.MergeWorkers < 1 {
		return fmt.Errorf("SINKRON_MERGE_WORKERS must be > 0, got %d", c.MergeWorkers)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("SINKRON_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("SINKRON_LOG_LEVEL must be one of debug/info/warn/error, got %q", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("SINKRON_LOG_FORMAT must be one of json/text/pretty, got %q", c.LogFormat)
	}
	return nil
}

// Addr is the listen address for the sync/admin HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Print writes a human-readable dump of the configuration to stdout.
func (c *Config) Print() {
	fmt.Println("=== sinkron configuration ===")
	fmt.Printf("Listen:          %s\n", c.Addr())
	fmt.Printf("DB:              %s:%d/%s\n", c.DB.Host, c.DB.Port, c.DB.Database)
	fmt.Printf("Sync auth url:   %s\n", c.SyncAuthUrl)
	fmt.Printf("Max connections: %d\n", c.MaxConnections)
	fmt.Printf("Merge workers:   %d (queue %d, timeout %s)\n", c.MergeWorkers, c.MergeQueueSize, c.MergeTimeout)
	fmt.Printf("Client rate:     %.1f/s burst %d\n", c.ClientRateLimit, c.ClientRateBurst)
	fmt.Printf("Heartbeat:       %s\n", c.HeartbeatTimeout)
	fmt.Printf("CPU reject:      %.1f%%\n", c.CPURejectThreshold)
	fmt.Printf("Log:             %s/%s\n", c.LogLevel, c.LogFormat)
	fmt.Println("=============================")
}

// LogConfig emits the same information as Print through structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr()).
		Str("db_host", c.DB.Host).
		Int("db_port", c.DB.Port).
		Str("db_name", c.DB.Database).
		Bool("sync_auth_configured", c.SyncAuthUrl != "").
		Int("max_connections", c.MaxConnections).
		Int("merge_workers", c.MergeWorkers).
		Int("merge_queue_size", c.MergeQueueSize).
		Dur("merge_timeout", c.MergeTimeout).
		Float64("client_rate_limit", c.ClientRateLimit).
		Int("client_rate_burst", c.ClientRateBurst).
		Dur("heartbeat_timeout", c.HeartbeatTimeout).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("sinkron configuration loaded")
}
