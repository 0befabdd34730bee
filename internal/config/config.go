package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the send governor.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Governance GovernanceConfig `yaml:"governance"`
	Export     ExportConfig     `yaml:"export"`
	Logging    LoggingConfig    `yaml:"logging"`
	CORS       CORSConfig       `yaml:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                   int    `yaml:"port"`
	Host                   string `yaml:"host"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool connection lifetime as a duration.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the optional Redis connection used for quota counters
// and experiment locks.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// Quota counter backends.
const (
	QuotaBackendPostgres = "postgres"
	QuotaBackendRedis    = "redis"
	QuotaBackendMemory   = "memory"
)

// GovernanceConfig holds the send-decision policies.
type GovernanceConfig struct {
	// QuotaBackend selects where daily counters live: postgres, redis or memory.
	QuotaBackend string `yaml:"quota_backend"`
	// ServiceTimezone is the IANA zone that defines the service day for all
	// counters. Every worker must share it.
	ServiceTimezone string `yaml:"service_timezone"`
	// SuppressionFailClosed blocks sends when the suppression lookup fails.
	// The default (false) lets the send through and logs a warning.
	SuppressionFailClosed      bool `yaml:"suppression_fail_closed"`
	StoreTimeoutMS             int  `yaml:"store_timeout_ms"`
	StoreRetries               int  `yaml:"store_retries"`
	DefaultCampaignDailyLimit  int  `yaml:"default_campaign_daily_limit"`
	DefaultWorkspaceDailyLimit int  `yaml:"default_workspace_daily_limit"`
	LockTTLSeconds             int  `yaml:"lock_ttl_seconds"`
}

// StoreTimeout returns the per-call storage timeout.
func (c GovernanceConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// LockTTL returns the TTL for experiment-scope locks.
func (c GovernanceConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Location resolves ServiceTimezone.
func (c GovernanceConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.ServiceTimezone)
}

// ExportConfig holds the S3 suppression snapshot settings.
type ExportConfig struct {
	Enabled         bool     `yaml:"enabled"`
	S3Bucket        string   `yaml:"s3_bucket"`
	S3Region        string   `yaml:"s3_region"`
	S3Prefix        string   `yaml:"s3_prefix"`
	AWSProfile      string   `yaml:"aws_profile"`
	IntervalMinutes int      `yaml:"interval_minutes"`
	WorkspaceIDs    []string `yaml:"workspace_ids"`
}

// Interval returns the export interval as a duration.
func (c ExportConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level            string `yaml:"level"`
	DisableRedaction bool   `yaml:"disable_redaction"`
}

// CORSConfig lists the origins allowed to call the admin API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 15
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.Governance.QuotaBackend == "" {
		cfg.Governance.QuotaBackend = QuotaBackendPostgres
	}
	if cfg.Governance.ServiceTimezone == "" {
		cfg.Governance.ServiceTimezone = "UTC"
	}
	if cfg.Governance.StoreTimeoutMS == 0 {
		cfg.Governance.StoreTimeoutMS = 300
	}
	if cfg.Governance.StoreRetries == 0 {
		cfg.Governance.StoreRetries = 1
	}
	if cfg.Governance.DefaultCampaignDailyLimit == 0 {
		cfg.Governance.DefaultCampaignDailyLimit = 50
	}
	if cfg.Governance.DefaultWorkspaceDailyLimit == 0 {
		cfg.Governance.DefaultWorkspaceDailyLimit = 200
	}
	if cfg.Governance.LockTTLSeconds == 0 {
		cfg.Governance.LockTTLSeconds = 30
	}
	if cfg.Export.IntervalMinutes == 0 {
		cfg.Export.IntervalMinutes = 60
	}
	if cfg.Export.S3Region == "" {
		cfg.Export.S3Region = "us-east-1"
	}
	if cfg.Export.S3Prefix == "" {
		cfg.Export.S3Prefix = "suppressions/"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads config from file and overrides with environment variables.
// A .env file in the working directory is read first if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("QUOTA_BACKEND"); v != "" {
		cfg.Governance.QuotaBackend = v
	}
	if v := os.Getenv("SERVICE_TIMEZONE"); v != "" {
		cfg.Governance.ServiceTimezone = v
	}
	if v := os.Getenv("SUPPRESSION_FAIL_CLOSED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Governance.SuppressionFailClosed = b
		}
	}
	if v := os.Getenv("EXPORT_S3_BUCKET"); v != "" {
		cfg.Export.S3Bucket = v
		cfg.Export.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints that defaults cannot fix.
func (cfg *Config) Validate() error {
	switch cfg.Governance.QuotaBackend {
	case QuotaBackendPostgres, QuotaBackendMemory:
	case QuotaBackendRedis:
		if cfg.Redis.URL == "" {
			return fmt.Errorf("quota_backend redis requires redis.url")
		}
	default:
		return fmt.Errorf("unknown quota_backend %q", cfg.Governance.QuotaBackend)
	}
	if _, err := cfg.Governance.Location(); err != nil {
		return fmt.Errorf("service_timezone: %w", err)
	}
	g := cfg.Governance
	if g.DefaultCampaignDailyLimit < 1 || g.DefaultCampaignDailyLimit > 500 {
		return fmt.Errorf("default_campaign_daily_limit must be between 1 and 500")
	}
	if g.DefaultWorkspaceDailyLimit < 1 || g.DefaultWorkspaceDailyLimit > 2000 {
		return fmt.Errorf("default_workspace_daily_limit must be between 1 and 2000")
	}
	if cfg.Export.Enabled && cfg.Export.S3Bucket == "" {
		return fmt.Errorf("export enabled without s3_bucket")
	}
	return nil
}
