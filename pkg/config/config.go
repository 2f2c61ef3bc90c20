package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Identity      IdentityConfig      `yaml:"identity"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL               string        `yaml:"url"`
	ReplicaURLs       []string      `yaml:"replica_urls"`
	MaxConns          int           `yaml:"max_conns"`
	MinConns          int           `yaml:"min_conns"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxLifetime       time.Duration `yaml:"max_lifetime"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
	AutoMigrate       bool          `yaml:"auto_migrate"`
	InstallProcedures bool          `yaml:"install_procedures"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis-backed
// caches and notification publishing.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// IdentityConfig holds identity provider settings
type IdentityConfig struct {
	IssuerURL string `yaml:"issuer_url"`
	JWKSURL   string `yaml:"jwks_url"`
	Audience  string `yaml:"audience"`
	// AdminURL and ServiceKey enable account deletion; both are optional.
	AdminURL   string `yaml:"admin_url"`
	ServiceKey string `yaml:"service_key"`
}

// ProvidersConfig holds the upstream metadata and news providers
type ProvidersConfig struct {
	AniListURL       string        `yaml:"anilist_url"`
	NewsFeedURL      string        `yaml:"news_feed_url"`
	Timeout          time.Duration `yaml:"timeout"`
	RequestsPerSec   float64       `yaml:"requests_per_sec"`
	Burst            int           `yaml:"burst"`
	ImageLookupLimit int           `yaml:"image_lookup_limit"`
}

// CacheConfig holds cache sizes and TTLs
type CacheConfig struct {
	FlagsTTL        time.Duration `yaml:"flags_ttl"`
	PermissionsTTL  time.Duration `yaml:"permissions_ttl"`
	PermissionsSize int           `yaml:"permissions_size"`
	CatalogTTL      time.Duration `yaml:"catalog_ttl"`
	CatalogSize     int           `yaml:"catalog_size"`
	NewsTTL         time.Duration `yaml:"news_ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel           string  `yaml:"log_level"`
	MetricsEnabled     bool    `yaml:"metrics_enabled"`
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// MaintenanceConfig holds the background job schedules and retention
type MaintenanceConfig struct {
	NotificationSchedule  string        `yaml:"notification_schedule"`
	NotificationRetention time.Duration `yaml:"notification_retention"`
	InvitationSchedule    string        `yaml:"invitation_schedule"`
	InvitationRetention   time.Duration `yaml:"invitation_retention"`
	ProposalSchedule      string        `yaml:"proposal_schedule"`
	ProposalRetention     time.Duration `yaml:"proposal_retention"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			MaxConns:    20,
			MinConns:    2,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			DB: 0,
		},
		Providers: ProvidersConfig{
			AniListURL:       "https://graphql.anilist.co",
			NewsFeedURL:      "https://cr-news-api-service.prd.crunchyrollsvc.com/v1/fr-FR/rss",
			Timeout:          10 * time.Second,
			RequestsPerSec:   1.5,
			Burst:            5,
			ImageLookupLimit: 12,
		},
		Cache: CacheConfig{
			FlagsTTL:        30 * time.Second,
			PermissionsTTL:  time.Minute,
			PermissionsSize: 1024,
			CatalogTTL:      10 * time.Minute,
			CatalogSize:     256,
			NewsTTL:         15 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "watchlist",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
		Maintenance: MaintenanceConfig{
			NotificationSchedule:  "@daily",
			NotificationRetention: 30 * 24 * time.Hour,
			InvitationSchedule:    "@hourly",
			InvitationRetention:   14 * 24 * time.Hour,
			ProposalSchedule:      "@weekly",
			ProposalRetention:     90 * 24 * time.Hour,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by WATCHLIST_CONFIG_FILE (if any), then WATCHLIST_* environment variables.
func LoadConfig() (*Config, error) {
	cfg, err := LoadFile(os.Getenv("WATCHLIST_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnv("WATCHLIST_HOST", s.Host)
	s.Port = getEnv("WATCHLIST_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("WATCHLIST_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("WATCHLIST_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("WATCHLIST_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("WATCHLIST_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("WATCHLIST_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.CORSOrigins = getEnvList("WATCHLIST_CORS_ORIGINS", s.CORSOrigins)

	d := &cfg.Database
	d.URL = getEnv("WATCHLIST_DATABASE_URL", d.URL)
	d.ReplicaURLs = getEnvList("WATCHLIST_DATABASE_REPLICA_URLS", d.ReplicaURLs)
	d.MaxConns = getEnvInt("WATCHLIST_DATABASE_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("WATCHLIST_DATABASE_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("WATCHLIST_DATABASE_TIMEOUT", d.Timeout)
	d.AutoMigrate = getEnvBool("WATCHLIST_DATABASE_AUTO_MIGRATE", d.AutoMigrate)
	d.InstallProcedures = getEnvBool("WATCHLIST_DATABASE_INSTALL_PROCEDURES", d.InstallProcedures)

	r := &cfg.Redis
	r.URL = getEnv("WATCHLIST_REDIS_URL", r.URL)
	r.Password = getEnv("WATCHLIST_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("WATCHLIST_REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("WATCHLIST_REDIS_POOL_SIZE", r.PoolSize)

	i := &cfg.Identity
	i.IssuerURL = getEnv("WATCHLIST_IDENTITY_ISSUER_URL", i.IssuerURL)
	i.JWKSURL = getEnv("WATCHLIST_IDENTITY_JWKS_URL", i.JWKSURL)
	i.Audience = getEnv("WATCHLIST_IDENTITY_AUDIENCE", i.Audience)
	i.AdminURL = getEnv("WATCHLIST_IDENTITY_ADMIN_URL", i.AdminURL)
	i.ServiceKey = getEnv("WATCHLIST_IDENTITY_SERVICE_KEY", i.ServiceKey)

	p := &cfg.Providers
	p.AniListURL = getEnv("WATCHLIST_ANILIST_URL", p.AniListURL)
	p.NewsFeedURL = getEnv("WATCHLIST_NEWS_FEED_URL", p.NewsFeedURL)
	p.Timeout = getEnvDuration("WATCHLIST_PROVIDER_TIMEOUT", p.Timeout)
	p.RequestsPerSec = getEnvFloat("WATCHLIST_PROVIDER_RPS", p.RequestsPerSec)
	p.Burst = getEnvInt("WATCHLIST_PROVIDER_BURST", p.Burst)

	c := &cfg.Cache
	c.FlagsTTL = getEnvDuration("WATCHLIST_CACHE_FLAGS_TTL", c.FlagsTTL)
	c.PermissionsTTL = getEnvDuration("WATCHLIST_CACHE_PERMISSIONS_TTL", c.PermissionsTTL)
	c.CatalogTTL = getEnvDuration("WATCHLIST_CACHE_CATALOG_TTL", c.CatalogTTL)
	c.NewsTTL = getEnvDuration("WATCHLIST_CACHE_NEWS_TTL", c.NewsTTL)

	o := &cfg.Observability
	o.LogLevel = getEnv("WATCHLIST_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("WATCHLIST_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("WATCHLIST_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("WATCHLIST_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("WATCHLIST_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("WATCHLIST_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("WATCHLIST_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("WATCHLIST_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)

	m := &cfg.Maintenance
	m.NotificationSchedule = getEnv("WATCHLIST_NOTIFICATION_PRUNE_SCHEDULE", m.NotificationSchedule)
	m.NotificationRetention = getEnvDuration("WATCHLIST_NOTIFICATION_RETENTION", m.NotificationRetention)
	m.InvitationSchedule = getEnv("WATCHLIST_INVITATION_EXPIRY_SCHEDULE", m.InvitationSchedule)
	m.InvitationRetention = getEnvDuration("WATCHLIST_INVITATION_RETENTION", m.InvitationRetention)
	m.ProposalSchedule = getEnv("WATCHLIST_PROPOSAL_PURGE_SCHEDULE", m.ProposalSchedule)
	m.ProposalRetention = getEnvDuration("WATCHLIST_PROPOSAL_RETENTION", m.ProposalRetention)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be numeric: %q", c.Server.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required (WATCHLIST_DATABASE_URL)")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database max conns must be positive")
	}
	if c.Identity.IssuerURL == "" && c.Identity.JWKSURL == "" {
		return fmt.Errorf("identity issuer URL or JWKS URL is required")
	}
	if c.Providers.RequestsPerSec <= 0 {
		return fmt.Errorf("provider requests per second must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
