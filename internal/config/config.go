package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Dedup policies for repeated dispatch of the same incident.
const (
	DedupPolicyOff  = "off"
	DedupPolicyOnce = "once"
)

// Config - application configuration
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// Redis Config
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass     string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Postgres pool
	DBMaxConns int32 `env:"DB_MAX_CONNS" envDefault:"10"`

	// Dispatch Config
	DispatchRadiusKm        float64       `env:"DISPATCH_RADIUS_KM" envDefault:"5.0"`
	DispatchTopK            int           `env:"DISPATCH_TOP_K" envDefault:"3"`
	DispatchTimeout         time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"30s"`
	DispatchDedupPolicy     string        `env:"DISPATCH_DEDUP_POLICY" envDefault:"off"`
	DispatchDedupTTL        time.Duration `env:"DISPATCH_DEDUP_TTL" envDefault:"24h"`
	FanoutMaxConcurrency    int           `env:"FANOUT_MAX_CONCURRENCY" envDefault:"16"`
	IncidentCacheTTL        time.Duration `env:"INCIDENT_CACHE_TTL" envDefault:"5m"`
	AuditWriteTimeout       time.Duration `env:"AUDIT_WRITE_TIMEOUT" envDefault:"5s"`
	NotificationPushEnabled bool          `env:"NOTIFICATION_PUSH_ENABLED" envDefault:"true"`

	// SMTP Config
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername  string `env:"SMTP_USERNAME"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	SMTPFromEmail string `env:"SMTP_FROM_EMAIL"`
	SMTPFromName  string `env:"SMTP_FROM_NAME" envDefault:"Emergency Dispatch"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS"`
}

// LoadConfig loads configuration from the environment and an optional .env file
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "json"),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:               os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 getEnvAsInt("REDIS_DB", 0),
		RedisPoolSize:           getEnvAsInt("REDIS_POOL_SIZE", 10),
		DBMaxConns:              int32(getEnvAsInt("DB_MAX_CONNS", 10)),
		DispatchRadiusKm:        getEnvAsFloat("DISPATCH_RADIUS_KM", 5.0),
		DispatchTopK:            getEnvAsInt("DISPATCH_TOP_K", 3),
		DispatchTimeout:         getEnvAsDuration("DISPATCH_TIMEOUT", 30*time.Second),
		DispatchDedupPolicy:     strings.ToLower(getEnv("DISPATCH_DEDUP_POLICY", DedupPolicyOff)),
		DispatchDedupTTL:        getEnvAsDuration("DISPATCH_DEDUP_TTL", 24*time.Hour),
		FanoutMaxConcurrency:    getEnvAsInt("FANOUT_MAX_CONCURRENCY", 16),
		IncidentCacheTTL:        getEnvAsDuration("INCIDENT_CACHE_TTL", 5*time.Minute),
		AuditWriteTimeout:       getEnvAsDuration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
		NotificationPushEnabled: getEnvAsBool("NOTIFICATION_PUSH_ENABLED", true),
		SMTPHost:                os.Getenv("SMTP_HOST"),
		SMTPPort:                getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername:            os.Getenv("SMTP_USERNAME"),
		SMTPPassword:            os.Getenv("SMTP_PASSWORD"),
		SMTPFromEmail:           os.Getenv("SMTP_FROM_EMAIL"),
		SMTPFromName:            getEnv("SMTP_FROM_NAME", "Emergency Dispatch"),
		WebhookURL:              os.Getenv("WEBHOOK_URL"),
		WebhookSecret:           os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:          getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:       getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:        getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),
	}

	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		cfg.APIKeys = strings.Split(apiKeysStr, ",")
		for i, key := range cfg.APIKeys {
			cfg.APIKeys[i] = strings.TrimSpace(key)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the dispatch tunables.
func (c *Config) Validate() error {
	if math.IsNaN(c.DispatchRadiusKm) || c.DispatchRadiusKm <= 0 {
		return fmt.Errorf("DISPATCH_RADIUS_KM must be positive, got %v", c.DispatchRadiusKm)
	}
	if c.DispatchTopK < 1 {
		return fmt.Errorf("DISPATCH_TOP_K must be at least 1, got %d", c.DispatchTopK)
	}
	switch c.DispatchDedupPolicy {
	case DedupPolicyOff, DedupPolicyOnce:
	default:
		return fmt.Errorf("unknown DISPATCH_DEDUP_POLICY %q", c.DispatchDedupPolicy)
	}
	if c.FanoutMaxConcurrency < 1 {
		return fmt.Errorf("FANOUT_MAX_CONCURRENCY must be at least 1, got %d", c.FanoutMaxConcurrency)
	}
	return nil
}

// SMTPEnabled reports whether the email channel can be built.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFromEmail != ""
}

// getEnv returns the environment variable or the default value
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns the environment variable as int or the default value
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration returns the environment variable as time.Duration or the default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
