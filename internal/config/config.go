// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Stores
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Redis connection string for shared assessor budget counters (optional)

	// AI risk assessor
	AssessorURL       string        // Endpoint of the external risk assessor (optional, rules-only if not set)
	AssessorAPIKey    string        // Bearer token for the assessor
	AssessorTimeout   time.Duration // Hard timeout for a single assessment call
	AssessorPerMinute int           // Assessment call budget per minute
	AssessorPerDay    int           // Assessment call budget per day

	// Fusion
	FusionStrategy     string // "weighted", "max", "min", "consensus"
	ConsensusThreshold int    // |rule-ai| gap that triggers the consensus fallback score

	// Geo
	GeoDBPath string // Path to a GeoLite2-City .mmdb file (optional, static resolver if not set)

	// Custody
	ReviewHold time.Duration // How long REVIEW transfers stay held
	BlockHold  time.Duration // How long BLOCK transfers stay held

	// Observability
	OTLPEndpoint string

	// Security
	AdminSecret  string // Admin API secret for ground-truth and custody resolution
	RateLimitRPM int
}

// Defaults
const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultAssessorTimeout    = 8 * time.Second
	DefaultAssessorPerMinute  = 30
	DefaultAssessorPerDay     = 5000
	DefaultFusionStrategy     = "weighted"
	DefaultConsensusThreshold = 40
	DefaultReviewHold         = 72 * time.Hour
	DefaultBlockHold          = 168 * time.Hour
	DefaultRateLimit          = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:           os.Getenv("REDIS_URL"),    // Optional, uses in-memory counters if not set
		AssessorURL:        os.Getenv("ASSESSOR_URL"),
		AssessorAPIKey:     os.Getenv("ASSESSOR_API_KEY"),
		AssessorTimeout:    getEnvDuration("ASSESSOR_TIMEOUT", DefaultAssessorTimeout),
		AssessorPerMinute:  int(getEnvInt64("ASSESSOR_PER_MINUTE", DefaultAssessorPerMinute)),
		AssessorPerDay:     int(getEnvInt64("ASSESSOR_PER_DAY", DefaultAssessorPerDay)),
		FusionStrategy:     getEnv("FUSION_STRATEGY", DefaultFusionStrategy),
		ConsensusThreshold: int(getEnvInt64("CONSENSUS_THRESHOLD", DefaultConsensusThreshold)),
		GeoDBPath:          os.Getenv("GEOIP_DB_PATH"),
		ReviewHold:         getEnvDuration("REVIEW_HOLD", DefaultReviewHold),
		BlockHold:          getEnvDuration("BLOCK_HOLD", DefaultBlockHold),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	switch c.FusionStrategy {
	case "weighted", "max", "min", "consensus":
	default:
		return fmt.Errorf("FUSION_STRATEGY must be one of weighted, max, min, consensus (got %q)", c.FusionStrategy)
	}

	if c.AssessorURL != "" && c.AssessorAPIKey == "" {
		return fmt.Errorf("ASSESSOR_API_KEY is required when ASSESSOR_URL is set")
	}

	if c.AssessorPerMinute <= 0 || c.AssessorPerDay <= 0 {
		return fmt.Errorf("assessor call budgets must be positive")
	}

	if c.ReviewHold <= 0 || c.BlockHold <= 0 {
		return fmt.Errorf("custody hold durations must be positive")
	}

	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}

	return nil
}

// AssessorEnabled returns true if an external assessor endpoint is configured.
func (c *Config) AssessorEnabled() bool {
	return c.AssessorURL != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
