// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Protocol settings
	OwnerAddress  string // If set (with USDCContract), the protocol is initialized at startup
	USDCContract  string // Settlement asset reference handed to the protocol on init
	DisputePrice  string // Fee escrowed per dispute, in USDC (e.g. "50")
	VotesRequired int    // Roster size required before voting opens

	// Security
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultDisputePrice  = "50"
	DefaultVotesRequired = 5
	DefaultRateLimit     = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", DefaultPort),
		Env:           getEnv("ENV", DefaultEnv),
		LogLevel:      getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:   os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OwnerAddress:  os.Getenv("OWNER_ADDRESS"),
		USDCContract:  os.Getenv("USDC_CONTRACT"),
		DisputePrice:  getEnv("DISPUTE_PRICE", DefaultDisputePrice),
		VotesRequired: getEnvInt("VOTES_REQUIRED", DefaultVotesRequired),
		RateLimitRPM:  getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.VotesRequired <= 0 {
		return fmt.Errorf("VOTES_REQUIRED must be greater than zero")
	}
	if (c.OwnerAddress == "") != (c.USDCContract == "") {
		return fmt.Errorf("OWNER_ADDRESS and USDC_CONTRACT must be set together")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
