package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL",
		"OWNER_ADDRESS", "USDC_CONTRACT", "DISPUTE_PRICE",
		"VOTES_REQUIRED", "RATE_LIMIT_RPM",
	} {
		setEnv(t, key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultDisputePrice, cfg.DisputePrice)
	assert.Equal(t, DefaultVotesRequired, cfg.VotesRequired)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPM)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ENV", "production")
	setEnv(t, "DISPUTE_PRICE", "25.5")
	setEnv(t, "VOTES_REQUIRED", "3")
	setEnv(t, "OWNER_ADDRESS", "0x1234567890123456789012345678901234567890")
	setEnv(t, "USDC_CONTRACT", "0x036CbD53842c5426634e7929541eC2318f3dCF7e")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "25.5", cfg.DisputePrice)
	assert.Equal(t, 3, cfg.VotesRequired)
	assert.Equal(t, "0x1234567890123456789012345678901234567890", cfg.OwnerAddress)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "valid minimal config",
			config:  Config{VotesRequired: 5},
			wantErr: "",
		},
		{
			name: "owner and usdc set together",
			config: Config{
				VotesRequired: 5,
				OwnerAddress:  "0x1234567890123456789012345678901234567890",
				USDCContract:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			},
			wantErr: "",
		},
		{
			name:    "zero votes required",
			config:  Config{VotesRequired: 0},
			wantErr: "VOTES_REQUIRED must be greater than zero",
		},
		{
			name:    "negative votes required",
			config:  Config{VotesRequired: -1},
			wantErr: "VOTES_REQUIRED must be greater than zero",
		},
		{
			name: "owner without usdc contract",
			config: Config{
				VotesRequired: 5,
				OwnerAddress:  "0x1234567890123456789012345678901234567890",
			},
			wantErr: "must be set together",
		},
		{
			name: "usdc contract without owner",
			config: Config{
				VotesRequired: 5,
				USDCContract:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			},
			wantErr: "must be set together",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "ARBITER_TEST_KEY", "value")
	assert.Equal(t, "value", getEnv("ARBITER_TEST_KEY", "fallback"))

	setEnv(t, "ARBITER_TEST_KEY", "")
	assert.Equal(t, "fallback", getEnv("ARBITER_TEST_KEY", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	setEnv(t, "ARBITER_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("ARBITER_TEST_INT", 7))

	setEnv(t, "ARBITER_TEST_INT", "not a number")
	assert.Equal(t, 7, getEnvInt("ARBITER_TEST_INT", 7))

	setEnv(t, "ARBITER_TEST_INT", "")
	assert.Equal(t, 7, getEnvInt("ARBITER_TEST_INT", 7))
}
