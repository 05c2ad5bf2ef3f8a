package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Addr:            "0.0.0.0:8080",
		Storage:         StoragePostgres,
		DatabaseURL:     "postgres://localhost/promo",
		Stacking:        "stack",
		RedeemTimeout:   5 * time.Second,
		CouponRateLimit: CouponRateLimitConfig{Max: 10, Window: time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "memory needs no database", mutate: func(c *Config) { c.Storage = StorageMemory; c.DatabaseURL = "" }},
		{name: "postgres needs database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL is required"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = "redis" }, wantErr: `unknown storage "redis"`},
		{name: "exclusive stacking", mutate: func(c *Config) { c.Stacking = "exclusive" }},
		{name: "unknown stacking", mutate: func(c *Config) { c.Stacking = "best" }, wantErr: "stacking"},
		{name: "negative timeout", mutate: func(c *Config) { c.RedeemTimeout = -time.Second }, wantErr: "redeem timeout"},
		{name: "coupon limit disabled", mutate: func(c *Config) { c.CouponRateLimit = CouponRateLimitConfig{} }},
		{name: "coupon limit without window", mutate: func(c *Config) { c.CouponRateLimit.Window = 0 }, wantErr: "window must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	custom := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	custom.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", custom.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", custom.Addr)
}
