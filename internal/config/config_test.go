package config

import (
	"testing"
	"time"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GATEWAY_TIMEOUT", "")
	t.Setenv("BOOKING_MIN_FEE_KES", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.GatewayTimeout != 10*time.Second {
		t.Fatalf("expected 10s gateway timeout, got %s", cfg.GatewayTimeout)
	}
	if cfg.BookingMinFeeKES != 100 {
		t.Fatalf("expected 100 KES minimum fee, got %d", cfg.BookingMinFeeKES)
	}
	if cfg.DefaultCurrency != "KES" {
		t.Fatalf("expected KES default currency, got %s", cfg.DefaultCurrency)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard cors default, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("GATEWAY_TIMEOUT", "4s")
	t.Setenv("BOOKING_MIN_FEE_KES", "250")
	t.Setenv("INTASEND_WEBHOOK_MODE", "Challenge")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://doorstep.example, https://admin.doorstep.example")
	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("unexpected overrides: %s %s", cfg.Port, cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.GatewayTimeout != 4*time.Second {
		t.Fatalf("expected gateway timeout override, got %s", cfg.GatewayTimeout)
	}
	if cfg.BookingMinFeeKES != 250 {
		t.Fatalf("expected min fee override, got %d", cfg.BookingMinFeeKES)
	}
	if cfg.IntasendWebhookMode != "challenge" {
		t.Fatalf("expected normalized webhook mode, got %s", cfg.IntasendWebhookMode)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.doorstep.example" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:                    "development",
			AuthJWTSecret:          "jwt",
			IntasendSecretKey:      "sk",
			IntasendWebhookSecret:  "wh",
			IntasendWebhookMode:    "hmac",
			BookingMinFeeKES:       100,
			SubscriptionTermMonths: 1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing provider secret", func(c *Config) { c.IntasendSecretKey = "" }, true},
		{"fake payments need no provider secret", func(c *Config) { c.IntasendSecretKey = ""; c.AllowFakePayments = true }, false},
		{"fake payments refused in production", func(c *Config) { c.AllowFakePayments = true; c.Env = "production" }, true},
		{"missing jwt secret", func(c *Config) { c.AuthJWTSecret = "" }, true},
		{"missing webhook secret", func(c *Config) { c.IntasendWebhookSecret = "" }, true},
		{"unknown webhook mode", func(c *Config) { c.IntasendWebhookMode = "basic" }, true},
		{"non-positive fee", func(c *Config) { c.BookingMinFeeKES = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if apperr.KindOf(err) != apperr.KindConfiguration {
					t.Fatalf("expected configuration kind, got %s", apperr.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
