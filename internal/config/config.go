package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Bearer tokens are issued by the hosted auth platform and signed with a shared secret.
	AuthJWTSecret string
	AuthJWTIssuer string

	IntasendSecretKey     string
	IntasendBaseURL       string
	IntasendWebhookSecret string
	IntasendWebhookMode   string
	GatewayTimeout        time.Duration
	AllowFakePayments     bool
	STKPromptsPerHour     int
	WebhookRatePerSecond  int
	WebhookBurst          int

	BookingMinFeeKES       int64
	DefaultCurrency        string
	SubscriptionTermMonths int

	CORSAllowedOrigins []string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	EventsQueueURL      string
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		AuthJWTIssuer: getEnv("AUTH_JWT_ISSUER", ""),

		IntasendSecretKey:     getEnv("INTASEND_SECRET_KEY", ""),
		IntasendBaseURL:       getEnv("INTASEND_BASE_URL", "https://payment.intasend.com"),
		IntasendWebhookSecret: getEnv("INTASEND_WEBHOOK_SECRET", ""),
		IntasendWebhookMode:   strings.ToLower(strings.TrimSpace(getEnv("INTASEND_WEBHOOK_MODE", "hmac"))),
		GatewayTimeout:        getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),
		AllowFakePayments:     getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),
		STKPromptsPerHour:     getEnvAsInt("STK_PROMPTS_PER_HOUR", 3),
		WebhookRatePerSecond:  getEnvAsInt("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookBurst:          getEnvAsInt("WEBHOOK_BURST", 40),

		BookingMinFeeKES:       int64(getEnvAsInt("BOOKING_MIN_FEE_KES", 100)),
		DefaultCurrency:        strings.ToUpper(getEnv("DEFAULT_CURRENCY", "KES")),
		SubscriptionTermMonths: getEnvAsInt("SUBSCRIPTION_TERM_MONTHS", 1),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		AWSRegion:           getEnv("AWS_REGION", "af-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),
		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:     getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
	}
}

// Validate reports missing operator-supplied secrets so the API refuses to
// start instead of failing per request.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AuthJWTSecret) == "" {
		return apperr.Configuration("AUTH_JWT_SECRET is not set")
	}
	if !c.AllowFakePayments && strings.TrimSpace(c.IntasendSecretKey) == "" {
		return apperr.Configuration("INTASEND_SECRET_KEY is not set")
	}
	if strings.TrimSpace(c.IntasendWebhookSecret) == "" {
		return apperr.Configuration("INTASEND_WEBHOOK_SECRET is not set")
	}
	switch c.IntasendWebhookMode {
	case "hmac", "challenge":
	default:
		return apperr.Configuration("INTASEND_WEBHOOK_MODE must be hmac or challenge, got %q", c.IntasendWebhookMode)
	}
	if c.AllowFakePayments && c.Env == "production" {
		return apperr.Configuration("ALLOW_FAKE_PAYMENTS cannot be enabled in production")
	}
	if c.BookingMinFeeKES <= 0 {
		return apperr.Configuration("BOOKING_MIN_FEE_KES must be positive")
	}
	if c.SubscriptionTermMonths <= 0 {
		return apperr.Configuration("SUBSCRIPTION_TERM_MONTHS must be positive")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
