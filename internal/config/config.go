package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ModeTest = "test"
	ModeLive = "live"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// ReceiptBaseURL is where customers land after a confirmed payment;
	// the order hash is appended.
	ReceiptBaseURL string

	// Mode selects which Paystack credential pair is used. It is resolved
	// once at load time and threaded through explicitly.
	Mode string

	Paystack PaystackConfig

	RateLimit RateLimitConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

// RateLimitConfig controls the Redis-backed webhook limiter and the
// reconcile sweep lock. Both are off until a Redis address is configured.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// WebhookRate is tokens per second refilled into each source bucket;
	// WebhookBurst is the bucket capacity.
	WebhookRate  float64
	WebhookBurst int

	SweepLockTTLSeconds int
}

// PaystackConfig carries the per-mode API credential pairs.
type PaystackConfig struct {
	BaseURL       string
	TestPublicKey string
	TestSecretKey string
	LivePublicKey string
	LiveSecretKey string
}

// SecretKey returns the secret key for the given mode. Empty means the
// merchant has not configured credentials for that mode.
func (p PaystackConfig) SecretKey(mode string) string {
	if mode == ModeLive {
		return strings.TrimSpace(p.LiveSecretKey)
	}
	return strings.TrimSpace(p.TestSecretKey)
}

// PublicKey returns the public key for the given mode.
func (p PaystackConfig) PublicKey(mode string) string {
	if mode == ModeLive {
		return strings.TrimSpace(p.LivePublicKey)
	}
	return strings.TrimSpace(p.TestPublicKey)
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "paystack-gateway"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		ReceiptBaseURL: getenv("RECEIPT_BASE_URL", "/receipt"),
		Mode:           normalizeMode(getenv("PAYMENT_MODE", ModeTest)),
		Paystack: PaystackConfig{
			BaseURL:       getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			TestPublicKey: getenv("PAYSTACK_TEST_PUBLIC_KEY", ""),
			TestSecretKey: getenv("PAYSTACK_TEST_SECRET_KEY", ""),
			LivePublicKey: getenv("PAYSTACK_LIVE_PUBLIC_KEY", ""),
			LiveSecretKey: getenv("PAYSTACK_LIVE_SECRET_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:             getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:           getenv("RATE_LIMIT_REDIS_ADDR", ""),
			RedisPassword:       getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:             getenvInt("RATE_LIMIT_REDIS_DB", 0),
			WebhookRate:         getenvFloat("RATE_LIMIT_WEBHOOK_RATE", 10),
			WebhookBurst:        getenvInt("RATE_LIMIT_WEBHOOK_BURST", 50),
			SweepLockTTLSeconds: getenvInt("RATE_LIMIT_SWEEP_LOCK_TTL", 300),
		},
		DBType:            getenv("DB_TYPE", "sqlite"),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "paystack_gateway"),
		DBUser:            getenv("DB_USER", ""),
		DBPassword:        getenv("DB_PASSWORD", ""),
		DBSSLMode:         getenv("DB_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DB_CONN_MAX_IDLE_TIME", 600),
	}
}

func normalizeMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == ModeLive {
		return ModeLive
	}
	return ModeTest
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}
