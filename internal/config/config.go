package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	BaseDomain       string
	AuthCookieSecure bool
	AuthJWTSecret    string
	AuthSessionTTL   time.Duration
	CronSecret       string
	SnowflakeNode    int64

	OTLPEndpoint string

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

	Redis     RedisConfig
	Wompi     WompiConfig
	Stripe    StripeConfig
	Email     EmailConfig
	Reconcile ReconcileConfig
	RateLimit RateLimitConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// WompiConfig carries the redirect gateway credentials. Values are opaque to the core.
type WompiConfig struct {
	BaseURL      string
	PublicKey    string
	PrivateKey   string
	EventsSecret string
	RedirectURL  string
	Timeout      time.Duration
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	PortalReturnPath string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type ReconcileConfig struct {
	Enabled   bool
	Schedule  string
	BatchSize int
}

type RateLimitConfig struct {
	RelayRate  float64
	RelayBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == EnvironmentProduction
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "washbay"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		BaseDomain:       strings.ToLower(strings.TrimSpace(getenv("BASE_DOMAIN", "localhost:3000"))),
		AuthCookieSecure: authCookieSecure,
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthSessionTTL:   getenvDuration("AUTH_SESSION_TTL", 7*24*time.Hour),
		CronSecret:       strings.TrimSpace(getenv("CRON_SECRET", "")),
		SnowflakeNode:    getenvInt64("SNOWFLAKE_NODE", 1),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "washbay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Wompi: WompiConfig{
			BaseURL:      strings.TrimRight(getenv("WOMPI_BASE_URL", "https://sandbox.wompi.co/v1"), "/"),
			PublicKey:    strings.TrimSpace(getenv("WOMPI_PUBLIC_KEY", "")),
			PrivateKey:   strings.TrimSpace(getenv("WOMPI_PRIVATE_KEY", "")),
			EventsSecret: strings.TrimSpace(getenv("WOMPI_EVENTS_SECRET", "")),
			RedirectURL:  strings.TrimSpace(getenv("WOMPI_REDIRECT_URL", "")),
			Timeout:      getenvDuration("WOMPI_TIMEOUT", 15*time.Second),
		},
		Stripe: StripeConfig{
			SecretKey:        strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:    strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			PortalReturnPath: getenv("STRIPE_PORTAL_RETURN_PATH", "/settings/billing"),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@washbay.local"),
		},
		Reconcile: ReconcileConfig{
			Enabled:   getenvBool("RECONCILE_ENABLED", true),
			Schedule:  getenv("RECONCILE_CRON", "0 */5 * * * *"),
			BatchSize: getenvInt("RECONCILE_BATCH_SIZE", 50),
		},
		RateLimit: RateLimitConfig{
			RelayRate:  getenvFloat("RATE_LIMIT_RELAY_RATE", 2),
			RelayBurst: getenvInt("RATE_LIMIT_RELAY_BURST", 20),
		},
	}

	return cfg
}

const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

// Scheme is the protocol used when building absolute tenant URLs.
func (c Config) Scheme() string {
	if c.AuthCookieSecure {
		return "https"
	}
	return "http"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
