package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	GatewaySandbox    = "SANDBOX"
	GatewayProduction = "PRODUCTION"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	PublicBaseURL string

	Telemetry TelemetryConfig
	Gateway   GatewayConfig
	Webhook   WebhookConfig
	Email     EmailConfig
	Redis     RedisConfig
	Reconcile ReconcileConfig

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

// GatewayConfig carries PhonePe client credentials and endpoints.
type GatewayConfig struct {
	ClientID      string
	ClientSecret  string
	ClientVersion string
	Environment   string
	AuthURL       string
	APIBaseURL    string
}

// WebhookConfig holds the credentials PhonePe hashes into the webhook Authorization header.
type WebhookConfig struct {
	Username string
	Password string
}

// Enabled reports whether webhook authentication is configured.
func (w WebhookConfig) Enabled() bool {
	return w.Username != "" || w.Password != ""
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SupportEmail string
}

// TelemetryConfig controls logging and OTLP export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OTLPEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ReconcileConfig struct {
	Enabled    bool
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
	RunTimeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	gatewayEnv := strings.ToUpper(strings.TrimSpace(getenv("PHONEPE_ENV", GatewaySandbox)))
	authURL, apiURL := gatewayURLs(gatewayEnv)

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "racepay"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(getenv("PUBLIC_BASE_URL", "")), "/"),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OTLPEnabled:   getenvBool("OTEL_ENABLED", false),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Gateway: GatewayConfig{
			ClientID:      strings.TrimSpace(getenv("PHONEPE_CLIENT_ID", "")),
			ClientSecret:  strings.TrimSpace(getenv("PHONEPE_CLIENT_SECRET", "")),
			ClientVersion: strings.TrimSpace(getenv("PHONEPE_CLIENT_VERSION", "")),
			Environment:   gatewayEnv,
			AuthURL:       getenv("PHONEPE_AUTH_URL", authURL),
			APIBaseURL:    strings.TrimRight(getenv("PHONEPE_API_URL", apiURL), "/"),
		},
		Webhook: WebhookConfig{
			Username: strings.TrimSpace(getenv("PHONEPE_WEBHOOK_USERNAME", "")),
			Password: strings.TrimSpace(getenv("PHONEPE_WEBHOOK_PASSWORD", "")),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "Ravulapalem Run <noreply@ravulapalemrun.com>"),
			SupportEmail: getenv("SUPPORT_EMAIL", "support@ravulapalemrun.com"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Reconcile: ReconcileConfig{
			Enabled:    getenvBool("RECONCILE_ENABLED", true),
			Interval:   getenvDuration("RECONCILE_INTERVAL", 2*time.Minute),
			StaleAfter: getenvDuration("RECONCILE_STALE_AFTER", 10*time.Minute),
			BatchSize:  getenvInt("RECONCILE_BATCH_SIZE", 25),
			RunTimeout: getenvDuration("RECONCILE_RUN_TIMEOUT", time.Minute),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "racepay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
	}

	return cfg
}

// Validate rejects a configuration that lacks fields the payment flow cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.Gateway.ClientID == "" {
		errs = append(errs, errors.New("PHONEPE_CLIENT_ID is required"))
	}
	if c.Gateway.ClientSecret == "" {
		errs = append(errs, errors.New("PHONEPE_CLIENT_SECRET is required"))
	}
	if c.Gateway.ClientVersion == "" {
		errs = append(errs, errors.New("PHONEPE_CLIENT_VERSION is required"))
	}
	switch c.Gateway.Environment {
	case GatewaySandbox, GatewayProduction:
	default:
		errs = append(errs, fmt.Errorf("PHONEPE_ENV must be %s or %s, got %q", GatewaySandbox, GatewayProduction, c.Gateway.Environment))
	}
	if c.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	}
	if (c.Webhook.Username == "") != (c.Webhook.Password == "") {
		errs = append(errs, errors.New("PHONEPE_WEBHOOK_USERNAME and PHONEPE_WEBHOOK_PASSWORD must be set together"))
	}
	if c.Reconcile.Enabled && c.Reconcile.Interval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c Config) IsGatewaySandbox() bool {
	return c.Gateway.Environment == GatewaySandbox
}

func gatewayURLs(env string) (string, string) {
	if env == GatewayProduction {
		return "https://api.phonepe.com/apis/identity-manager/v1/oauth/token",
			"https://api.phonepe.com/apis/pg"
	}
	return "https://api-preprod.phonepe.com/apis/pg-sandbox/v1/oauth/token",
		"https://api-preprod.phonepe.com/apis/pg-sandbox"
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
