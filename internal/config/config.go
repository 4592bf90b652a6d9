package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server   ServerConfig
	Session  SessionConfig
	Redis    RedisConfig
	DynamoDB DynamoDBConfig
	Stripe   StripeConfig
	OTP      OTPConfig
	OAuth    OAuthConfig
}

type ServerConfig struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	BaseURL        string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

type SessionConfig struct {
	Store        string        `env:"SESSION_STORE" envDefault:"redis"`
	SecretKey    string        `env:"SESSION_SECRET_KEY,required"`
	CookieName   string        `env:"SESSION_COOKIE_NAME" envDefault:"storefront_session"`
	TTL          time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SecureCookie bool          `env:"SESSION_SECURE_COOKIE" envDefault:"false"`
	FlowIdleTTL  time.Duration `env:"FLOW_IDLE_TTL" envDefault:"30m"`
}

type RedisConfig struct {
	Endpoint string `env:"REDIS_ENDPOINT" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type DynamoDBConfig struct {
	Enabled         bool          `env:"DYNAMODB_ENABLED" envDefault:"true"`
	Endpoint        string        `env:"DYNAMODB_ENDPOINT"`
	Region          string        `env:"DYNAMODB_REGION" envDefault:"us-east-1"`
	TableName       string        `env:"DYNAMODB_TABLE_NAME" envDefault:"StorefrontTable"`
	IntentRecordTTL time.Duration `env:"PAYMENT_INTENT_RECORD_TTL" envDefault:"720h"`
}

// StripeConfig has no usable defaults for the keys.
type StripeConfig struct {
	SecretKey      string `env:"STRIPE_SECRET_KEY,required"`
	PublishableKey string `env:"STRIPE_PUBLISHABLE_KEY,required"`
	Currency       string `env:"STRIPE_CURRENCY" envDefault:"usd"`
	APIBaseURL     string `env:"STRIPE_API_BASE_URL"`
}

type OTPConfig struct {
	SendURL   string        `env:"OTP_SEND_URL,required"`
	VerifyURL string        `env:"OTP_VERIFY_URL,required"`
	Timeout   time.Duration `env:"OTP_TIMEOUT" envDefault:"10s"`
}

type OAuthConfig struct {
	GoogleClientID string `env:"GOOGLE_CLIENT_ID"`
}

// Load reads an optional .env file from the working directory, then parses
// the environment. Variables already set take precedence over the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Session.SecretKey) < 32 {
		return fmt.Errorf("SESSION_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	switch c.Session.Store {
	case SessionStoreRedis, SessionStoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreRedis, SessionStoreMemory, c.Session.Store)
	}

	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.Server.BaseURL)
	}

	for name, raw := range map[string]string{"OTP_SEND_URL": c.OTP.SendURL, "OTP_VERIFY_URL": c.OTP.VerifyURL} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.DynamoDB.Enabled && c.DynamoDB.TableName == "" {
		return fmt.Errorf("DYNAMODB_TABLE_NAME is required when DynamoDB is enabled")
	}
	return nil
}
