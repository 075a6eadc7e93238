// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	I18n        I18nConfig
	Frontend    FrontendConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Database       string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    int
	ConnectTimeout int // in seconds
	LogLevel       string
}

type JWTConfig struct {
	SecretKey string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Seconds a processed webhook event id is remembered.
	WebhookTTL int
}

func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers       []string
	PurchaseTopic string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	WebhookArchiveBucket string
}

func (a AWSConfig) Enabled() bool {
	return a.AccessKeyID != "" && a.WebhookArchiveBucket != ""
}

// PaymentConfig is handed to the gateway adapters at construction time.
type PaymentConfig struct {
	CardSecretKey         string
	CardWebhookSecret     string
	RedirectSecretKey     string
	RedirectIsTest        bool
	RedirectWebhookSecret string
	RedirectAPIURL        string
	PlatformFeeRate       decimal.Decimal
	Currency              string
	GatewayTimeout        int // in seconds
}

type I18nConfig struct {
	DefaultLocale string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	feeRate, err := decimal.NewFromString(getEnv("PLATFORM_FEE_RATE", "0.15"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_RATE: %w", err)
	}

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", ""),
			Database:       getEnv("DB_NAME", "idea_market"),
			SSLMode:        getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:   getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:    getEnvAsInt("DB_MAX_LIFETIME", 300),
			ConnectTimeout: getEnvAsInt("DB_CONNECT_TIMEOUT", 5),
			LogLevel:       getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Redis: RedisConfig{
			Host:       getEnv("REDIS_HOST", ""),
			Port:       getEnv("REDIS_PORT", "6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			WebhookTTL: getEnvAsInt("REDIS_WEBHOOK_TTL", 72*3600),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvAsList("KAFKA_BROKERS"),
			PurchaseTopic: getEnv("KAFKA_PURCHASE_TOPIC", "purchase.completed"),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "ap-northeast-2"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			WebhookArchiveBucket: getEnv("AWS_WEBHOOK_ARCHIVE_BUCKET", ""),
		},
		Payment: PaymentConfig{
			CardSecretKey:         getEnv("CARD_SECRET_KEY", ""),
			CardWebhookSecret:     getEnv("CARD_WEBHOOK_SECRET", ""),
			RedirectSecretKey:     getEnv("REDIRECT_SECRET_KEY", ""),
			RedirectIsTest:        getEnvAsBool("REDIRECT_IS_TEST", true),
			RedirectWebhookSecret: getEnv("REDIRECT_WEBHOOK_SECRET", ""),
			RedirectAPIURL:        getEnv("REDIRECT_API_URL", "https://api.tosspayments.com"),
			PlatformFeeRate:       feeRate,
			Currency:              strings.ToLower(getEnv("PAYMENT_CURRENCY", "krw")),
			GatewayTimeout:        getEnvAsInt("GATEWAY_TIMEOUT_SECONDS", 10),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Environment == "production" {
		if c.Payment.CardSecretKey == "" || c.Payment.CardWebhookSecret == "" {
			return fmt.Errorf("card gateway secret key and webhook secret are required in production")
		}
		if c.Payment.RedirectSecretKey == "" {
			return fmt.Errorf("redirect gateway secret key is required in production")
		}
	}

	if c.Payment.PlatformFeeRate.IsNegative() || c.Payment.PlatformFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("platform fee rate must be in [0, 1), got %s", c.Payment.PlatformFeeRate)
	}

	if key := c.Payment.RedirectSecretKey; key != "" {
		if c.Payment.RedirectIsTest && !strings.HasPrefix(key, "test_") {
			return fmt.Errorf("redirect gateway in test mode requires a test secret key")
		}
		if !c.Payment.RedirectIsTest && !strings.HasPrefix(key, "live_") {
			return fmt.Errorf("redirect gateway in live mode requires a live secret key")
		}
	}

	if c.Payment.GatewayTimeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
