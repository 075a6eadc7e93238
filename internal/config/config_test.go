package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment: "development",
		JWT:         JWTConfig{SecretKey: "dev-secret"},
		Payment: PaymentConfig{
			RedirectSecretKey: "test_sk_abc",
			RedirectIsTest:    true,
			PlatformFeeRate:   decimal.RequireFromString("0.15"),
			Currency:          "krw",
			GatewayTimeout:    10,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero fee rate", mutate: func(c *Config) { c.Payment.PlatformFeeRate = decimal.Zero }},
		{
			name:    "negative fee rate",
			mutate:  func(c *Config) { c.Payment.PlatformFeeRate = decimal.RequireFromString("-0.01") },
			wantErr: "platform fee rate",
		},
		{
			name:    "fee rate of one",
			mutate:  func(c *Config) { c.Payment.PlatformFeeRate = decimal.NewFromInt(1) },
			wantErr: "platform fee rate",
		},
		{
			name:    "live key in test mode",
			mutate:  func(c *Config) { c.Payment.RedirectSecretKey = "live_sk_abc" },
			wantErr: "test secret key",
		},
		{
			name:    "test key in live mode",
			mutate:  func(c *Config) { c.Payment.RedirectIsTest = false },
			wantErr: "live secret key",
		},
		{name: "no redirect key", mutate: func(c *Config) { c.Payment.RedirectSecretKey = "" }},
		{
			name:    "zero gateway timeout",
			mutate:  func(c *Config) { c.Payment.GatewayTimeout = 0 },
			wantErr: "gateway timeout",
		},
		{
			name: "production default jwt secret",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.JWT.SecretKey = "your-secret-key-change-in-production"
			},
			wantErr: "JWT secret",
		},
		{
			name: "production without card secrets",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Database.Password = "pw"
			},
			wantErr: "card gateway",
		},
		{
			name: "production fully configured",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Database.Password = "pw"
				c.Payment.CardSecretKey = "sk_live_abc"
				c.Payment.CardWebhookSecret = "whsec_abc"
				c.Payment.RedirectSecretKey = "live_sk_abc"
				c.Payment.RedirectIsTest = false
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("PLATFORM_FEE_RATE", "0.2")
	t.Setenv("PAYMENT_CURRENCY", "KRW")
	t.Setenv("REDIRECT_SECRET_KEY", "test_sk_env")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Payment.PlatformFeeRate.Equal(decimal.RequireFromString("0.2")))
	assert.Equal(t, "krw", cfg.Payment.Currency)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
}

func TestLoadRejectsMalformedFeeRate(t *testing.T) {
	t.Setenv("PLATFORM_FEE_RATE", "fifteen percent")

	_, err := Load()
	assert.ErrorContains(t, err, "PLATFORM_FEE_RATE")
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:           "db",
		Port:           "5432",
		User:           "settle",
		Password:       "pw",
		Database:       "idea_market",
		SSLMode:        "require",
		ConnectTimeout: 5,
	}

	dsn := d.DSN()
	assert.Contains(t, dsn, "host=db port=5432 user=settle password=pw dbname=idea_market sslmode=require")
	assert.Contains(t, dsn, "connect_timeout=5")
	assert.Contains(t, dsn, "TimeZone=UTC")
}
