package app

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/xenking/storefront/internal/storage/redis"
)

func validConfig() Config {
	return Config{
		Addr:        "0.0.0.0:8080",
		DatabaseURL: "postgres://localhost/storefront",
		CartStorage: "redis",
		Checkout:    CheckoutConfig{CODSurcharge: "49", Currency: "INR"},
		Payment:     PaymentConfig{Provider: "sandbox"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL is required"},
		{name: "bad cart storage", mutate: func(c *Config) { c.CartStorage = "memcached" }, wantErr: "unknown cart storage"},
		{name: "bad surcharge", mutate: func(c *Config) { c.Checkout.CODSurcharge = "lots" }, wantErr: "cod surcharge"},
		{name: "negative surcharge", mutate: func(c *Config) { c.Checkout.CODSurcharge = "-1" }, wantErr: "must not be negative"},
		{name: "razorpay without keys", mutate: func(c *Config) { c.Payment.Provider = "razorpay" }, wantErr: "razorpay requires"},
		{
			name: "razorpay with keys",
			mutate: func(c *Config) {
				c.Payment = PaymentConfig{Provider: "razorpay", KeyID: "rzp_test", KeySecret: "secret"}
			},
		},
		{name: "unknown provider", mutate: func(c *Config) { c.Payment.Provider = "stripe" }, wantErr: "unknown payment provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.CartStorage = "FILE"
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "file", cfg.CartStorage)
}

func TestConfig_CODSurcharge(t *testing.T) {
	cfg := validConfig()
	cfg.Checkout.CODSurcharge = "49.50"
	assert.True(t, decimal.RequireFromString("49.5").Equal(cfg.CODSurcharge()))
}

func TestConfig_DefaultCartKey(t *testing.T) {
	field, ok := reflect.TypeOf(RedisConfig{}).FieldByName("KeyPrefix")
	require.True(t, ok)

	store := redisstore.NewCartStore(nil, field.Tag.Get("default"), 0)
	assert.Equal(t, "storefront:cart:u1", store.Key("u1"))
}
