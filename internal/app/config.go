package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `usage:"HS256 secret for shopper bearer tokens" flag:"jwt-secret"`
	CartStorage string `default:"redis" usage:"Durable cart storage: redis or file" flag:"cart-storage"`
	CartDir     string `default:"./data/carts" usage:"Cart directory when cart storage is file" flag:"cart-dir"`
	Redis       RedisConfig
	Checkout    CheckoutConfig
	Payment     PaymentConfig
	Kafka       KafkaConfig
	Session     SessionConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig locates the cart cache.
type RedisConfig struct {
	Addr      string        `default:"localhost:6379" usage:"Redis address"`
	Password  string        `usage:"Redis password"`
	DB        int           `default:"0" usage:"Redis database"`
	KeyPrefix string        `default:"storefront" usage:"Cart key prefix" flag:"redis-key-prefix"`
	CartTTL   time.Duration `default:"720h" usage:"Idle cart expiry" flag:"redis-cart-ttl"`
}

// CheckoutConfig holds pricing parameters.
type CheckoutConfig struct {
	CODSurcharge string `default:"49" usage:"Cash on delivery surcharge" flag:"cod-surcharge"`
	Currency     string `default:"INR" usage:"Order currency"`
}

// PaymentConfig selects the payment provider.
type PaymentConfig struct {
	Provider  string        `default:"sandbox" usage:"Payment provider: sandbox or razorpay"`
	KeyID     string        `usage:"Provider public key id" flag:"payment-key-id"`
	KeySecret string        `usage:"Provider secret, also signs success callbacks" flag:"payment-key-secret"`
	BaseURL   string        `usage:"Provider API base URL" flag:"payment-base-url"`
	Timeout   time.Duration `default:"10s" usage:"Provider request timeout" flag:"payment-timeout"`
}

// KafkaConfig locates the event broker. Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers          []string `usage:"Kafka brokers"`
	OrderEventsTopic string   `default:"storefront.orders" usage:"Order lifecycle events topic" flag:"order-events-topic"`
	MilestonesTopic  string   `default:"storefront.milestones" usage:"Courier milestones topic" flag:"milestones-topic"`
	GroupID          string   `default:"storefront-milestones" usage:"Milestone consumer group" flag:"kafka-group-id"`
}

// SessionConfig bounds the in-memory checkout sessions.
type SessionConfig struct {
	Size int           `default:"10000" usage:"Max live checkout sessions" flag:"session-size"`
	TTL  time.Duration `default:"30m" usage:"Idle session eviction" flag:"session-ttl"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CODSurcharge returns the parsed cash on delivery surcharge.
func (c *Config) CODSurcharge() decimal.Decimal {
	d, err := decimal.NewFromString(c.Checkout.CODSurcharge)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	switch c.CartStorage {
	case "redis", "file":
	default:
		return errors.Errorf("unknown cart storage %q", c.CartStorage)
	}
	d, err := decimal.NewFromString(c.Checkout.CODSurcharge)
	if err != nil {
		return errors.Wrap(err, "cod surcharge")
	}
	if d.IsNegative() {
		return errors.New("cod surcharge must not be negative")
	}
	switch c.Payment.Provider {
	case "sandbox":
	case "razorpay":
		if c.Payment.KeyID == "" || c.Payment.KeySecret == "" {
			return errors.New("razorpay requires payment key id and secret")
		}
	default:
		return errors.Errorf("unknown payment provider %q", c.Payment.Provider)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	c.CartStorage = strings.ToLower(c.CartStorage)
	c.Payment.Provider = strings.ToLower(c.Payment.Provider)
}
