package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/wellness-storefront/order-ledger/internal/repository"
	"github.com/wellness-storefront/order-ledger/shared/messaging"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	GatewayCashfree = "cashfree"
	GatewayMock     = "mock"

	NotifierAMQP   = "amqp"
	NotifierInline = "inline"
)

type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	Environment string `mapstructure:"APP_ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	StoreDriver       string        `mapstructure:"STORE_DRIVER"`
	DBHost            string        `mapstructure:"DB_HOST"`
	DBPort            string        `mapstructure:"DB_PORT"`
	DBUser            string        `mapstructure:"DB_USER"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME"`
	DBSSLMode         string        `mapstructure:"DB_SSLMODE"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`

	NotifierDriver   string        `mapstructure:"NOTIFIER_DRIVER"`
	RabbitMQHost     string        `mapstructure:"RABBITMQ_HOST"`
	RabbitMQPort     int           `mapstructure:"RABBITMQ_PORT"`
	RabbitMQUsername string        `mapstructure:"RABBITMQ_USERNAME"`
	RabbitMQPassword string        `mapstructure:"RABBITMQ_PASSWORD"`
	RabbitMQVHost    string        `mapstructure:"RABBITMQ_VHOST"`
	RabbitMQExchange string        `mapstructure:"RABBITMQ_EXCHANGE"`
	RabbitMQRetries  int           `mapstructure:"RABBITMQ_RETRY_COUNT"`
	NotifyTimeout    time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	AdminEmail       string        `mapstructure:"ADMIN_EMAIL"`

	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	IdempotencyTTL time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	GatewayProvider    string        `mapstructure:"GATEWAY_PROVIDER"`
	CashfreeBaseURL    string        `mapstructure:"CASHFREE_BASE_URL"`
	CashfreeFallback   string        `mapstructure:"CASHFREE_FALLBACK_BASE_URL"`
	CashfreeClientID   string        `mapstructure:"CASHFREE_CLIENT_ID"`
	CashfreeSecret     string        `mapstructure:"CASHFREE_CLIENT_SECRET"`
	CashfreeAPIVersion string        `mapstructure:"CASHFREE_API_VERSION"`
	Currency           string        `mapstructure:"CURRENCY"`
	GatewayTimeout     time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	WebhookSecret      string        `mapstructure:"WEBHOOK_SECRET"`
	WebhookTolerance   time.Duration `mapstructure:"WEBHOOK_TOLERANCE"`
	ReturnURLTemplate  string        `mapstructure:"RETURN_URL_TEMPLATE"`

	CommissionHoldingDays   int           `mapstructure:"COMMISSION_HOLDING_DAYS"`
	PayoutThresholdRaw      string        `mapstructure:"PAYOUT_THRESHOLD"`
	PayoutIntervalDays      int           `mapstructure:"PAYOUT_INTERVAL_DAYS"`
	AffiliateCouponDiscount string        `mapstructure:"AFFILIATE_COUPON_DISCOUNT"`
	StalePendingAfter       time.Duration `mapstructure:"STALE_PENDING_AFTER"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT": "8080",
	"APP_ENV":     "development",
	"LOG_LEVEL":   "info",
	"LOG_PRETTY":  false,

	"STORE_DRIVER":         StoreDriverPostgres,
	"DB_HOST":              "localhost",
	"DB_PORT":              "5432",
	"DB_USER":              "postgres",
	"DB_PASSWORD":          "postgres",
	"DB_NAME":              "storefront",
	"DB_SSLMODE":           "disable",
	"DB_MAX_OPEN_CONNS":    20,
	"DB_CONN_MAX_LIFETIME": "30m",

	"NOTIFIER_DRIVER":      NotifierAMQP,
	"RABBITMQ_HOST":        "localhost",
	"RABBITMQ_PORT":        5672,
	"RABBITMQ_USERNAME":    "guest",
	"RABBITMQ_PASSWORD":    "guest",
	"RABBITMQ_VHOST":       "/",
	"RABBITMQ_EXCHANGE":    "order.events",
	"RABBITMQ_RETRY_COUNT": 3,
	"NOTIFY_TIMEOUT":       "5s",
	"ADMIN_EMAIL":          "orders@localhost",

	"REDIS_ADDR":      "",
	"REDIS_PASSWORD":  "",
	"REDIS_DB":        0,
	"IDEMPOTENCY_TTL": "24h",

	"JWT_SECRET": "",
	"JWT_ISSUER": "storefront",
	"JWT_TTL":    "24h",

	"GATEWAY_PROVIDER":           GatewayMock,
	"CASHFREE_BASE_URL":          "https://sandbox.cashfree.com/pg",
	"CASHFREE_FALLBACK_BASE_URL": "",
	"CASHFREE_CLIENT_ID":         "",
	"CASHFREE_CLIENT_SECRET":     "",
	"CASHFREE_API_VERSION":       "2023-08-01",
	"CURRENCY":                   "INR",
	"GATEWAY_TIMEOUT":            "10s",
	"WEBHOOK_SECRET":             "",
	"WEBHOOK_TOLERANCE":          "0s",
	"RETURN_URL_TEMPLATE":        "http://localhost:3000/orders/{order_id}",

	"COMMISSION_HOLDING_DAYS":   14,
	"PAYOUT_THRESHOLD":          "500",
	"PAYOUT_INTERVAL_DAYS":      14,
	"AFFILIATE_COUPON_DISCOUNT": "10",
	"STALE_PENDING_AFTER":       "1h",
}

// Load reads configuration from the environment and, when present, a .env
// file. Environment variables win over the file; every key has a default.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config file read error: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file stat error: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory))
	}
	switch c.NotifierDriver {
	case NotifierAMQP, NotifierInline:
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER_DRIVER must be %q or %q", NotifierAMQP, NotifierInline))
	}
	switch c.GatewayProvider {
	case GatewayCashfree:
		if c.CashfreeClientID == "" || c.CashfreeSecret == "" {
			errs = append(errs, errors.New("CASHFREE_CLIENT_ID and CASHFREE_CLIENT_SECRET are required for the cashfree gateway"))
		}
	case GatewayMock:
	default:
		errs = append(errs, fmt.Errorf("GATEWAY_PROVIDER must be %q or %q", GatewayCashfree, GatewayMock))
	}
	if c.CommissionHoldingDays < 7 || c.CommissionHoldingDays > 14 {
		errs = append(errs, fmt.Errorf("COMMISSION_HOLDING_DAYS must be between 7 and 14, got %d", c.CommissionHoldingDays))
	}
	if c.PayoutIntervalDays <= 0 {
		errs = append(errs, errors.New("PAYOUT_INTERVAL_DAYS must be positive"))
	}
	if _, err := decimal.NewFromString(c.PayoutThresholdRaw); err != nil {
		errs = append(errs, fmt.Errorf("PAYOUT_THRESHOLD is not a number: %w", err))
	}
	if _, err := decimal.NewFromString(c.AffiliateCouponDiscount); err != nil {
		errs = append(errs, fmt.Errorf("AFFILIATE_COUPON_DISCOUNT is not a number: %w", err))
	}
	if !strings.Contains(c.ReturnURLTemplate, "{order_id}") {
		errs = append(errs, errors.New("RETURN_URL_TEMPLATE must contain {order_id}"))
	}

	return errors.Join(errs...)
}

func (c *Config) DB() repository.DBConfig {
	return repository.DBConfig{
		Host:            c.DBHost,
		Port:            c.DBPort,
		User:            c.DBUser,
		Password:        c.DBPassword,
		Name:            c.DBName,
		SSLMode:         c.DBSSLMode,
		MaxOpenConns:    c.DBMaxOpenConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	}
}

func (c *Config) RabbitMQ() messaging.RabbitMQConfig {
	rc := messaging.DefaultRabbitMQConfig()
	rc.Host = c.RabbitMQHost
	rc.Port = c.RabbitMQPort
	rc.Username = c.RabbitMQUsername
	rc.Password = c.RabbitMQPassword
	rc.VHost = c.RabbitMQVHost
	rc.Exchange = c.RabbitMQExchange
	rc.RetryCount = c.RabbitMQRetries
	return rc
}

func (c *Config) HoldingPeriod() time.Duration {
	return time.Duration(c.CommissionHoldingDays) * 24 * time.Hour
}

func (c *Config) PayoutInterval() time.Duration {
	return time.Duration(c.PayoutIntervalDays) * 24 * time.Hour
}

// PayoutThreshold and AffiliateDiscount are checked by Validate.
func (c *Config) PayoutThreshold() decimal.Decimal {
	return decimal.RequireFromString(c.PayoutThresholdRaw)
}

func (c *Config) AffiliateDiscount() decimal.Decimal {
	return decimal.RequireFromString(c.AffiliateCouponDiscount)
}
