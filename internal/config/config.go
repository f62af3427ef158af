// Package config содержит логику чтения конфигурации кассового сервиса.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/minimart-pos/internal/billing"
)

// Config содержит параметры конфигурации кассового сервиса.
type Config struct {
	RunAddress            string `env:"RUN_ADDRESS"`
	DatabaseURI           string `env:"DATABASE_URI"`
	ReceiptPrinterAddress string `env:"RECEIPT_PRINTER_ADDRESS"`
	RedisAddress          string `env:"REDIS_ADDRESS"`

	AuthSecret  string   `env:"AUTH_SECRET"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	InvoicePrefix     string        `env:"INVOICE_PREFIX" envDefault:"NM"`
	InvoiceRetryLimit int           `env:"INVOICE_RETRY_LIMIT" envDefault:"5"`
	StoreCallTimeout  time.Duration `env:"STORE_CALL_TIMEOUT" envDefault:"5s"`

	LoyaltyBlockSize      int64  `env:"LOYALTY_BLOCK_SIZE" envDefault:"100"`
	LoyaltyPointValue     string `env:"LOYALTY_POINT_VALUE" envDefault:"5"`
	LoyaltyEarnDivisor    int64  `env:"LOYALTY_EARN_DIVISOR" envDefault:"100"`
	LoyaltyOverflowPolicy string `env:"LOYALTY_OVERFLOW_POLICY" envDefault:"reject"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	PendingThreshold  time.Duration `env:"PENDING_THRESHOLD" envDefault:"10m"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и
// переменных окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPrinterAddress := cfg.ReceiptPrinterAddress
	envRedisAddress := cfg.RedisAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ReceiptPrinterAddress, "r", "", "receipt printer service address")
	flag.StringVar(&cfg.RedisAddress, "c", "", "redis address for checkout idempotency guard")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPrinterAddress != "" {
		cfg.ReceiptPrinterAddress = envPrinterAddress
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if _, err := cfg.LoyaltyPolicy(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoyaltyPolicy собирает правила программы лояльности из конфигурации.
func (c *Config) LoyaltyPolicy() (billing.Policy, error) {
	overflow, err := billing.ParseOverflowPolicy(c.LoyaltyOverflowPolicy)
	if err != nil {
		return billing.Policy{}, err
	}

	value, err := decimal.NewFromString(c.LoyaltyPointValue)
	if err != nil {
		return billing.Policy{}, fmt.Errorf("parse LOYALTY_POINT_VALUE: %w", err)
	}
	if !value.IsPositive() {
		return billing.Policy{}, errors.New("LOYALTY_POINT_VALUE must be positive")
	}
	if c.LoyaltyBlockSize <= 0 {
		return billing.Policy{}, errors.New("LOYALTY_BLOCK_SIZE must be positive")
	}
	if c.LoyaltyEarnDivisor <= 0 {
		return billing.Policy{}, errors.New("LOYALTY_EARN_DIVISOR must be positive")
	}

	return billing.Policy{
		BlockSize:   c.LoyaltyBlockSize,
		PointValue:  value,
		EarnDivisor: c.LoyaltyEarnDivisor,
		Overflow:    overflow,
	}, nil
}
