// Package config содержит логику чтения конфигурации витрины аптеки.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress       = "localhost:8080"
	defaultOrderEventsTopic = "pharmacy.orders"
)

// Config содержит параметры конфигурации витрины.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	KafkaBrokers     string `env:"KAFKA_BROKERS"`
	OrderEventsTopic string `env:"ORDER_EVENTS_TOPIC"`

	AuthSecret string `env:"AUTH_SECRET"`
	AdminToken string `env:"ADMIN_TOKEN"`

	CheckoutRPS   float64 `env:"CHECKOUT_RPS"`
	CheckoutBurst int     `env:"CHECKOUT_BURST"`

	SeedDemo bool `env:"SEED_DEMO"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.StringVar(&cfg.KafkaBrokers, "k", "", "comma-separated Kafka brokers for order events")
	flag.StringVar(&cfg.OrderEventsTopic, "t", defaultOrderEventsTopic, "Kafka topic for order events")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth cookies")
	flag.StringVar(&cfg.AdminToken, "admin-token", "", "bearer token for admin routes, disabled when empty")
	flag.Float64Var(&cfg.CheckoutRPS, "checkout-rps", 1, "checkout requests per second per customer")
	flag.IntVar(&cfg.CheckoutBurst, "checkout-burst", 3, "checkout burst per customer")
	flag.BoolVar(&cfg.SeedDemo, "seed", false, "load demo catalog on start")

	flag.Parse()

	// env не трогает поля, для которых переменная не задана.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.OrderEventsTopic == "" {
		cfg.OrderEventsTopic = defaultOrderEventsTopic
	}
	if cfg.CheckoutRPS <= 0 || cfg.CheckoutBurst <= 0 {
		return nil, fmt.Errorf("checkout rate limit must be positive: rps=%v burst=%d", cfg.CheckoutRPS, cfg.CheckoutBurst)
	}

	return cfg, nil
}
