// Package config содержит логику чтения конфигурации POS-сервиса.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации POS-сервиса.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	PromotionsAddress string        `env:"PROMOTIONS_ADDRESS"`
	AuthSecret        string        `env:"AUTH_SECRET"`
	ChallengeTTL      time.Duration `env:"CHALLENGE_TTL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPromotionsAddress := cfg.PromotionsAddress
	envAuthSecret := cfg.AuthSecret
	envChallengeTTL := cfg.ChallengeTTL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PromotionsAddress, "r", "", "promotions service address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "employee cookie signing secret")
	flag.DurationVar(&cfg.ChallengeTTL, "t", 30*time.Minute, "authorization challenge TTL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPromotionsAddress != "" {
		cfg.PromotionsAddress = envPromotionsAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envChallengeTTL != 0 {
		cfg.ChallengeTTL = envChallengeTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 30 * time.Minute
	}

	return cfg, nil
}
