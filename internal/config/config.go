// Package config содержит логику чтения конфигурации кассового сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации кассового сервиса.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	DataDir       string `env:"DATA_DIR"`
	Timezone      string `env:"TIMEZONE"`
	SessionSecret string `env:"SESSION_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envDataDir := cfg.DataDir
	envTimezone := cfg.Timezone
	envSessionSecret := cfg.SessionSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (empty means JSON file storage)")
	flag.StringVar(&cfg.DataDir, "s", "data", "directory for JSON file storage")
	flag.StringVar(&cfg.Timezone, "t", "Africa/Cairo", "canonical IANA timezone of the register")
	flag.StringVar(&cfg.SessionSecret, "k", "", "secret key for session cookie signing")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envDataDir != "" {
		cfg.DataDir = envDataDir
	}
	if envTimezone != "" {
		cfg.Timezone = envTimezone
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Africa/Cairo"
	}

	return cfg, nil
}
