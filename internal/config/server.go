package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	// Empty DSN runs the server on the in-memory record store.
	PostgresDSN string `env:"POSTGRES_DSN"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey   string `env:"ADMIN_API_KEY"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	SettlementLock  string `env:"SETTLEMENT_LOCK" envDefault:"local"`
	SweepIntervalMS int    `env:"SWEEP_INTERVAL_MS" envDefault:"1000"`
	ShutdownGraceMS int    `env:"SHUTDOWN_GRACE_MS" envDefault:"10000"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
