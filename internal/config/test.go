package config

import "github.com/caarlos0/env/v11"

// TestConfig drives the Postgres-backed tests; they skip when the DSN is
// missing.
type TestConfig struct {
	TestPostgresDSN string `env:"TEST_POSTGRES_DSN,required,notEmpty"`
	// MigrationsDir overrides the upward search for ./migrations.
	MigrationsDir string `env:"TEST_MIGRATIONS_DIR"`
	SchemaPrefix  string `env:"TEST_SCHEMA_PREFIX" envDefault:"auction_test"`
}

func LoadTest() (TestConfig, error) {
	var cfg TestConfig
	err := env.Parse(&cfg)
	return cfg, err
}
