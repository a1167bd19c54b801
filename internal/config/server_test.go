package config

import "testing"

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.SettlementLock != "local" {
		t.Fatalf("SettlementLock = %q, want local", cfg.SettlementLock)
	}
	if cfg.SweepIntervalMS != 1000 {
		t.Fatalf("SweepIntervalMS = %d, want 1000", cfg.SweepIntervalMS)
	}
}

func TestLoadServerOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/auction?sslmode=disable")
	t.Setenv("SETTLEMENT_LOCK", "postgres")
	t.Setenv("ADMIN_API_KEY", "ops")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.SettlementLock != "postgres" || cfg.AdminAPIKey != "ops" {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
}
