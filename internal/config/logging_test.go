package config

import "testing"

func TestLoadLogDefaults(t *testing.T) {
	cfg, err := LoadLog()
	if err != nil {
		t.Fatalf("LoadLog() error = %v", err)
	}
	if cfg.Level != "info" || cfg.Service != "auction-server" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxMB != 10 || cfg.HTTPBodies {
		t.Fatalf("unexpected file/body defaults: %+v", cfg)
	}
}

func TestLoadLogParse(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("LOG_FILE", "/tmp/auction.log")
	t.Setenv("LOG_HTTP_BODIES", "true")

	cfg, err := LoadLog()
	if err != nil {
		t.Fatalf("LoadLog() error = %v", err)
	}
	if cfg.Level != "debug" || !cfg.Pretty || cfg.File != "/tmp/auction.log" || !cfg.HTTPBodies {
		t.Fatalf("unexpected log config: %+v", cfg)
	}
}

func TestLoadLogRejectsBadMaxMB(t *testing.T) {
	t.Setenv("LOG_MAX_MB", "lots")
	if _, err := LoadLog(); err == nil {
		t.Fatal("expected parse error for LOG_MAX_MB")
	}
}
