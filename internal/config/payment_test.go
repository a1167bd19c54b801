package config

import "testing"

func TestLoadPaymentRequiresAddresses(t *testing.T) {
	t.Setenv("PAY_TO_ADDRESS", "")
	t.Setenv("WALLET_SERVICE_URL", "http://wallet.local")

	if _, err := LoadPayment(); err == nil {
		t.Fatal("LoadPayment() expected error, got nil")
	}
}

func TestLoadPaymentDefaults(t *testing.T) {
	t.Setenv("PAY_TO_ADDRESS", "0xserver")
	t.Setenv("WALLET_SERVICE_URL", "http://wallet.local")

	cfg, err := LoadPayment()
	if err != nil {
		t.Fatalf("LoadPayment() error = %v", err)
	}
	if cfg.Network != "base-sepolia" {
		t.Fatalf("Network = %q, want base-sepolia", cfg.Network)
	}
	if cfg.MaxTimeoutSeconds != 60 {
		t.Fatalf("MaxTimeoutSeconds = %d, want 60", cfg.MaxTimeoutSeconds)
	}
	if cfg.FacilitatorURL != "https://x402.org/facilitator" {
		t.Fatalf("FacilitatorURL = %q", cfg.FacilitatorURL)
	}
	if cfg.FacilitatorMaxRetries != 1 || cfg.FacilitatorRetryDelayMS != 200 {
		t.Fatalf("facilitator retries = %d every %dms", cfg.FacilitatorMaxRetries, cfg.FacilitatorRetryDelayMS)
	}
}
