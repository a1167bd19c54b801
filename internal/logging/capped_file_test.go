package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"adspot-auction/internal/config"

	"github.com/rs/zerolog/log"
)

func TestCappedFileStartsOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auction.log")
	f, err := openCappedFile(path, 1)
	if err != nil {
		t.Fatalf("open capped file: %v", err)
	}
	defer f.Close()

	chunk := make([]byte, 512*1024)
	for i := 0; i < 3; i++ {
		if _, err := f.Write(chunk); err != nil {
			t.Fatalf("write chunk %d: %v", i, err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat log: %v", err)
	}
	if info.Size() > 1<<20 {
		t.Fatalf("expected log <= 1MB, got %d", info.Size())
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auction.log")
	if err := Init(config.LogConfig{Level: "debug", File: path, MaxMB: 1, Service: "test"}); err != nil {
		t.Fatalf("init logging: %v", err)
	}
	defer Close()

	log.Info().Str("slot_id", "demo").Msg("bid accepted")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"slot_id":"demo"`) {
		t.Fatalf("log file missing entry: %s", raw)
	}
	if !strings.Contains(string(raw), `"service":"test"`) {
		t.Fatalf("log file missing service field: %s", raw)
	}
}
