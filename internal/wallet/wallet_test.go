package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransferPostsAtomicAmount(t *testing.T) {
	var got transferRequest
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transfers" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(transferResponse{Transaction: "0xrefund"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "secret", Asset: "0xusdc", Network: "base-sepolia", Timeout: time.Second})
	c.newKey = func() string { return "key-1" }

	ref, err := c.Transfer(context.Background(), "0xAgentA", decimal.RequireFromString("1.5"))
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if ref != "0xrefund" {
		t.Fatalf("ref = %q", ref)
	}
	if got.Amount != "1500000" || got.To != "0xAgentA" || got.Asset != "0xusdc" {
		t.Fatalf("request = %+v", got)
	}
	if gotKey != "key-1" || got.IdempotencyKey != "key-1" {
		t.Fatalf("idempotency key = %q / %q", gotKey, got.IdempotencyKey)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestTransferRejectsBadInput(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused"})
	if _, err := c.Transfer(context.Background(), "", decimal.NewFromInt(1)); !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.Transfer(context.Background(), "0xA", decimal.Zero); !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("err = %v", err)
	}
}

func TestTransferSurfacesServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}).Transfer(context.Background(), "0xA", decimal.NewFromInt(1))
	if err == nil {
		t.Fatal("Transfer() expected error")
	}
}

func TestTransferWithoutTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}).Transfer(context.Background(), "0xA", decimal.NewFromInt(1))
	if !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("err = %v, want ErrNoTransaction", err)
	}
}
