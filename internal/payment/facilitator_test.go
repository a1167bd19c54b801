package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/x402-go"
	"github.com/mark3labs/x402-go/facilitator"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type facilitatorCall struct {
	Path         string
	Auth         string
	Requirements x402.PaymentRequirement
}

type fakeFacilitatorService struct {
	mu    sync.Mutex
	calls []facilitatorCall
}

func (f *fakeFacilitatorService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
	}
	if r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, facilitatorCall{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Requirements: body.PaymentRequirements})
	f.mu.Unlock()

	switch r.URL.Path {
	case "/verify":
		if body.PaymentRequirements.MaxAmountRequired == "0" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"isValid":false,"invalidReason":"insufficient_funds"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"isValid": true})
	case "/settle":
		_ = json.NewEncoder(w).Encode(x402.SettlementResponse{Success: true, Transaction: "0xtx", Network: "base-sepolia"})
	case "/supported":
		_ = json.NewEncoder(w).Encode(facilitator.SupportedResponse{Kinds: []facilitator.SupportedKind{
			{X402Version: 1, Scheme: "exact", Network: "base-sepolia"},
		}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeFacilitatorService) recorded() []facilitatorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]facilitatorCall(nil), f.calls...)
}

func TestFacilitatorVerifyAndSettle(t *testing.T) {
	svc := &fakeFacilitatorService{}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	fac := NewFacilitator(FacilitatorConfig{BaseURL: srv.URL + "/", Authorization: "Bearer fac", Timeout: time.Second})
	reqs := x402.PaymentRequirement{Scheme: SchemeExact, Network: "base-sepolia", MaxAmountRequired: "1000000"}
	ctx := context.Background()

	v, err := fac.Verify(ctx, exactPayment("1000000"), reqs)
	assert.NoError(t, err)
	check.True(t, v.IsValid)
	check.Equal(t, "0xAgentA", v.Payer)

	s, err := fac.Settle(ctx, exactPayment("1000000"), reqs)
	assert.NoError(t, err)
	check.True(t, s.Success)
	check.Equal(t, "0xtx", s.Transaction)

	calls := svc.recorded()
	assert.Equal(t, 2, len(calls))
	check.Equal(t, "/verify", calls[0].Path)
	check.Equal(t, "/settle", calls[1].Path)
	for _, c := range calls {
		check.Equal(t, "Bearer fac", c.Auth)
		check.Equal(t, "1000000", c.Requirements.MaxAmountRequired)
	}
}

func TestFacilitatorRejectionIsVerificationFailure(t *testing.T) {
	srv := httptest.NewServer(&fakeFacilitatorService{})
	defer srv.Close()

	fac := NewFacilitator(FacilitatorConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 2, RetryDelay: time.Millisecond})
	_, err := fac.Verify(context.Background(), exactPayment("1"), x402.PaymentRequirement{MaxAmountRequired: "0"})
	check.True(t, errors.Is(err, x402.ErrVerificationFailed))
	check.False(t, errors.Is(err, x402.ErrFacilitatorUnavailable))
}

func TestFacilitatorRetriesDroppedConnections(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	defer srv.Close()

	fac := NewFacilitator(FacilitatorConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 1, RetryDelay: time.Millisecond})
	_, err := fac.Settle(context.Background(), exactPayment("1000000"), x402.PaymentRequirement{})
	check.True(t, errors.Is(err, x402.ErrFacilitatorUnavailable))
	mu.Lock()
	defer mu.Unlock()
	check.Equal(t, 2, attempts)
}

func TestCheckSupported(t *testing.T) {
	srv := httptest.NewServer(&fakeFacilitatorService{})
	defer srv.Close()
	fac := NewFacilitator(FacilitatorConfig{BaseURL: srv.URL, Timeout: time.Second})

	check.NoError(t, CheckSupported(context.Background(), fac, "base-sepolia"))
	check.Error(t, CheckSupported(context.Background(), fac, "solana"))
}
