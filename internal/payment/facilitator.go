package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/x402-go"
	"github.com/mark3labs/x402-go/facilitator"
	x402http "github.com/mark3labs/x402-go/http"
	"github.com/rs/zerolog/log"
)

type FacilitatorConfig struct {
	BaseURL       string
	Authorization string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
}

var _ facilitator.Interface = (*x402http.FacilitatorClient)(nil)

// NewFacilitator builds the HTTP facilitator client with hooks that count
// and log every verify and settle outcome. Transport failures are retried
// by the client; rejections are not.
func NewFacilitator(cfg FacilitatorConfig) *x402http.FacilitatorClient {
	timeouts := x402.DefaultTimeouts
	if cfg.Timeout > 0 {
		timeouts.VerifyTimeout = cfg.Timeout
		timeouts.SettleTimeout = cfg.Timeout
		timeouts.RequestTimeout = cfg.Timeout
	}
	return &x402http.FacilitatorClient{
		BaseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		Client:        &http.Client{Timeout: timeouts.RequestTimeout},
		Timeouts:      timeouts,
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay,
		Authorization: cfg.Authorization,
		OnAfterVerify: func(_ context.Context, p x402.PaymentPayload, _ x402.PaymentRequirement, resp *facilitator.VerifyResponse, err error) {
			switch {
			case err != nil:
				metricFacilitatorCallsTotal.WithLabelValues("verify", "error").Inc()
				log.Warn().Err(err).Str("network", p.Network).Msg("facilitator verify error")
			case resp != nil && resp.IsValid:
				metricFacilitatorCallsTotal.WithLabelValues("verify", "valid").Inc()
			default:
				metricFacilitatorCallsTotal.WithLabelValues("verify", "invalid").Inc()
				if resp != nil {
					log.Info().Str("reason", resp.InvalidReason).Str("payer", resp.Payer).Msg("facilitator rejected proof")
				}
			}
		},
		OnAfterSettle: func(_ context.Context, p x402.PaymentPayload, _ x402.PaymentRequirement, resp *x402.SettlementResponse, err error) {
			switch {
			case err != nil:
				metricFacilitatorCallsTotal.WithLabelValues("settle", "error").Inc()
				log.Error().Err(err).Str("network", p.Network).Msg("facilitator settle error")
			case resp != nil && resp.Success:
				metricFacilitatorCallsTotal.WithLabelValues("settle", "success").Inc()
			default:
				metricFacilitatorCallsTotal.WithLabelValues("settle", "failed").Inc()
				if resp != nil {
					log.Warn().Str("reason", resp.ErrorReason).Msg("facilitator settle unsuccessful")
				}
			}
		},
	}
}

// CheckSupported reports whether the facilitator advertises the exact scheme
// on network. Callers treat a failure as a startup warning.
func CheckSupported(ctx context.Context, fac facilitator.Interface, network string) error {
	supported, err := fac.Supported(ctx)
	if err != nil {
		return fmt.Errorf("query supported kinds: %w", err)
	}
	for _, kind := range supported.Kinds {
		if kind.Scheme == SchemeExact && kind.Network == network {
			return nil
		}
	}
	return fmt.Errorf("facilitator does not support %s on %s", SchemeExact, network)
}
