// Package payment wires the x402 payment rail: the X-PAYMENT header codec,
// the authorized value carried in an exact-scheme proof, and the
// facilitator client that verifies and settles proofs.
package payment

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/x402-go"
	"github.com/shopspring/decimal"

	"adspot-auction/internal/money"
)

const (
	Version     = 1
	SchemeExact = "exact"

	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"

	// maxHeaderBytes bounds the decoded proof; an exact EVM payload is well
	// under 1KB.
	maxHeaderBytes = 16 << 10
)

var ErrMissingValue = errors.New("missing_authorized_value")

// DecodePayment parses a base64 JSON X-PAYMENT header value.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var p x402.PaymentPayload
	encoded = strings.TrimSpace(encoded)
	if encoded == "" || len(encoded) > base64.StdEncoding.EncodedLen(maxHeaderBytes) {
		return p, x402.ErrMalformedHeader
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return p, fmt.Errorf("%w: invalid base64 encoding", x402.ErrMalformedHeader)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: invalid JSON", x402.ErrMalformedHeader)
	}
	if p.X402Version != Version {
		return p, x402.ErrUnsupportedVersion
	}
	return p, nil
}

func EncodePayment(p x402.PaymentPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// EncodeSettlement renders the X-PAYMENT-RESPONSE header value.
func EncodeSettlement(s x402.SettlementResponse) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func DecodeSettlement(encoded string) (x402.SettlementResponse, error) {
	var s x402.SettlementResponse
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return s, fmt.Errorf("decode base64: %w", err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("unmarshal settlement: %w", err)
	}
	return s, nil
}

// ExactEVM unpacks the scheme payload. The library leaves Payload untyped
// after decoding, so it is re-read through JSON.
func ExactEVM(p x402.PaymentPayload) (x402.EVMPayload, error) {
	var out x402.EVMPayload
	if p.Scheme != SchemeExact {
		return out, x402.ErrUnsupportedScheme
	}
	if p.Payload == nil {
		return out, x402.ErrMalformedHeader
	}
	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return out, fmt.Errorf("%w: payload: %v", x402.ErrMalformedHeader, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: payload: %v", x402.ErrMalformedHeader, err)
	}
	return out, nil
}

// AuthorizedValue is the amount the payer signed for, in dollars. This is
// what settles on chain regardless of what the agent claimed.
func AuthorizedValue(p x402.PaymentPayload) (decimal.Decimal, error) {
	evm, err := ExactEVM(p)
	if err != nil {
		return decimal.Zero, err
	}
	if evm.Authorization.Value == "" {
		return decimal.Zero, ErrMissingValue
	}
	v, err := money.FromAtomic(evm.Authorization.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}
	return v, nil
}

// Payer returns the authorization's from address, used when a facilitator
// does not report one.
func Payer(p x402.PaymentPayload) string {
	evm, err := ExactEVM(p)
	if err != nil {
		return ""
	}
	return evm.Authorization.From
}
