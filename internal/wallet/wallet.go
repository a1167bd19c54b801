// Package wallet talks to the custodial wallet service that holds the
// server's USDC and signs outgoing transfers. Key management stays on the
// other side of that service.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"adspot-auction/internal/httpclient"
	"adspot-auction/internal/money"
)

var (
	ErrInvalidTransfer = errors.New("invalid_transfer")
	ErrNoTransaction   = errors.New("wallet_returned_no_transaction")
)

type transferRequest struct {
	To             string `json:"to"`
	Amount         string `json:"amount"`
	Asset          string `json:"asset"`
	Network        string `json:"network"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type transferResponse struct {
	Transaction string `json:"transaction"`
	Status      string `json:"status,omitempty"`
}

type Config struct {
	BaseURL string
	Token   string
	Asset   string
	Network string
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *httpclient.Client
	// newKey is swapped in tests.
	newKey func() string
}

func NewClient(cfg Config) *Client {
	return NewClientWithHTTP(cfg, httpclient.New(cfg.Timeout))
}

func NewClientWithHTTP(cfg Config, hc *httpclient.Client) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc, newKey: uuid.NewString}
}

// Transfer sends amount USDC to the given address and returns the
// transaction reference. Every call carries a fresh idempotency key, so a
// retried refund is a new transfer from the wallet's point of view.
func (c *Client) Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" || !amount.IsPositive() {
		return "", ErrInvalidTransfer
	}
	key := c.newKey()
	req := transferRequest{
		To:             to,
		Amount:         money.ToAtomic(amount),
		Asset:          c.cfg.Asset,
		Network:        c.cfg.Network,
		IdempotencyKey: key,
	}
	headers := map[string]string{
		"Idempotency-Key": key,
	}
	if c.cfg.Token != "" {
		headers["Authorization"] = "Bearer " + c.cfg.Token
	}
	var out transferResponse
	if err := c.http.PostJSONInto(ctx, c.cfg.BaseURL+"/transfers", headers, req, &out); err != nil {
		return "", fmt.Errorf("wallet transfer: %w", err)
	}
	if out.Transaction == "" {
		return "", ErrNoTransaction
	}
	return out.Transaction, nil
}
