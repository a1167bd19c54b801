package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type AuctionConfig struct {
	StartingBidUSDC  decimal.Decimal `env:"STARTING_BID_USDC" envDefault:"1"`
	IncrementUSDC    decimal.Decimal `env:"BID_INCREMENT_USDC" envDefault:"1"`
	SpreadUSDC       decimal.Decimal `env:"BID_SPREAD_USDC" envDefault:"5"`
	CapUSDC          decimal.Decimal `env:"BID_CAP_USDC" envDefault:"50"`
	SuggestionBuffer decimal.Decimal `env:"SUGGESTION_BUFFER_USDC" envDefault:"0.5"`
	DurationMinutes  int             `env:"AUCTION_DURATION_MINUTES" envDefault:"5"`

	ThinkingDelayMS    int `env:"THINKING_DELAY_MS" envDefault:"1500"`
	RefundDelayMS      int `env:"REFUND_DELAY_MS" envDefault:"2000"`
	RefundRetryDelayMS int `env:"REFUND_RETRY_DELAY_MS" envDefault:"3000"`

	// Known bidder roster; skip-driven early termination only applies when set.
	Roster []string `env:"AUCTION_ROSTER" envSeparator:","`
}

func LoadAuction() (AuctionConfig, error) {
	var cfg AuctionConfig
	err := env.Parse(&cfg)
	return cfg, err
}
