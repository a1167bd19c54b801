package config

import "github.com/caarlos0/env/v11"

type PaymentConfig struct {
	FacilitatorURL          string `env:"FACILITATOR_URL" envDefault:"https://x402.org/facilitator"`
	FacilitatorAuth         string `env:"FACILITATOR_AUTHORIZATION"`
	FacilitatorTimeoutMS    int    `env:"FACILITATOR_TIMEOUT_MS" envDefault:"30000"`
	FacilitatorMaxRetries   int    `env:"FACILITATOR_MAX_RETRIES" envDefault:"1"`
	FacilitatorRetryDelayMS int    `env:"FACILITATOR_RETRY_DELAY_MS" envDefault:"200"`

	PayTo             string `env:"PAY_TO_ADDRESS,required,notEmpty"`
	Network           string `env:"X402_NETWORK" envDefault:"base-sepolia"`
	Asset             string `env:"USDC_ASSET" envDefault:"0x036CbD53842c5426634e7929541eC2318f3dCF7e"`
	AssetName         string `env:"USDC_ASSET_NAME" envDefault:"USDC"`
	AssetVersion      string `env:"USDC_ASSET_VERSION" envDefault:"2"`
	MaxTimeoutSeconds int    `env:"X402_MAX_TIMEOUT_SECONDS" envDefault:"60"`

	WalletServiceURL   string `env:"WALLET_SERVICE_URL,required,notEmpty"`
	WalletServiceToken string `env:"WALLET_SERVICE_TOKEN"`
	WalletTimeoutMS    int    `env:"WALLET_TIMEOUT_MS" envDefault:"60000"`
}

func LoadPayment() (PaymentConfig, error) {
	var cfg PaymentConfig
	err := env.Parse(&cfg)
	return cfg, err
}
