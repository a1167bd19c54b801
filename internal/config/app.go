package config

type AppConfig struct {
	Server  ServerConfig
	Log     LogConfig
	Auction AuctionConfig
	Payment PaymentConfig
	Notify  NotifyConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	auctionCfg, err := LoadAuction()
	if err != nil {
		return AppConfig{}, err
	}
	paymentCfg, err := LoadPayment()
	if err != nil {
		return AppConfig{}, err
	}
	notifyCfg, err := LoadNotify()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server:  serverCfg,
		Log:     logCfg,
		Auction: auctionCfg,
		Payment: paymentCfg,
		Notify:  notifyCfg,
	}, nil
}
