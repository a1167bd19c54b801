package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"adspot-auction/internal/auction"
	"adspot-auction/internal/config"
	"adspot-auction/internal/custody"
	"adspot-auction/internal/events"
	"adspot-auction/internal/logging"
	"adspot-auction/internal/mcpserver"
	"adspot-auction/internal/notify"
	"adspot-auction/internal/payment"
	"adspot-auction/internal/refund"
	"adspot-auction/internal/store"
	httptransport "adspot-auction/internal/transport/http"
	"adspot-auction/internal/wallet"
	"adspot-auction/internal/ws"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	if err := logging.Init(cfg.Log); err != nil {
		panic(err)
	}
	defer func() { _ = logging.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, lock := openStore(ctx, cfg.Server)
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("store ping failed")
	}

	notifyCfg, err := notify.ConfigFromEnv(cfg.Notify)
	if err != nil {
		log.Fatal().Err(err).Msg("load notify config failed")
	}
	pusher := notify.NewManager(notifyCfg)
	pusher.Start(ctx)
	hub := ws.NewHub()
	defer hub.Close()
	notifier := events.Fanout{events.LogNotifier{}, pusher, hub}

	fac := payment.NewFacilitator(payment.FacilitatorConfig{
		BaseURL:       cfg.Payment.FacilitatorURL,
		Authorization: cfg.Payment.FacilitatorAuth,
		Timeout:       time.Duration(cfg.Payment.FacilitatorTimeoutMS) * time.Millisecond,
		MaxRetries:    cfg.Payment.FacilitatorMaxRetries,
		RetryDelay:    time.Duration(cfg.Payment.FacilitatorRetryDelayMS) * time.Millisecond,
	})
	if err := payment.CheckSupported(ctx, fac, cfg.Payment.Network); err != nil {
		log.Warn().Err(err).Str("facilitator", cfg.Payment.FacilitatorURL).Msg("facilitator capability check failed")
	}
	payouts := wallet.NewClient(wallet.Config{
		BaseURL: cfg.Payment.WalletServiceURL,
		Token:   cfg.Payment.WalletServiceToken,
		Asset:   cfg.Payment.Asset,
		Network: cfg.Payment.Network,
		Timeout: time.Duration(cfg.Payment.WalletTimeoutMS) * time.Millisecond,
	})
	issuer := refund.NewIssuer(payouts, lock, st, notifier, refund.Policy{
		Delay:      time.Duration(cfg.Auction.RefundDelayMS) * time.Millisecond,
		RetryDelay: time.Duration(cfg.Auction.RefundRetryDelayMS) * time.Millisecond,
	})

	opts := auction.OptionsFromConfig(cfg.Auction, cfg.Payment, cfg.Server.PublicBaseURL)
	engine := auction.NewEngine(st, fac, lock, issuer, notifier, opts)
	ctrl := auction.NewController(st, issuer, notifier, opts)
	go ctrl.RunSweeper(ctx, time.Duration(cfg.Server.SweepIntervalMS)*time.Millisecond)

	r := httptransport.NewRouter(httptransport.Deps{
		Bidder:      engine,
		Lifecycle:   ctrl,
		Store:       st,
		MCP:         mcpserver.New(engine, ctrl).Handler(),
		Events:      http.HandlerFunc(hub.HandleWS),
		AdminAPIKey: cfg.Server.AdminAPIKey,
	})
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	grace := time.Duration(cfg.Server.ShutdownGraceMS) * time.Millisecond
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	// Scheduled refunds still owe money; give them the rest of the grace.
	if err := issuer.Wait(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("refunds still in flight at shutdown")
	}
	pusher.Wait()
}

// openStore picks Postgres when a DSN is configured and the in-memory store
// otherwise. The advisory lock needs Postgres.
func openStore(ctx context.Context, cfg config.ServerConfig) (store.AuctionStore, custody.Locker) {
	mode := strings.ToLower(strings.TrimSpace(cfg.SettlementLock))
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		if mode == "postgres" {
			log.Fatal().Msg("SETTLEMENT_LOCK=postgres requires POSTGRES_DSN")
		}
		log.Warn().Msg("POSTGRES_DSN not set, using in-memory store")
		return store.NewMemoryStore(), custody.NewLocalLock()
	}
	pg, err := store.NewPGStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	if mode == "postgres" {
		return pg, custody.NewPGLock(pg.Pool, custody.AdvisoryKey)
	}
	return pg, custody.NewLocalLock()
}
