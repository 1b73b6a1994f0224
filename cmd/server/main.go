// Package main is the entry point for Cakra, an unattended multi-user
// trading system for the Indodax spot exchange. It executes user-declared
// strategies (DCA, grid, take-profit/stop-loss) on a scheduler, keeps
// local order state reconciled against the exchange, and refuses to trade
// whenever exchange health is unknown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nugraha/cakra/internal/clients/indodax"
	"github.com/nugraha/cakra/internal/config"
	"github.com/nugraha/cakra/internal/database"
	"github.com/nugraha/cakra/internal/evaluator"
	"github.com/nugraha/cakra/internal/keyring"
	"github.com/nugraha/cakra/internal/metrics"
	"github.com/nugraha/cakra/internal/modules/alerts"
	"github.com/nugraha/cakra/internal/modules/orders"
	"github.com/nugraha/cakra/internal/modules/strategy"
	"github.com/nugraha/cakra/internal/modules/users"
	"github.com/nugraha/cakra/internal/notify"
	"github.com/nugraha/cakra/internal/pricefeed"
	"github.com/nugraha/cakra/internal/ratelimit"
	"github.com/nugraha/cakra/internal/safety"
	"github.com/nugraha/cakra/internal/scheduler"
	"github.com/nugraha/cakra/internal/secrets"
	"github.com/nugraha/cakra/internal/sequence"
	"github.com/nugraha/cakra/internal/server"
	"github.com/nugraha/cakra/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("Starting Cakra")

	// Operational data and the append-only execution ledger live in
	// separate databases with different durability profiles.
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cakra.db"),
		Profile: database.ProfileStandard,
		Name:    "cakra",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}

	// Shared state store: nonces, rate limit windows, dead-man switch.
	store, err := keyring.Open(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open keyring store")
	}
	defer store.Close()
	if cfg.RedisURL == "" {
		log.Warn().Msg("No REDIS_URL set, using in-process state store; run a single instance only")
	}

	cipher, err := secrets.New(cfg.MasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential cipher")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	sw := safety.New(store, log)
	sw.SetPausedGauge(m.TradingPaused)
	limiter := ratelimit.New(store, cfg.OrderRateLimit, cfg.OrderRateWindow)
	nonces := sequence.New(store)

	userRepo := users.NewRepository(db.Conn(), log)
	credSvc := users.NewCredentialService(userRepo, cipher)
	strategyRepo := strategy.NewRepository(db.Conn(), ledgerDB.Conn(), log)
	orderRepo := orders.NewRepository(db.Conn(), log)
	alertRepo := alerts.NewRepository(db.Conn(), log)

	publicClient := indodax.NewPublicClient(cfg.ExchangeBaseURL, cfg.ExchangeTimeout, cfg.PriceStaleAfter, log)
	privateClient := indodax.NewPrivateClient(cfg.ExchangeTradeURL, cfg.ExchangeTimeout, credSvc, nonces, log)

	feed := pricefeed.New(cfg.PriceFeedWSURL, publicClient, cfg.PriceStaleAfter, log)
	feed.Start()
	defer feed.Stop()

	var notifier evaluator.Notifier = notify.NopNotifier{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize telegram notifier")
		}
		notifier = tg
	} else {
		log.Warn().Msg("No TELEGRAM_BOT_TOKEN set, notifications disabled")
	}

	orderSvc := orders.NewService(orderRepo, privateClient, sw, limiter, m, log)

	// Evaluators.
	dca := evaluator.NewDCA(strategyRepo, orderSvc, sw, notifier, m, log)
	grid := evaluator.NewGrid(strategyRepo, orderRepo, orderSvc, sw, notifier, m, log)
	tpsl := evaluator.NewTPSL(strategyRepo, feed, orderSvc, sw, notifier, m, log)
	alertEval := evaluator.NewAlerts(alertRepo, feed, notifier, log)
	monitor := evaluator.NewOrderMonitor(orderSvc, sw, m, log)

	sched := scheduler.New(m, log)
	jobs := []struct {
		interval time.Duration
		job      evaluator.Job
	}{
		{cfg.DCAInterval, dca},
		{cfg.GridInterval, grid},
		{cfg.TPSLInterval, tpsl},
		{cfg.AlertInterval, alertEval},
		{cfg.OrderMonitorInterval, monitor},
	}
	for _, j := range jobs {
		if err := sched.AddJob(fmt.Sprintf("@every %s", j.interval), j.job); err != nil {
			log.Fatal().Err(err).Str("job", j.job.Name()).Msg("Failed to register job")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		DB:         db,
		LedgerDB:   ledgerDB,
		Safety:     sw,
		Users:      userRepo,
		Creds:      credSvc,
		Strategies: strategyRepo,
		Orders:     orderSvc,
		OrderRepo:  orderRepo,
		Alerts:     alertRepo,
		Registry:   registry,
	})

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Admin server failed")
	}

	// Stop scheduling first and let in-flight ticks finish so no
	// evaluator is interrupted between exchange call and local record.
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Cakra stopped")
}
