// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"promptmarket-payments/internal/config"
	"promptmarket-payments/internal/domain/ports/adapter"
	pg "promptmarket-payments/internal/infra/db/postgres"
	"promptmarket-payments/internal/infra/logging"
	payAdapters "promptmarket-payments/internal/infra/payment"
	red "promptmarket-payments/internal/infra/redis"
	"promptmarket-payments/internal/infra/sched"
	"promptmarket-payments/internal/infra/web"
	"promptmarket-payments/internal/usecase"

	"github.com/go-chi/chi/v5"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed auth)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Runtime.Dev {
		log.Printf("[DEV MODE] Enabled")
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	txRepo := pg.NewTransactionRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient, cfg.Redis.PlanTTL)
	txManager := pg.NewTxManager(pool)

	// ---- Payment gateways ----
	gateways := map[string]adapter.PaymentGateway{}
	if cfg.Payment.PayPal.ClientID != "" {
		gw := payAdapters.NewPayPalGateway(cfg.Payment.PayPal.ClientID, cfg.Payment.PayPal.Secret, cfg.Payment.PayPal.Sandbox)
		gateways[gw.Name()] = gw
		logger.Info().Bool("sandbox", cfg.Payment.PayPal.Sandbox).Msg("paypal gateway configured")
	}
	if cfg.Payment.Tap.SecretKey != "" {
		gw := payAdapters.NewTapGateway(cfg.Payment.Tap.SecretKey)
		gateways[gw.Name()] = gw
		logger.Info().Msg("tap gateway configured")
	}
	if len(gateways) == 0 {
		log.Fatalf("no payment gateway configured: set payment.paypal or payment.tap in %s", *cfgPath)
	}

	// ---- Use cases ----
	settler := usecase.NewSettlementService(txRepo, subRepo, planRepo, txManager, logger)
	verifyUC := usecase.NewVerifyUseCase(txRepo, subRepo, logger)
	checkoutUC := usecase.NewCheckoutUseCase(txRepo, planRepo, gateways, settler, logger)
	callbackUC := usecase.NewCallbackUseCase(verifyUC, txRepo, gateways, settler, usecase.CallbackOptions{
		MaxAttempts: cfg.Callback.MaxAttempts,
		BaseDelay:   cfg.Callback.BaseDelay,
		MaxDelay:    cfg.Callback.MaxDelay,
	}, logger)
	webhookUC := usecase.NewWebhookUseCase(txRepo, settler, logger)
	sweeperUC := usecase.NewSweeperUseCase(txRepo, gateways, settler, usecase.SweeperOptions{
		BatchSize:   cfg.Sweeper.BatchSize,
		Concurrency: cfg.Sweeper.Concurrency,
		StaleAfter:  cfg.Sweeper.StaleAfter,
	}, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Server.SessionSecret, !cfg.Runtime.Dev, "", cfg.Server.SessionTTL)
	srv := web.NewServer(
		checkoutUC, callbackUC, webhookUC, verifyUC, sweeperUC,
		txRepo, planRepo,
		cfg.Server.AdminAPIKey, auth,
		cfg.Payment.Tap.WebhookSecret,
		strings.TrimRight(cfg.Server.BaseURL, "/"),
		logger,
	)
	router := chi.NewRouter()
	srv.RegisterRoutes(router)

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: router}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Background workers ----
	sweepWorker := sched.NewSweepWorker(cfg.Sweeper.Interval, sweeperUC, locker, logger)
	go func() { _ = sweepWorker.Run(ctx) }()

	expiryWorker := sched.NewExpiryWorker(1*time.Hour, subUC, logger)
	go func() { _ = expiryWorker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
