// File: cmd/sweep/main.go
// One-shot recovery sweep for operators: drives every stuck pending
// transaction to a terminal state where possible and prints the summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"promptmarket-payments/internal/config"
	"promptmarket-payments/internal/domain/ports/adapter"
	pg "promptmarket-payments/internal/infra/db/postgres"
	"promptmarket-payments/internal/infra/logging"
	payAdapters "promptmarket-payments/internal/infra/payment"
	"promptmarket-payments/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall sweep deadline")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, false)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	txRepo := pg.NewTransactionRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	planRepo := pg.NewPlanRepo(pool)
	txManager := pg.NewTxManager(pool)

	gateways := map[string]adapter.PaymentGateway{}
	if cfg.Payment.PayPal.ClientID != "" {
		gw := payAdapters.NewPayPalGateway(cfg.Payment.PayPal.ClientID, cfg.Payment.PayPal.Secret, cfg.Payment.PayPal.Sandbox)
		gateways[gw.Name()] = gw
	}
	if cfg.Payment.Tap.SecretKey != "" {
		gw := payAdapters.NewTapGateway(cfg.Payment.Tap.SecretKey)
		gateways[gw.Name()] = gw
	}

	settler := usecase.NewSettlementService(txRepo, subRepo, planRepo, txManager, logger)
	sweeper := usecase.NewSweeperUseCase(txRepo, gateways, settler, usecase.SweeperOptions{
		BatchSize:   cfg.Sweeper.BatchSize,
		Concurrency: cfg.Sweeper.Concurrency,
		StaleAfter:  cfg.Sweeper.StaleAfter,
	}, logger)

	summary, err := sweeper.Sweep(ctx)
	if err != nil {
		log.Fatalf("sweep: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Fatalf("encode summary: %v", err)
	}
}
