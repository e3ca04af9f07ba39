package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tryon/internal/billing"
	"tryon/internal/infra"
	"tryon/internal/infra/credentials"
	"tryon/internal/metrics"
)

// reconciler confirms pending payments against their gateway. It needs the
// ledger, so DATABASE_URL is mandatory here.
func main() {
	var (
		window = flag.Duration("window", 24*time.Hour, "only check payments created within this window")
		batch  = flag.Int("batch", 50, "payments checked per pass")
		once   = flag.Bool("once", false, "run a single pass and exit")
	)
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLoggerWithLevel(cfg.AppEnv, cfg.LogLevel).With().Str("cmd", "reconciler").Logger()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciler: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	stripeKey, err := credentials.NewStore(runner).Resolve(ctx, credentials.ProviderStripe, cfg.StripeSecretKey)
	if err != nil {
		logger.Warn().Err(err).Msg("reconciler: failed to load stripe key from store")
	}
	var providers []billing.Provider
	if cfg.YooKassaEnabled() {
		providers = append(providers, billing.NewYooKassa(billing.YooKassaOptions{
			ShopID:    cfg.YooKassaShopID,
			SecretKey: cfg.YooKassaSecretKey,
			BaseURL:   cfg.YooKassaBaseURL,
		}))
	}
	if stripeKey != "" {
		providers = append(providers, billing.NewStripe(billing.StripeOptions{
			SecretKey: stripeKey,
			BaseURL:   cfg.StripeBaseURL,
		}))
	}
	if len(providers) == 0 {
		logger.Fatal().Msg("reconciler: no payment provider configured")
	}

	service := billing.NewService(billing.ServiceOptions{
		DefaultCountry: cfg.DefaultCountry,
		Ledger:         billing.NewPGLedger(runner),
		Logger:         &logger,
	}, providers...)

	if *once {
		confirmed, err := service.Reconcile(ctx, *window, *batch)
		if err != nil {
			logger.Fatal().Err(err).Msg("reconciler: pass failed")
		}
		logger.Info().Int("confirmed", confirmed).Msg("reconciler: done")
		return
	}

	r := &billing.Reconciler{
		Service:  service,
		Logger:   logger,
		Interval: cfg.ReconcileInterval,
		Window:   *window,
		Batch:    *batch,
	}
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("reconciler: stopped with error")
	}
	logger.Info().Msg("reconciler: stopped")
}
