package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tryon/internal/acquisition"
	"tryon/internal/billing"
	"tryon/internal/domain"
	"tryon/internal/http/handlers"
	"tryon/internal/http/httpapi"
	"tryon/internal/infra"
	"tryon/internal/infra/credentials"
	"tryon/internal/infra/geoip"
	"tryon/internal/metrics"
	"tryon/internal/providers/genai"
	"tryon/internal/providers/tryon"
	"tryon/internal/storage"
	"tryon/internal/workflow"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLoggerWithLevel(cfg.AppEnv, cfg.LogLevel)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	// Postgres is optional: without it payments are not recorded and API
	// keys come from the environment only.
	var (
		ledger billing.Ledger = billing.NopLedger{}
		creds  *credentials.Store
	)
	pool, err := infra.NewDBPool(ctx, cfg)
	switch {
	case errors.Is(err, infra.ErrNoDatabase):
		logger.Warn().Msg("DATABASE_URL not set, payment ledger disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to connect database")
	default:
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		ledger = billing.NewPGLedger(runner)
		creds = credentials.NewStore(runner)
	}

	geminiKey, err := creds.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load gemini api key from store")
	}
	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:  geminiKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure gemini client")
	}

	var store *storage.FileStore
	if cfg.StoragePath != "" {
		store, err = storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure storage")
		}
	}

	sessions := workflow.NewRegistry(ctx, tryon.New(geminiClient, &logger), cfg.SessionTTL, workflow.Options{
		Timeout:  cfg.SynthesisTimeout,
		Logger:   &logger,
		OnResult: archiveResult(ctx, store, logger),
	})
	defer sessions.Close()

	stripeKey, err := creds.Resolve(ctx, credentials.ProviderStripe, cfg.StripeSecretKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load stripe key from store")
	}
	var providers []billing.Provider
	if cfg.YooKassaEnabled() {
		providers = append(providers, billing.NewYooKassa(billing.YooKassaOptions{
			ShopID:    cfg.YooKassaShopID,
			SecretKey: cfg.YooKassaSecretKey,
			BaseURL:   cfg.YooKassaBaseURL,
			ReturnURL: cfg.PublicBaseURL + "/payment/success",
		}))
	}
	if stripeKey != "" {
		providers = append(providers, billing.NewStripe(billing.StripeOptions{
			SecretKey:  stripeKey,
			BaseURL:    cfg.StripeBaseURL,
			SuccessURL: cfg.PublicBaseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:  cfg.PublicBaseURL + "/pricing",
		}))
	}
	if len(providers) == 0 {
		logger.Warn().Msg("no payment provider configured, checkout disabled")
	}
	billingService := billing.NewService(billing.ServiceOptions{
		DefaultCountry: cfg.DefaultCountry,
		Ledger:         ledger,
		Logger:         &logger,
	}, providers...)

	decoder := acquisition.Decoder{MaxBytes: cfg.MaxUploadBytes}
	app := &handlers.App{
		Config:   cfg,
		Logger:   logger,
		Sessions: sessions,
		Decoder:  decoder,
		Catalog:  acquisition.NewCatalog(acquisition.SampleGarments, nil, decoder),
		Billing:  billingService,
		Store:    store,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		DefaultLocale:   "ru",
		CountryLookup:   resolver.LookupFunc(),
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)
	// Closing the registry ends every events stream so Shutdown is not held
	// open by subscribers.
	server.RegisterOnShutdown(sessions.Close)
	go func() {
		logger.Info().Str("addr", server.Addr()).Str("model", geminiClient.Model()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// archiveResult copies every synthesis result to the file store.
func archiveResult(ctx context.Context, store *storage.FileStore, logger infra.Logger) func(domain.Session) {
	if store == nil {
		return nil
	}
	return func(s domain.Session) {
		key, err := store.SaveResult(ctx, s)
		if err != nil {
			logger.Warn().Err(err).Str("session_id", s.ID).Msg("failed to archive result")
			return
		}
		logger.Debug().Str("session_id", s.ID).Str("url", store.URL(key)).Msg("result archived")
	}
}
