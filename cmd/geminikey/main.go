package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tryon/internal/infra"
	"tryon/internal/infra/credentials"
)

// geminikey stores a provider API key in the integration_tokens table so the
// API can pick it up without GEMINI_API_KEY or STRIPE_SECRET_KEY being set.
func main() {
	var (
		keyFlag      string
		providerFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to the environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderGemini, "provider to configure (gemini or stripe)")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	envKey := "GEMINI_API_KEY"
	switch provider {
	case credentials.ProviderGemini, "":
		provider = credentials.ProviderGemini
	case credentials.ProviderStripe:
		envKey = "STRIPE_SECRET_KEY"
	default:
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKey))
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "%s key is required via -key or %s\n", provider, envKey)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "geminikey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	props := map[string]any{"updated_by": "geminikey", "updated_at": time.Now().UTC().Format(time.RFC3339)}
	if err := store.SetToken(ctx, provider, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s key: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s key stored successfully\n", provider)
}
