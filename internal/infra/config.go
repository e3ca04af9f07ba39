package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	LogLevel          string
	Port              string
	DatabaseURL       string
	JWTSecret         string
	SessionTTL        time.Duration
	SynthesisTimeout  time.Duration
	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	GeoIPDBPath       string
	DefaultCountry    string
	AllowedOrigins    []string
	StoragePath       string
	StorageBaseURL    string
	MaxUploadBytes    int64
	PublicBaseURL     string
	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaBaseURL   string
	StripeSecretKey   string
	StripeBaseURL     string
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
	ReconcileInterval time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Port:              port,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		SessionTTL:        time.Minute * time.Duration(getEnvInt("SESSION_TTL_MINUTES", 30)),
		SynthesisTimeout:  time.Second * time.Duration(getEnvInt("SYNTHESIS_TIMEOUT_SECONDS", 90)),
		GeminiAPIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		DefaultCountry:    strings.ToUpper(getEnv("DEFAULT_COUNTRY", "RU")),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		StoragePath:       os.Getenv("STORAGE_PATH"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_MB", 10)) << 20,
		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:5173"), "/"),
		YooKassaShopID:    os.Getenv("YOOKASSA_SHOP_ID"),
		YooKassaSecretKey: os.Getenv("YOOKASSA_SECRET_KEY"),
		YooKassaBaseURL:   getEnv("YOOKASSA_BASE_URL", "https://api.yookassa.ru/v3"),
		StripeSecretKey:   os.Getenv("STRIPE_SECRET_KEY"),
		StripeBaseURL:     getEnv("STRIPE_BASE_URL", "https://api.stripe.com/v1"),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		ReconcileInterval: time.Second * time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 30)),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := url.Parse(cfg.PublicBaseURL); err != nil {
		return nil, fmt.Errorf("PUBLIC_BASE_URL: %w", err)
	}
	if len(cfg.DefaultCountry) != 2 {
		return nil, fmt.Errorf("DEFAULT_COUNTRY must be an ISO 3166 alpha-2 code, got %q", cfg.DefaultCountry)
	}

	return cfg, nil
}

// YooKassaEnabled reports whether the Russian payment gateway is configured.
func (c *Config) YooKassaEnabled() bool {
	return c.YooKassaShopID != "" && c.YooKassaSecretKey != ""
}

// StripeEnabled reports whether the international card processor is configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
