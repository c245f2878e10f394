package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	Port                   string
	LogLevel               slog.Level
	StorageBackend         string
	ProjectID              string
	SQLitePath             string
	DiscordWebhookURL      string
	GeminiAPIKey           string
	GeminiModel            string
	RequestTimeout         time.Duration
	SessionTTL             time.Duration
	IngestInterval         time.Duration
	PageSize               int
	MaxStoredDeals         int
	ScraperUseBrowser      bool
	AmazonAffiliateTag     string
	BestBuyAffiliatePrefix string
	CategoriesConfigPath   string
	AllowedDomains         []string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		StorageBackend:         strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory)),
		ProjectID:              os.Getenv("GOOGLE_CLOUD_PROJECT"),
		SQLitePath:             getEnv("SQLITE_PATH", "data/deals.db"),
		DiscordWebhookURL:      os.Getenv("DISCORD_WEBHOOK_URL"),
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		AmazonAffiliateTag:     getEnv("AMAZON_AFFILIATE_TAG", "beauahrens0d-20"),
		BestBuyAffiliatePrefix: getEnv("BESTBUY_AFFILIATE_PREFIX", "https://bestbuyca.o93x.net/c/5215192/2035226/10221?u="),
		CategoriesConfigPath:   os.Getenv("CATEGORIES_CONFIG_PATH"),
		AllowedDomains:         []string{"redflagdeals.com", "forums.redflagdeals.com", "www.redflagdeals.com"},
	}

	var err error
	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendSQLite:
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required for the firestore backend")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: want memory, sqlite or firestore", cfg.StorageBackend)
	}

	if cfg.DiscordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, notices will only be logged")
	}
	if cfg.GeminiAPIKey == "" {
		slog.Info("GEMINI_API_KEY not set, using lexicon sentiment analysis")
	}

	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.IngestInterval, err = getDuration("INGEST_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.PageSize, err = getInt("PAGE_SIZE", 20); err != nil {
		return nil, err
	}
	if cfg.MaxStoredDeals, err = getInt("MAX_STORED_DEALS", 500); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}

	if v := os.Getenv("SCRAPER_USE_BROWSER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SCRAPER_USE_BROWSER %q: %w", v, err)
		}
		cfg.ScraperUseBrowser = b
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func parseLevel(v string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
	}
	return level, nil
}
