package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/ai"
	"github.com/pauljones0/dealanalyzer/internal/api"
	"github.com/pauljones0/dealanalyzer/internal/config"
	"github.com/pauljones0/dealanalyzer/internal/feed"
	"github.com/pauljones0/dealanalyzer/internal/notifier"
	"github.com/pauljones0/dealanalyzer/internal/processor"
	"github.com/pauljones0/dealanalyzer/internal/scraper"
	"github.com/pauljones0/dealanalyzer/internal/sentiment"
	"github.com/pauljones0/dealanalyzer/internal/session"
	"github.com/pauljones0/dealanalyzer/internal/storage"
	"github.com/pauljones0/dealanalyzer/internal/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("Starting deal analyzer server...", "backend", cfg.StorageBackend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var outbound notifier.Notifier = notifier.Log{}
	if cfg.DiscordWebhookURL != "" {
		discord := notifier.NewAsync(notifier.NewDiscord(cfg.DiscordWebhookURL), 100, cfg.RequestTimeout)
		defer discord.Close()
		outbound = notifier.Multi{notifier.Log{}, discord}
	}

	analyzer := sentiment.Fallback{Secondary: sentiment.Lexicon{}}
	gemini, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		slog.Warn("Gemini unavailable, using lexicon sentiment analysis", "error", err)
	} else if gemini != nil {
		analyzer.Primary = gemini
	}

	catalog := feed.LoadCatalog(cfg.CategoriesConfigPath)
	v := validator.New()
	s := scraper.New(cfg, scraper.LoadConfig())
	p := processor.New(store, outbound, s, catalog, v, cfg)

	sessions := session.NewRegistry(session.Deps{
		Store:     store,
		Catalog:   catalog,
		Comments:  s,
		Analyzer:  analyzer,
		Validator: v,
		Notifier:  outbound,
		Timeout:   cfg.RequestTimeout,
	}, cfg.SessionTTL)
	go sessions.RunSweeper(ctx, time.Minute)

	if cfg.IngestInterval > 0 {
		go runIngestLoop(ctx, p, cfg.IngestInterval)
	}

	srv := api.New(sessions, p, store, v, api.Options{PageSize: cfg.PageSize})
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("Received signal, shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendFirestore:
		return storage.NewFirestore(ctx, cfg.ProjectID)
	case config.BackendSQLite:
		return storage.OpenSQLite(cfg.SQLitePath)
	case config.BackendMemory:
		return storage.NewSeededMemory(time.Now())
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// runIngestLoop processes deals every interval until ctx is cancelled.
func runIngestLoop(ctx context.Context, p processor.Processor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						slog.Error("Panic in ProcessDeals", "panic", r)
					}
				}()
				runCtx, cancel := context.WithTimeout(ctx, 4*time.Minute)
				defer cancel()
				if err := p.ProcessDeals(runCtx); err != nil {
					slog.Error("Error processing deals", "error", err)
				}
			}()
		}
	}
}
