package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/falstudio/falstudio/internal/catalog"
	"github.com/falstudio/falstudio/internal/config"
	"github.com/falstudio/falstudio/internal/handlers"
	"github.com/falstudio/falstudio/internal/inference"
	"github.com/falstudio/falstudio/internal/mediacache"
	"github.com/falstudio/falstudio/internal/medium"
	"github.com/falstudio/falstudio/internal/records"
	"github.com/falstudio/falstudio/internal/router"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	store, err := newMedium(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize storage medium: %v", err)
	}

	cat, err := catalog.Load()
	if err != nil {
		log.Fatalf("failed to load model catalog: %v", err)
	}

	policy := mediacache.DefaultPolicy()
	policy.Budget = cfg.CacheBudget
	cache := mediacache.New(store, policy, logger,
		mediacache.WithRateLimit(5, 2),
	)
	history := records.New(store, "", logger)
	client := inference.New(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, logger,
		inference.WithRateLimit(2, 1),
	)

	r := router.Setup(router.Handlers{
		Generate: handlers.NewGenerateHandler(cat, history, cache, client, logger),
		Models:   handlers.NewModelsHandler(cat),
		Gallery:  handlers.NewGalleryHandler(history, logger),
		Cache:    handlers.NewCacheHandler(cache, logger),
		Keys:     handlers.NewKeysHandler(client, logger),
	}, logger)

	logger.Info("starting server",
		"addr", cfg.ListenAddr,
		"medium", cfg.MediumDriver,
		"cache_budget", cfg.CacheBudget,
	)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func newMedium(cfg *config.Config, logger *slog.Logger) (medium.Medium, error) {
	switch cfg.MediumDriver {
	case "memory":
		return medium.NewMemory(cfg.MediumCapacity), nil
	case "s3":
		return medium.NewS3(cfg.S3, cfg.MediumCapacity, logger)
	default:
		return medium.NewFile(cfg.DataDir, cfg.MediumCapacity, logger)
	}
}
