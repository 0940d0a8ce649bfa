package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/tourcast/tourcast/app/db"
	"github.com/tourcast/tourcast/app/observability/metrics"
	"github.com/tourcast/tourcast/config"
	"github.com/tourcast/tourcast/internal/api/tour"
	"github.com/tourcast/tourcast/internal/assemble"
	"github.com/tourcast/tourcast/internal/audio"
	"github.com/tourcast/tourcast/internal/cache"
	"github.com/tourcast/tourcast/internal/geocode"
	"github.com/tourcast/tourcast/internal/pipeline"
	"github.com/tourcast/tourcast/internal/places"
	"github.com/tourcast/tourcast/internal/preview"
	"github.com/tourcast/tourcast/internal/scheduler"
	"github.com/tourcast/tourcast/internal/script"
	"github.com/tourcast/tourcast/internal/types"
)

// Container holds all application dependencies
type Container struct {
	Config         *config.Config
	Logger         *slog.Logger
	Pool           *pgxpool.Pool
	Orchestrator   *pipeline.Orchestrator
	Scheduler      *scheduler.Scheduler
	TourHandler    *tour.Handler
	PreviewHandler *preview.Handler
}

// NewContainer initializes and returns a new dependency container
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	mapsKey := os.Getenv("GOOGLE_MAPS_API_KEY")
	if mapsKey == "" {
		pool.Close()
		return nil, fmt.Errorf("GOOGLE_MAPS_API_KEY environment variable not set")
	}
	ttsKey := os.Getenv("GOOGLE_TTS_API_KEY")
	if ttsKey == "" {
		ttsKey = mapsKey
	}

	// Provider clients
	placesClient := places.NewClient(cfg.Providers.Places.BaseURL, mapsKey, cfg.Pipeline.CallTimeout, logger)
	resolver := geocode.NewResolver(placesClient, logger)
	retriever := places.NewRetriever(placesClient, cfg.Pipeline.MinutesPerPOI, cfg.Pipeline.MaxPOIs, logger)

	aiClient, err := script.NewAIClient(ctx, cfg.Providers.Gemini.Model)
	if err != nil {
		pool.Close()
		logger.Error("Failed to initialize Gemini client", slog.Any("error", err))
		return nil, err
	}
	scripts := script.NewGenerator(aiClient, logger)

	tts := audio.NewGoogleTTS(cfg.Providers.TTS.BaseURL, ttsKey, cfg.Providers.TTS.Voices, cfg.Pipeline.CallTimeout, logger)
	assets, err := audio.NewFSStore(cfg.Pipeline.AssetDir)
	if err != nil {
		pool.Close()
		logger.Error("Failed to initialize asset store", slog.Any("error", err))
		return nil, err
	}

	// Pipeline
	repo := pipeline.NewPostgresRepository(pool, logger)
	tourCache := cache.NewManager(cfg.Pipeline.CacheTTL, logger)
	fingerprinter := pipeline.NewFingerprinter(cfg.Pipeline.GridDegrees, cfg.Pipeline.DurationBucketMinutes)
	assembler := assemble.NewAssembler(cfg.Pipeline.DurationTolerancePct, logger)
	backoff := pipeline.NewBackoff(cfg.Pipeline.BackoffBase, cfg.Pipeline.BackoffMax)

	orch := pipeline.NewOrchestrator(
		pipeline.Params{
			MaxAttempts:       cfg.Pipeline.MaxAttempts,
			CallTimeout:       cfg.Pipeline.CallTimeout,
			ScriptConcurrency: int64(cfg.Pipeline.ScriptConcurrency),
			AudioConcurrency:  int64(cfg.Pipeline.AudioConcurrency),
			CacheTTL:          cfg.Pipeline.CacheTTL,
		},
		pipeline.Deps{
			Fingerprinter: fingerprinter,
			Resolver:      resolver,
			Retriever:     retriever,
			Scripts:       scripts,
			TTS:           tts,
			Assets:        assets,
			Assembler:     assembler,
			Repo:          repo,
			Cache:         tourCache,
			Metrics:       metrics.Get(),
		},
		backoff,
		logger,
	)

	sched := scheduler.New(orch, tourCache, seedRequests(cfg.Scheduler.Seeds), cfg.Scheduler.Interval, logger)

	// Handlers
	tourHandler := tour.NewTourHandler(orch, cfg.Pipeline.PreviewSegments, logger)
	previewService := preview.NewPreviewService(orch, cfg.Pipeline.PreviewSegments, logger)
	previewHandler := preview.NewPreviewHandler(previewService, logger)

	return &Container{
		Config:         cfg,
		Logger:         logger,
		Pool:           pool,
		Orchestrator:   orch,
		Scheduler:      sched,
		TourHandler:    tourHandler,
		PreviewHandler: previewHandler,
	}, nil
}

func seedRequests(seeds []config.SeedConfig) []types.TourRequest {
	reqs := make([]types.TourRequest, 0, len(seeds))
	for _, s := range seeds {
		categories := make([]types.Category, 0, len(s.Categories))
		for _, c := range s.Categories {
			categories = append(categories, types.Category(c))
		}
		reqs = append(reqs, types.TourRequest{
			Lat:             s.Lat,
			Lon:             s.Lon,
			RadiusMeters:    s.RadiusMeters,
			DurationMinutes: s.DurationMinutes,
			Categories:      categories,
			Language:        s.Language,
			Mode:            types.ModeAuthenticated,
		})
	}
	return reqs
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Orchestrator != nil {
		c.Orchestrator.Shutdown()
	}
	if c.Pool != nil {
		c.Pool.Close()
		c.Logger.Info("Database pool closed")
	}
}
