package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/backstage/services/catalog/config"
	"example.com/backstage/services/catalog/internal/api"
	"example.com/backstage/services/catalog/internal/cache"
	"example.com/backstage/services/catalog/internal/database"
	"example.com/backstage/services/catalog/internal/metrics"
	"example.com/backstage/services/catalog/internal/repositories"
	"example.com/backstage/services/catalog/internal/search"
	"example.com/backstage/services/catalog/internal/services"
	"example.com/backstage/services/catalog/internal/tracing"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server and the background publisher for product events`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}
	configureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.Connect(cfg.DB, cfg.Environment)
	if err != nil {
		return err
	}
	defer db.Close()

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}
	defer tracer.Close()

	var productCache services.ProductCache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	} else if redisCache.Enabled() {
		productCache = redisCache
		defer redisCache.Close()
	}

	var productIndex services.ProductIndex
	if cfg.Elastic.Enabled {
		elasticClient, err := search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		} else {
			productIndex = elasticClient
		}
	}

	metricsCollector := metrics.NewMetrics()

	stack, err := newEventStack(cfg, metricsCollector, tracer)
	if err != nil {
		return err
	}
	defer stack.bus.Close()

	repo := repositories.NewProductRepository(db.DB(), nil)
	catalogService := services.NewCatalogService(repo, productCache, productIndex, stack.pipeline, tracer)
	server := api.NewServer(cfg, catalogService, metricsCollector, stack.dispatcher, tracer)

	scheduler, err := newStatsScheduler(stack, metricsCollector, cfg.Jobs.StatsInterval)
	if err != nil {
		return err
	}

	stack.dispatcher.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		return scheduler.Shutdown()
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}

		// requests have stopped, publish what is still queued
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return stack.dispatcher.Stop(drainCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("API server error")
		return err
	}

	log.Info().Msg("API server shut down gracefully")
	return nil
}
