package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/archive"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/cache"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/config"
	httpHandler "github.com/cypherlabdev/odds-arbitrage-service/internal/handler/http"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/messaging"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/metrics"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/provider/oddsapi"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/provider/polymarket"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/service"
	"github.com/cypherlabdev/odds-arbitrage-service/pkg/arbitrage"
	"github.com/cypherlabdev/odds-arbitrage-service/pkg/merger"
	"github.com/cypherlabdev/odds-arbitrage-service/pkg/normalizer"
)

func main() {
	configPath := os.Getenv("ODDS_ARBITRAGE_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("starting odds-arbitrage-service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Create Redis cache
	redisCache := cache.NewRedisCache(
		cache.RedisCacheConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		},
		logger,
	)
	defer redisCache.Close()

	// Test Redis connection
	if err := redisCache.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

	deps := service.Dependencies{
		Normalizer: normalizer.NewNormalizer(logger),
		Engine:     arbitrage.NewEngine(cfg.Arbitrage.ToEngineParams(), logger),
		Fetcher: oddsapi.NewClient(oddsapi.Config{
			BaseURL:           cfg.OddsAPI.BaseURL,
			APIKey:            cfg.OddsAPI.APIKey,
			Sport:             cfg.OddsAPI.Sport,
			Regions:           cfg.OddsAPI.Regions,
			Timeout:           cfg.OddsAPI.Timeout,
			RequestsPerMinute: cfg.OddsAPI.RequestsPerMinute,
		}, m, logger),
		Cache:   redisCache,
		Metrics: m,
	}

	sourceName := cfg.Polymarket.SourceName
	if cfg.Polymarket.Enabled {
		market := polymarket.NewClient(polymarket.Config{
			Host:              cfg.Polymarket.Host,
			SourceName:        cfg.Polymarket.SourceName,
			SlugPrefix:        cfg.Polymarket.SlugPrefix,
			TeamAbbreviations: cfg.Polymarket.TeamAbbreviations,
			Timeout:           cfg.Polymarket.Timeout,
			RequestsPerMinute: cfg.Polymarket.RequestsPerMinute,
			MaxPages:          cfg.Polymarket.MaxPages,
		}, m, logger)
		deps.Market = market
		sourceName = market.Source()
		logger.Info().Str("host", cfg.Polymarket.Host).Msg("prediction market source enabled")
	}
	deps.Merger = merger.NewMerger(sourceName, logger)

	if cfg.Kafka.PublisherEnabled {
		publisher := messaging.NewKafkaPublisher(messaging.KafkaPublisherConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.OpportunitiesTopic,
		}, logger)
		defer publisher.Close()
		deps.Publisher = publisher
		logger.Info().Str("topic", cfg.Kafka.OpportunitiesTopic).Msg("opportunity publisher enabled")
	}

	if cfg.Archive.Enabled {
		archiver, err := archive.NewS3Archiver(ctx, archive.Config{
			Bucket:         cfg.Archive.Bucket,
			Prefix:         cfg.Archive.Prefix,
			Region:         cfg.Archive.Region,
			Endpoint:       cfg.Archive.Endpoint,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create feed archiver")
		}
		deps.Archiver = archiver
		logger.Info().Str("bucket", cfg.Archive.Bucket).Msg("feed archive enabled")
	}

	arbitrageService := service.NewArbitrageService(deps, logger)
	logger.Info().Msg("arbitrage service initialized")

	// Initialize HTTP handler
	arbitrageHandler := httpHandler.NewArbitrageHandler(arbitrageService, logger)

	// Setup HTTP server routes
	mux := http.NewServeMux()

	// Health and monitoring endpoints
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		readyHandler(w, r, redisCache)
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Register API routes
	arbitrageHandler.RegisterRoutes(mux)
	logger.Info().Msg("API routes registered")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		return nil
	})

	if cfg.Poller.Enabled {
		poller := service.NewPoller(arbitrageService, cfg.Poller.Interval, cfg.Poller.RunOnStart, logger)
		g.Go(func() error {
			return poller.Run(gctx)
		})
	}

	if cfg.Kafka.ConsumerEnabled {
		consumer := messaging.NewKafkaConsumer(
			messaging.KafkaConsumerConfig{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.Topic,
				GroupID: cfg.Kafka.GroupID,
			},
			arbitrageService,
			logger,
		)
		defer consumer.Close()

		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("service stopped with error")
	}

	logger.Info().Msg("shutdown complete")
}

// setupLogger configures the logger based on config
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set format
	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return log.Logger.With().Str("service", "odds-arbitrage").Logger()
}

// healthHandler returns 200 if service is running
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyHandler returns 200 if service is ready to accept traffic
func readyHandler(w http.ResponseWriter, r *http.Request, cache service.Cache) {
	// Check Redis connection
	if err := cache.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Redis unavailable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}
