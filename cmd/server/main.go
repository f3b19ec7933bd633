package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinicore/chartlock/internal/adapters/cache"
	"github.com/clinicore/chartlock/internal/adapters/database"
	"github.com/clinicore/chartlock/internal/adapters/events"
	"github.com/clinicore/chartlock/internal/adapters/search"
	"github.com/clinicore/chartlock/internal/api/handlers"
	"github.com/clinicore/chartlock/internal/api/routes"
	"github.com/clinicore/chartlock/internal/application/services"
	"github.com/clinicore/chartlock/internal/domain/providers"
	"github.com/clinicore/chartlock/internal/infrastructure/clients/postgres"
	"github.com/clinicore/chartlock/internal/infrastructure/clients/redis"
	"github.com/clinicore/chartlock/internal/infrastructure/clients/typesense"
	"github.com/clinicore/chartlock/internal/infrastructure/observability"
	"github.com/clinicore/chartlock/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)
	log.Info().Msg("starting document lifecycle service")

	ctx := context.Background()

	var metrics *observability.Metrics
	if cfg.OTEL.Enabled {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up telemetry")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("error shutting down telemetry")
			}
		}()

		metrics, err = observability.InitMetrics()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize metrics")
		}
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Redis client")
	}
	defer redisClient.Close()

	// Typesense is optional: search falls back to the store when absent
	var index providers.DocumentIndex
	if tsClient, err := typesense.NewClient(&cfg.Typesense); err != nil {
		log.Warn().Err(err).Msg("Typesense unavailable, search falls back to the store")
	} else {
		tsAdapter := search.NewTypesenseAdapter(tsClient)
		if err := tsAdapter.InitSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to initialize search schema")
		} else {
			index = tsAdapter
		}
	}

	cacheProvider := cache.NewRedisAdapter(redisClient)
	eventBus := events.NewRedisEventBus(redisClient)
	defer eventBus.Close()

	documentRepo := database.NewCachedDocumentAdapter(database.NewDocumentAdapter(pgClient), cacheProvider)
	snapshotRepo := database.NewSnapshotAdapter(pgClient)

	snapshotService := services.NewSnapshotService(snapshotRepo)
	viewTracker := services.NewViewTrackerService(documentRepo)
	documentService := services.NewDocumentService(
		documentRepo, snapshotService, viewTracker, eventBus, index,
		cfg.Documents.LockStaleAfter, nil,
	)
	amendmentService := services.NewAmendmentService(documentRepo, snapshotService, eventBus, index, nil)

	documentHandler := handlers.NewDocumentHandler(documentService, amendmentService)
	sseHandler := handlers.NewSSEHandler(eventBus)

	router := routes.NewRouter(documentHandler, sseHandler, metrics)
	handler := router.Setup(func(w http.ResponseWriter, r *http.Request) {
		if err := pgClient.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams are long-lived
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("error during server shutdown")
	}
}
