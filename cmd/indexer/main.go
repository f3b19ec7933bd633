package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinicore/chartlock/internal/adapters/database"
	"github.com/clinicore/chartlock/internal/adapters/search"
	"github.com/clinicore/chartlock/internal/domain/repositories"
	"github.com/clinicore/chartlock/internal/infrastructure/clients/postgres"
	"github.com/clinicore/chartlock/internal/infrastructure/clients/typesense"
	"github.com/clinicore/chartlock/internal/infrastructure/observability"
	"github.com/clinicore/chartlock/pkg/config"
)

const indexBatchSize = 500

func main() {
	var reset bool
	var intervalFlag string
	flag.BoolVar(&reset, "reset", false, "delete the existing Typesense collection before reindexing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.Parse()

	observability.InitLogger("chartlock-indexer", os.Getenv("APP_ENV"))

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	var err error
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			log.Fatal().Str("interval", intervalValue).Msg("invalid reindex interval")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := indexOnce(ctx, reset); err != nil {
			log.Error().Err(err).Msg("reindex failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		log.Info().Dur("interval", interval).Msg("reindex complete, waiting for next run")

		select {
		case <-ctx.Done():
			log.Info().Msg("reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, reset bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	documentRepo := database.NewDocumentAdapter(pgClient)

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		return err
	}

	if reset || os.Getenv("RESET_TYPESENSE") == "true" {
		log.Info().Msg("deleting documents collection before reindex")
		if _, err := tsClient.Client().Collection(typesense.DocumentsCollection).Delete(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to delete collection")
		}
	}

	index := search.NewTypesenseAdapter(tsClient)
	if err := index.InitSchema(ctx); err != nil {
		return err
	}

	indexed := 0
	for offset := 0; ; offset += indexBatchSize {
		docs, total, err := documentRepo.Search(ctx, repositories.SearchQuery{
			Limit:  indexBatchSize,
			Offset: offset,
		})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			if err := index.IndexDocument(ctx, doc); err != nil {
				log.Warn().Err(err).Str("document_id", doc.ID).Msg("failed to index document")
				continue
			}
			indexed++
		}

		if offset+len(docs) >= total {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	log.Info().Int("indexed", indexed).Msg("indexing complete")
	return nil
}
