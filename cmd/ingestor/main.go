package main

import (
	"context"
	"database/sql"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"review_pulse/internal/adapters/exportapi"
	"review_pulse/internal/adapters/observability"
	redisad "review_pulse/internal/adapters/redis"
	"review_pulse/internal/app"
	"review_pulse/internal/shared"
	mysqlrepo "review_pulse/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "ingestor")

	log.Info().
		Str("base", cfg.ExportBase).
		Int("workers", cfg.Workers).
		Int("brands", len(cfg.Brands)).
		Int("page_size", cfg.PageSize).
		Msg("ingestor starting")

	if len(cfg.Brands) == 0 {
		log.Fatal().Msg("INGEST_BRANDS is empty, nothing to ingest")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	client, err := exportapi.New(cfg.ExportBase, cfg.ExportKey, cfg.ExportRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize export client")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	// same key the api uses for a mysql-backed dataset
	ing := app.NewIngestionService(client, repo, cache, app.DatasetCacheKey(repo.Name()), cfg.PageSize)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var staged, failed int64

	for _, brand := range cfg.Brands {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("ingestion interrupted")
			break
		}

		wg.Add(1)
		go func(brand string) {
			defer wg.Done()
			defer sem.Release(1)

			n, err := ing.IngestBrand(ctx, brand)
			atomic.AddInt64(&staged, int64(n))
			if err != nil {
				atomic.AddInt64(&failed, 1)
				log.Warn().Str("brand", brand).Int("rows", n).Err(err).Msg("ingest failed")
				return
			}
			log.Info().Str("brand", brand).Int("rows", n).Msg("ingest ok")
		}(brand)
	}

	wg.Wait()
	log.Info().Int64("rows", staged).Int64("failed_brands", failed).Msg("ingestion completed")
}
