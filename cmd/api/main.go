package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	bqsource "review_pulse/internal/adapters/bigquery"
	"review_pulse/internal/adapters/csvsource"
	server "review_pulse/internal/adapters/http_server"
	"review_pulse/internal/adapters/observability"
	redisad "review_pulse/internal/adapters/redis"
	"review_pulse/internal/app"
	"review_pulse/internal/domain"
	"review_pulse/internal/shared"
	mysqlrepo "review_pulse/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	src, closeSrc := openSource(ctx, cfg)
	defer closeSrc()

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	var dsCache domain.Cache = cache
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, using process cache only")
		dsCache = nil
	}
	q := app.NewQueryService(src, dsCache, cfg.CacheTTL, cfg.LocalTZ, cfg.Policy)

	// warm the cache; a failure here is reported per request later
	if _, err := q.Dataset(ctx); err != nil {
		log.Warn().Err(err).Msg("initial dataset load failed")
	}

	srv := server.New(30 * time.Second)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("source", src.Name()).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}

// openSource builds the ReviewSource named by SOURCE.
func openSource(ctx context.Context, cfg shared.Config) (domain.ReviewSource, func()) {
	lookback := time.Duration(cfg.LookbackDays) * 24 * time.Hour

	switch cfg.Source {
	case "bigquery":
		src, err := bqsource.New(ctx, cfg.BQProject, cfg.BQTable, cfg.BQTimeColumn, cfg.LookbackDays, shared.GCPClientOptions()...)
		if err != nil {
			log.Fatal().Err(err).Msg("bigquery source init failed")
		}
		return src, func() { _ = src.Close() }

	case "csv":
		src, err := csvsource.New(cfg.CSVPath, shared.GCPClientOptions()...)
		if err != nil {
			log.Fatal().Err(err).Msg("csv source init failed")
		}
		return src, func() {}

	case "mysql", "":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		return mysqlrepo.New(db).WithLookback(lookback), func() { _ = db.Close() }
	}

	log.Fatal().Str("source", cfg.Source).Msg("unknown SOURCE, want mysql|bigquery|csv")
	return nil, nil
}
