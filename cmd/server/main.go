package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"linkshort/internal/analytics"
	"linkshort/internal/cache"
	"linkshort/internal/config"
	"linkshort/internal/handlers"
	"linkshort/internal/links"
	"linkshort/internal/logger"
	"linkshort/internal/middleware"
	"linkshort/internal/repository"
	"linkshort/internal/resolver"
	"linkshort/pkg/shortcode"
)

// Коды, занятые под собственные маршруты сервиса.
var reservedCodes = []string{
	"api", "metrics", "healthz", "stats", "admin", "static", "favicon.ico",
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.AppEnv)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to ping redis")
	}

	linkCache := cache.New(rdb)
	linksRepo := repository.NewLinks(db)
	clicksRepo := repository.NewClicks(db)

	gen := shortcode.New(cfg.CodeLength, reservedCodes...)
	linksSvc := links.NewService(linksRepo, gen, linkCache, cfg.CodeRetries, log)

	recorder := analytics.NewRecorder(clicksRepo, cfg.ClickWorkers, cfg.ClickQueueSize,
		cfg.ClickFlushSize, cfg.ClickFlushInterval, log)
	recorder.Start()

	pruner := analytics.NewPruner(clicksRepo, cfg.ClickRetention, cfg.PruneInterval, log)
	pruner.Start()

	analyticsSvc := analytics.NewService(clicksRepo, linksSvc)
	res := resolver.New(linksRepo, linkCache, recorder, gen, cfg.CacheTTL, log)

	rl := middleware.NewRateLimiter(cfg.RateLimit, cfg.RatePer)

	h := handlers.New(linksSvc, analyticsSvc, res, cfg.BaseURL)
	router := handlers.NewRouter(h, handlers.RouterConfig{
		JWTSecret:   cfg.JWTSecret,
		RateLimiter: rl,
		Log:         log,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	// Сначала дожимаем очередь кликов, потом закрываем хранилища.
	recorder.Stop()
	pruner.Stop()
	rl.Stop()
	linkCache.Close()

	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close redis")
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
	log.Info().Msg("server stopped")
}
