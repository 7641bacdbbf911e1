package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"novalyn/internal/adapters/repo"
	"novalyn/internal/domain"
	"novalyn/internal/httpapi"
	"novalyn/internal/infra/cache"
	"novalyn/internal/infra/config"
	"novalyn/internal/infra/db"
	httpinfra "novalyn/internal/infra/http"
	applog "novalyn/internal/infra/log"
	"novalyn/internal/infra/metrics"
	"novalyn/internal/infra/queue"
	"novalyn/internal/usecase/affinity"
	libraryusecase "novalyn/internal/usecase/library"
	"novalyn/internal/usecase/recommend"
	reviewusecase "novalyn/internal/usecase/review"
	shelfusecase "novalyn/internal/usecase/shelf"
	socialusecase "novalyn/internal/usecase/social"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect")
	}
	defer pool.Close()

	store := repo.NewPostgres(pool)

	var redisClient *redis.Client
	var recCache domain.Cache
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connect")
		}
		defer redisClient.Close()
		recCache = cache.NewRedis(redisClient)
	}

	var activityQueue domain.ActivityQueue
	switch {
	case cfg.Queues.RabbitURL != "":
		rabbit, err := queue.NewRabbitActivityQueue(cfg.Queues.RabbitURL, cfg.Queues.Activity)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq connect")
		}
		defer rabbit.Close()
		activityQueue = rabbit
	case redisClient != nil:
		activityQueue = queue.NewRedisActivityQueue(redisClient, cfg.Queues.Activity)
	default:
		logger.Warn().Msg("no queue configured, activity events disabled")
	}

	scorer := affinity.NewScorer()
	libraryService := libraryusecase.NewService(store, store, store, activityQueue, logger.With().Str("component", "library").Logger())
	recommendService := recommend.NewService(store, store, libraryService, scorer, recCache, recommend.Config{
		ListCap:          cfg.Recommend.ListCap,
		TrendingCap:      cfg.Recommend.TrendingCap,
		PeerLimit:        cfg.Recommend.PeerLimit,
		NewReleaseWindow: time.Duration(cfg.Recommend.NewReleaseDays) * 24 * time.Hour,
		CacheTTL:         time.Duration(cfg.Recommend.CacheTTLSeconds) * time.Second,
	})
	socialService := socialusecase.NewService(store, store, store, libraryService, scorer, store, activityQueue,
		logger.With().Str("component", "social").Logger(), cfg.Recommend.SuggestUserLimit, cfg.Feed.MaxItems)

	reviewService := reviewusecase.NewService(store, store, store, store, logger.With().Str("component", "review").Logger())
	shelfService := shelfusecase.NewService(store, store, logger.With().Str("component", "shelf").Logger())

	server := httpinfra.NewServer(logger, fmt.Sprintf(":%d", cfg.Port))
	api := httpapi.NewServer(store, libraryService, recommendService, socialService, reviewService, shelfService,
		logger.With().Str("component", "api").Logger(), cfg.JWTSecret)
	api.Routes(server.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
