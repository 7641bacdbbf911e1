package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"novalyn/internal/adapters/repo"
	"novalyn/internal/domain"
	"novalyn/internal/infra/config"
	"novalyn/internal/infra/db"
	applog "novalyn/internal/infra/log"
	"novalyn/internal/infra/metrics"
	"novalyn/internal/infra/queue"
	"novalyn/internal/usecase/activity"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).With().Str("component", "activity-worker").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect")
	}
	defer pool.Close()

	store := repo.NewPostgres(pool)

	var activityQueue domain.ActivityQueue
	switch {
	case cfg.Queues.RabbitURL != "":
		rabbit, err := queue.NewRabbitActivityQueue(cfg.Queues.RabbitURL, cfg.Queues.Activity)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq connect")
		}
		defer rabbit.Close()
		activityQueue = rabbit
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connect")
		}
		defer client.Close()
		activityQueue = queue.NewRedisActivityQueue(client, cfg.Queues.Activity)
	default:
		logger.Fatal().Msg("no queue configured")
	}

	go metrics.StartServer(ctx, logger, ":9090")

	logger.Info().Str("queue", cfg.Queues.Activity).Msg("activity worker started")

	worker := activity.NewWorker(activityQueue, store, logger)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("activity worker stopped")
		return
	}
	logger.Info().Msg("activity worker stopped")
}
