package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/bookstore-api/internal/config"
	"github.com/joao-fontenele/bookstore-api/internal/messaging"
	"github.com/joao-fontenele/bookstore-api/internal/notifier"
	"github.com/joao-fontenele/bookstore-api/internal/social"
	"github.com/joao-fontenele/bookstore-api/internal/store"
	"github.com/joao-fontenele/bookstore-api/internal/telemetry"
)

const consumerGroup = "order-notifier"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("KAFKA_BROKERS", "MONGO_URI"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "order-notifier", cfg.Version)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	mongo, err := store.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		logger.Error("failed to connect to mongo", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = mongo.Close(closeCtx)
	}()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderCompleted, consumerGroup)
	defer func() { _ = consumer.Close() }()

	handler := notifier.NewHandler(social.NewRepository(mongo.Database()), logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting order notifier", "brokers", cfg.KafkaBrokers, "group", consumerGroup)

	if err := consumer.Consume(ctx, handler.Handle); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
