package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/bookstore-api/internal/auth"
	"github.com/joao-fontenele/bookstore-api/internal/cart"
	"github.com/joao-fontenele/bookstore-api/internal/catalog"
	"github.com/joao-fontenele/bookstore-api/internal/config"
	"github.com/joao-fontenele/bookstore-api/internal/messaging"
	"github.com/joao-fontenele/bookstore-api/internal/orders"
	"github.com/joao-fontenele/bookstore-api/internal/social"
	"github.com/joao-fontenele/bookstore-api/internal/stats"
	"github.com/joao-fontenele/bookstore-api/internal/store"
	"github.com/joao-fontenele/bookstore-api/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Require("POSTGRES_URL", "MONGO_URI", "JWT_SECRET"); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.Version)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer flush(logger, "tracer", shutdownTracer)

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.ServiceName, cfg.Version)
	if err != nil {
		return fmt.Errorf("initialize meter: %w", err)
	}
	defer flush(logger, "meter", shutdownMeter)

	db, err := store.OpenPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	mongo, err := store.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer flush(logger, "mongo", mongo.Close)

	socialRepo := social.NewRepository(mongo.Database())
	if err := socialRepo.EnsureIndexes(ctx); err != nil {
		return err
	}

	var publisher orders.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderCompleted)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events are not published")
	}

	books := catalog.NewBookRepository(db)
	synchronizer, err := stats.NewSynchronizer(socialRepo, books, logger)
	if err != nil {
		return err
	}
	checkout, err := orders.NewCheckout(db, publisher, logger)
	if err != nil {
		return err
	}

	router := newRouter(cfg.ServiceName, handlers{
		cart:    cart.NewHandler(cart.NewCartRepository(db), logger),
		orders:  orders.NewHandler(checkout, orders.NewOrderRepository(db), orders.NewPDFRenderer("Bookstore"), logger),
		social:  social.NewHandler(socialRepo, books, synchronizer, logger),
		catalog: catalog.NewHandler(books, logger),
		health: healthHandler(map[string]pinger{
			"postgres": pingFunc(db.PingContext),
			"mongo":    mongo,
		}, logger),
		metrics: metricsHandler,
	}, auth.NewAuthenticator(cfg.JWTSecret), logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting bookstore api", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func flush(logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("shutdown error", "component", name, "error", err)
	}
}
