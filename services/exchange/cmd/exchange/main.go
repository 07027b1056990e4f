package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/health"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/httpmiddleware"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/kafka"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/logging"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/metrics"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/trace"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/config"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/consumer"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/engine"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/handlers"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/registry"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/service"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(promRegistry)

	exchangeMetrics := service.NewMetrics(promRegistry)
	kafkaMetrics := kafka.NewProducerMetrics(promRegistry)

	ready := health.NewManager(false)

	authority, err := uuid.Parse(cfg.Authority)
	if err != nil {
		logger.Error("invalid authority principal", "error", err)
		os.Exit(1)
	}

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.New(pool)
	if err := store.EnsureSchema(context.Background()); err != nil {
		logger.Error("journal schema init failed", "error", err)
		os.Exit(1)
	}

	registryClient, err := registry.New(cfg.Registry.BaseURL, cfg.Registry.Timeout, logging.WithComponent(logger, "registry"))
	if err != nil {
		logger.Error("registry client init failed", "error", err)
		os.Exit(1)
	}

	var assetRegistry engine.AssetRegistry = registryClient
	if cfg.Registry.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Registry.RedisAddr})
		defer redisClient.Close()
		assetRegistry = registry.NewCachedClient(registryClient, redisClient, cfg.Registry.CacheTTL, logging.WithComponent(logger, "registry-cache"))
	}

	heights := engine.NewIntervalHeight(time.Unix(cfg.Heights.GenesisUnix, 0), cfg.Heights.BlockInterval)

	eng, err := engine.NewExchange(authority, cfg.FeeRateBps, assetRegistry, heights, logging.WithComponent(logger, "engine"))
	if err != nil {
		logger.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafkaMetrics)
	if err != nil {
		logger.Error("kafka producer init failed", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	publisher := kafka.NewDLQPublisher(producer, producer, cfg.Kafka.Topics.DeadLetter, logger)

	consumerGroup, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger)
	if err != nil {
		logger.Error("kafka consumer init failed", "error", err)
		os.Exit(1)
	}
	defer consumerGroup.Close()
	consumerGroup.WithDLQ(producer, cfg.Kafka.Topics.DeadLetter, 3)

	exchangeSvc := service.NewExchangeService(eng, publisher, logger, exchangeMetrics, service.Topics{
		OrdersCreated:   cfg.Kafka.Topics.OrdersCreated,
		OrdersCancelled: cfg.Kafka.Topics.OrdersCancelled,
		TradesSettled:   cfg.Kafka.Topics.TradesSettled,
	})

	handler := handlers.New(exchangeSvc, store, logger)
	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(promRegistry)))

	handler.Register(router, []byte(cfg.JWTSecret))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	journalConsumer := consumer.NewJournalConsumer(store, consumer.Topics{
		OrdersCreated:   cfg.Kafka.Topics.OrdersCreated,
		OrdersCancelled: cfg.Kafka.Topics.OrdersCancelled,
		TradesSettled:   cfg.Kafka.Topics.TradesSettled,
	}, logging.WithComponent(logger, "journal"), exchangeMetrics)

	ready.SetReady(true)

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	go func() {
		logger.Info("exchange http starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		topics := []string{cfg.Kafka.Topics.OrdersCreated, cfg.Kafka.Topics.OrdersCancelled, cfg.Kafka.Topics.TradesSettled}
		logger.Info("exchange journal consumer starting", "topics", topics)
		if err := consumerGroup.Consume(consumerCtx, topics, journalConsumer); err != nil {
			logger.Error("kafka consumer error", "error", err)
		}
	}()

	waitForShutdown(httpServer, ready, consumerCancel, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.DB.User,
		cfg.DB.Password,
		cfg.DB.Host,
		cfg.DB.Port,
		cfg.DB.Name,
		cfg.DB.SSLMode,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForShutdown(httpServer *http.Server, ready *health.Manager, cancel context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
