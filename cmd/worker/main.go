package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hospital-api/config"
	"github.com/jwalitptl/hospital-api/internal/email"
	"github.com/jwalitptl/hospital-api/internal/handler/health"
	promHandler "github.com/jwalitptl/hospital-api/internal/handler/prometheus"
	"github.com/jwalitptl/hospital-api/internal/repository/postgres"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	"github.com/jwalitptl/hospital-api/pkg/messaging/kafka"
	"github.com/jwalitptl/hospital-api/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
	"github.com/jwalitptl/hospital-api/pkg/telemetry"
	"github.com/jwalitptl/hospital-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	healthAddr := flag.String("health-addr", ":8081", "address for health and metrics endpoints")
	flag.Parse()

	if err := run(*configPath, *healthAddr); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}
}

func run(configPath, healthAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("worker requires the postgres driver, got %q", cfg.Database.Driver)
	}

	logger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	}).With("component", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := cfg.Telemetry.ToTelemetryConfig()
	telemetryCfg.ServiceName += "-worker"
	shutdownTracing, err := telemetry.Setup(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	broker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	m := metrics.New("hospital_worker", prometheus.DefaultRegisterer)

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		cfg.Outbox.ToWorkerConfig(),
		logger,
		m,
	)
	cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.ToCleanupConfig(), logger)

	hours, err := cfg.Scheduling.WorkingHours()
	if err != nil {
		return err
	}
	notifier := notification.NewEmailNotifier(
		email.NewSMTPService(cfg.SMTP.ToEmailConfig()),
		userRepo,
		hours.Location,
		logger,
		m,
	)
	messages, err := broker.Subscribe(ctx, cfg.Broker.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", cfg.Broker.Topic, err)
	}

	srv := healthServer(healthAddr, db)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "health check server failed")
			os.Exit(1)
		}
	}()

	var wg sync.WaitGroup
	for _, fn := range []func(context.Context){
		processor.Start,
		cleanup.Start,
		func(ctx context.Context) { notifier.Run(ctx, messages) },
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	logger.Info("worker started", "broker", cfg.Broker.Type, "topic", cfg.Broker.Topic)
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()
	return nil
}

func newBroker(ctx context.Context, cfg *config.Config, logger *logger.Logger) (messaging.Broker, error) {
	switch cfg.Broker.Type {
	case "redis":
		return redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), logger.Zerolog())
	case "kafka":
		return kafka.NewKafkaBroker(cfg.Kafka.ToBrokerConfig(), logger.Zerolog())
	}
	return nil, fmt.Errorf("worker requires a broker, got %q", cfg.Broker.Type)
}

func healthServer(addr string, db health.Pinger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(db).RegisterRoutes(engine)
	promHandler.New(prometheus.DefaultGatherer).RegisterRoutes(engine)

	return &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
