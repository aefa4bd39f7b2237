package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-api/config"
	appointmentHandler "github.com/jwalitptl/hospital-api/internal/handler/appointment"
	authHandler "github.com/jwalitptl/hospital-api/internal/handler/auth"
	"github.com/jwalitptl/hospital-api/internal/handler/health"
	promHandler "github.com/jwalitptl/hospital-api/internal/handler/prometheus"
	userHandler "github.com/jwalitptl/hospital-api/internal/handler/user"
	wsHandler "github.com/jwalitptl/hospital-api/internal/handler/ws"
	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/internal/repository/postgres"
	"github.com/jwalitptl/hospital-api/internal/router"
	appointmentService "github.com/jwalitptl/hospital-api/internal/service/appointment"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	userService "github.com/jwalitptl/hospital-api/internal/service/user"
	"github.com/jwalitptl/hospital-api/internal/ws"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	"github.com/jwalitptl/hospital-api/pkg/messaging/kafka"
	"github.com/jwalitptl/hospital-api/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
	"github.com/jwalitptl/hospital-api/pkg/security"
	"github.com/jwalitptl/hospital-api/pkg/telemetry"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

const requestTimeout = 30 * time.Second

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "hospital-api",
		Short:        "Hospital appointment scheduling API",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yml")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createUserCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrate requires the postgres driver, got %q", cfg.Database.Driver)
			}

			db, err := postgres.NewDB(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "version", version)
			return nil
		},
	}
}

func createUserCmd() *cobra.Command {
	var email, name, password, role string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user of any role, including admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			users := userService.NewService(store.users, userConfig(cfg), log)
			user, err := users.Register(cmd.Context(), email, name, password, model.Role(role))
			if err != nil {
				return err
			}
			log.Info("user created", "user_id", user.ID.String(), "role", role)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&role, "role", string(model.RoleAdmin), "admin, doctor or patient")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	return cfg, log, nil
}

type store struct {
	db           *sqlx.DB
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	outbox       repository.OutboxRepository
}

func (s *store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*store, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory storage; data is lost on restart")
		return &store{
			appointments: memory.NewAppointmentRepository(cfg.Scheduling.LockTimeout),
			users:        memory.NewUserRepository(),
			outbox:       memory.NewOutboxRepository(),
		}, nil
	}

	notes, err := security.ParseAESKey(cfg.Security.NotesKey)
	if err != nil {
		return nil, fmt.Errorf("invalid notes key: %w", err)
	}
	if notes == nil {
		log.Warn("security.notes_key is empty; appointment notes are stored unencrypted")
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		version, err := postgres.Migrate(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		log.Info("database migrated", "version", version)
	}

	base := postgres.NewBaseRepository(db)
	return &store{
		db:           db,
		appointments: postgres.NewAppointmentRepository(base, cfg.Scheduling.LockTimeout, notes),
		users:        postgres.NewUserRepository(base),
		outbox:       postgres.NewOutboxRepository(base),
	}, nil
}

func openBroker(ctx context.Context, cfg *config.Config, log *logger.Logger) (messaging.Broker, error) {
	switch cfg.Broker.Type {
	case "redis":
		return redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log.Zerolog())
	case "kafka":
		return kafka.NewKafkaBroker(cfg.Kafka.ToBrokerConfig(), log.Zerolog())
	}
	return nil, nil
}

func userConfig(cfg *config.Config) userService.Config {
	return userService.Config{
		BcryptCost: cfg.Security.BcryptCost,
		Token:      cfg.JWT.ToAuthConfig(),
	}
}

func runServer() error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ToTelemetryConfig())
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error(err, "failed to flush traces")
		}
	}()

	m := metrics.New("hospital", prometheus.DefaultRegisterer)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	broker, err := openBroker(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	if broker != nil {
		defer broker.Close()
	}

	hub := ws.NewHub(cfg.Security.AllowedOrigins, log, m)

	sinks := []notification.Sink{notification.NewHubSink(hub)}
	switch {
	case cfg.Notifications.UseOutbox && store.db != nil:
		sinks = append(sinks, notification.NewOutboxSink(store.outbox, cfg.Broker.Topic))
	case broker != nil:
		sinks = append(sinks, notification.NewBrokerSink(broker, cfg.Broker.Topic, log))
	}
	dispatcher := notification.NewDispatcher(cfg.Notifications.ToDispatcherConfig(), log, m, sinks...)
	dispatcher.Start()

	hours, err := cfg.Scheduling.WorkingHours()
	if err != nil {
		return err
	}

	users := userService.NewService(store.users, userConfig(cfg), log)
	appointments := appointmentService.NewService(
		store.appointments,
		users,
		dispatcher,
		appointmentService.Config{
			WorkingHours: hours,
			MaxDuration:  time.Duration(cfg.Scheduling.MaxDurationMinutes) * time.Minute,
		},
		log,
		m,
	)

	gin.SetMode(cfg.Server.Mode)
	validator.Register()

	var pinger health.Pinger
	if store.db != nil {
		pinger = store.db
	}

	authMiddleware := middleware.NewAuthMiddleware(users)
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.Security.AllowedOrigins

	r := router.NewRouter(
		authMiddleware,
		router.Handlers{
			Auth:        authHandler.NewHandler(users),
			User:        userHandler.NewHandler(users, authMiddleware),
			Appointment: appointmentHandler.NewHandler(appointments),
			Websocket:   wsHandler.NewHandler(hub, log),
			Health:      health.NewHandler(pinger),
			Metrics:     promHandler.New(prometheus.DefaultGatherer),
		},
		log,
		m,
		router.RouterConfig{
			ServiceName:      cfg.Telemetry.ServiceName,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       corsConfig,
			RequestTimeout:   requestTimeout,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "driver", cfg.Database.Driver, "broker", cfg.Broker.Type)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error(err, "notification queue not drained")
	}
	log.Info("server exited")
	return nil
}
