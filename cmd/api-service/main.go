package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/research-crew/internal/api/handler"
	"github.com/cuongbtq/research-crew/internal/api/router"
	"github.com/cuongbtq/research-crew/internal/cache"
	"github.com/cuongbtq/research-crew/internal/config"
	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/cuongbtq/research-crew/internal/llm"
	"github.com/cuongbtq/research-crew/internal/notify"
	"github.com/cuongbtq/research-crew/internal/search"
	"github.com/cuongbtq/research-crew/internal/storage"
	"github.com/cuongbtq/research-crew/internal/workflow"
	"github.com/cuongbtq/research-crew/shared/logger"
	"github.com/cuongbtq/research-crew/shared/postgresql"
	"github.com/cuongbtq/research-crew/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		logger.NewDefault().Error("API service exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	baseLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer baseLogger.Close()

	appLogger := baseLogger.With("service", "api-service")

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	store := storage.NewStorage(dbClient)
	if cfg.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		appLogger.Info("Database schema is up to date")
	}

	redisClient := initRedis(ctx, cfg.Redis, appLogger.Logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	results := cache.NewResultStore(store, redisClient, cfg.Redis, appLogger.Logger)

	var publisher jobs.EventPublisher
	if cfg.RabbitMQ.Host != "" {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		publisher = notify.NewPublisher(rabbitClient)
		appLogger.Info("RabbitMQ connection established")
	} else {
		appLogger.Info("RabbitMQ not configured, lifecycle events are not published")
	}

	prompts := workflow.NewPrompts()
	catalog := workflow.DefaultCatalog(workflow.Deps{
		LLM:     llm.NewClient(cfg.LLM),
		Search:  search.New(cfg.Search),
		Prompts: prompts,
		Logger:  appLogger.WithAttrs(slog.String("component", "workflow")).Logger,
	})

	registry := jobs.NewRegistry()
	runner := jobs.NewRunner(jobs.RunnerConfig{
		Registry:  registry,
		Catalog:   catalog,
		Store:     results,
		Publisher: publisher,
		Logger:    appLogger.Logger,
	})

	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:   appLogger.Logger,
		Registry: registry,
		Runner:   runner,
		Jobs:     store,
		Results:  results,
		Database: dbClient,
		Prompts:  prompts,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		}

		// Running crews cannot be cancelled; give them the rest of the budget.
		if err := runner.Wait(shutdownCtx); err != nil {
			appLogger.Warn("Jobs still running at shutdown",
				slog.Int("in_flight", runner.InFlight()),
			)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRedis connects the result cache. A failure leaves caching disabled.
func initRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) *redis.Client {
	client, err := cache.NewClient(ctx, cfg)
	if err != nil {
		logger.Warn("Result cache disabled", slog.String("error", err.Error()))
		return nil
	}
	if client == nil {
		logger.Info("Redis not configured, result cache disabled")
		return nil
	}

	logger.Info("Redis connection established", slog.String("addr", cfg.Addr))
	return client
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(rabbitConfig(cfg), logger)
}

func rabbitConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
