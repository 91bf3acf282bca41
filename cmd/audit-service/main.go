package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/research-crew/internal/audit"
	"github.com/cuongbtq/research-crew/internal/config"
	"github.com/cuongbtq/research-crew/internal/storage"
	"github.com/cuongbtq/research-crew/shared/logger"
	"github.com/cuongbtq/research-crew/shared/postgresql"
	"github.com/cuongbtq/research-crew/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		logger.NewDefault().Error("Audit service exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("AUDIT_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/audit-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAuditConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	baseLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer baseLogger.Close()

	appLogger := baseLogger.With("service", "audit-service")

	appLogger.Info("Starting audit service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	store := storage.NewStorage(dbClient)
	if cfg.Database.AutoMigrate {
		if err := store.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	service := audit.NewService(&audit.Config{
		Logger:        appLogger.WithGroup("consumer").Logger,
		Consumer:      rabbitClient,
		Store:         store,
		Concurrency:   cfg.Audit.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		WriteTimeout:  cfg.Audit.WriteTimeout,
		ConsumerTag:   consumerTag(cfg.App.Name),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- service.Start(ctx)
	}()

	appLogger.Info("Audit service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Audit service error", slog.Any("error", err))
		}
		return err
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, audit.ErrDeliveriesClosed) {
			appLogger.Error("Audit service stopped with error", slog.Any("error", err))
		}
		appLogger.Info("Audit service stopped gracefully")
	case <-time.After(cfg.Audit.ShutdownTimeout):
		appLogger.Warn("Audit shutdown timeout exceeded, forcing exit")
	}

	return nil
}

func consumerTag(appName string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return appName
	}
	return fmt.Sprintf("%s-%s", appName, host)
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

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
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
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
