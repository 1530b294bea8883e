package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/mediaflow/internal/api/handler"
	"github.com/cuongbtq/mediaflow/internal/api/router"
	"github.com/cuongbtq/mediaflow/internal/app"
	"github.com/cuongbtq/mediaflow/internal/batch"
	"github.com/cuongbtq/mediaflow/internal/config"
	"github.com/cuongbtq/mediaflow/internal/worker"
	"github.com/cuongbtq/mediaflow/shared/kafka"
	"github.com/cuongbtq/mediaflow/shared/logger"
	"github.com/cuongbtq/mediaflow/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
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

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("batch_broker", cfg.Batch.Broker),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.New(ctx, cfg, appLogger.Component("runtime"))
	if err != nil {
		return err
	}

	go logPreflight(ctx, rt.Checker, appLogger.Logger)

	batchLogger := appLogger.Component("batch")
	publisher, closePublisher, err := initPublisher(ctx, cfg, rt, batchLogger)
	if err != nil {
		rt.Close()
		return fmt.Errorf("failed to initialize batch publisher: %w", err)
	}

	coordinator := batch.NewCoordinator(rt.Library, publisher, rt.Tracker, batchLogger)

	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:  appLogger.Component("http"),
		Jobs:    rt.Scheduler,
		Events:  rt.Scheduler.Emitter(),
		Batches: coordinator,
		Media:   rt.Library,
		System:  rt.Checker,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// Running jobs are cancelled here; in-process batch tasks settle as failed.
	cancel()
	closePublisher()

	if err := rt.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Scheduler shutdown incomplete", slog.Any("error", err))
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

// initPublisher picks where batch tasks go. With no broker the API runs the
// worker pool itself against its own scheduler.
func initPublisher(ctx context.Context, cfg *config.Config, rt *app.Runtime, logger *slog.Logger) (batch.Publisher, func(), error) {
	switch cfg.Batch.Broker {
	case config.BrokerRabbitMQ:
		client, err := initRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("RabbitMQ connection established")
		return batch.NewRabbitPublisher(client), func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close RabbitMQ", slog.Any("error", err))
			}
		}, nil

	case config.BrokerKafka:
		producer, err := kafka.NewProducer(kafkaConfig(&cfg.Kafka), logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Kafka producer established", slog.String("topic", cfg.Kafka.Topic))
		return batch.NewKafkaPublisher(producer), func() {
			if err := producer.Close(); err != nil {
				logger.Warn("Failed to close Kafka producer", slog.Any("error", err))
			}
		}, nil

	default:
		w := worker.NewWorker(&worker.Config{
			Logger:            logger,
			Scheduler:         rt.Scheduler,
			Tracker:           rt.Tracker,
			WorkerID:          cfg.Worker.ID,
			Concurrency:       cfg.Worker.Concurrency,
			JobTimeout:        cfg.Worker.JobTimeout,
			HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		})
		w.Start(ctx)
		return w, w.Stop, nil
	}
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
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

func kafkaConfig(cfg *config.KafkaConfig) *kafka.Config {
	return &kafka.Config{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		ClientID: cfg.ClientID,
	}
}

func logPreflight(ctx context.Context, checker *app.Checker, logger *slog.Logger) {
	st := checker.Check(ctx)
	if st.Healthy() {
		logger.Info("System check passed",
			slog.String("provider", st.Provider),
			slog.String("model", st.Model),
		)
		return
	}
	logger.Warn("System check reported problems",
		slog.String("provider", st.Provider),
		slog.String("model", st.Model),
		slog.Any("errors", st.Errors),
	)
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
