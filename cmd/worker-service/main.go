package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/mediaflow/internal/app"
	"github.com/cuongbtq/mediaflow/internal/config"
	"github.com/cuongbtq/mediaflow/internal/worker"
	"github.com/cuongbtq/mediaflow/shared/kafka"
	"github.com/cuongbtq/mediaflow/shared/logger"
	"github.com/cuongbtq/mediaflow/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", cfg.Worker.ID),
		slog.String("broker", cfg.Batch.Broker),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.New(ctx, cfg, appLogger.Component("runtime"))
	if err != nil {
		return err
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Component("worker"),
		Scheduler:         rt.Scheduler,
		Tracker:           rt.Tracker,
		WorkerID:          cfg.Worker.ID,
		Concurrency:       cfg.Worker.Concurrency,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})
	workerInstance.Start(ctx)

	errChan := make(chan error, 1)
	closeConsumer, err := startConsumer(ctx, cfg, workerInstance, appLogger.Logger, errChan)
	if err != nil {
		cancel()
		workerInstance.Stop()
		rt.Close()
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Consumer error",
			slog.Any("error", runErr),
		)
	}

	// Cancel context to stop consuming and abandon running jobs
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	closeConsumer()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Scheduler shutdown incomplete", slog.Any("error", err))
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

// startConsumer feeds the worker from the configured broker. Consumer errors
// are reported on errChan.
func startConsumer(ctx context.Context, cfg *config.Config, w *worker.Worker, logger *slog.Logger, errChan chan<- error) (func(), error) {
	switch cfg.Batch.Broker {
	case config.BrokerKafka:
		consumer, err := kafka.NewConsumer(&kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			GroupID:  cfg.Kafka.GroupID,
			ClientID: cfg.Kafka.ClientID,
		}, logger)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := consumer.Consume(ctx, w.HandleKafka); err != nil && ctx.Err() == nil {
				errChan <- err
			}
		}()
		return func() {
			if err := consumer.Close(); err != nil {
				logger.Warn("Failed to close Kafka consumer", slog.Any("error", err))
			}
		}, nil

	default:
		client, err := initRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			return nil, err
		}
		deliveries, err := client.Consume(cfg.Worker.ID, cfg.RabbitMQ.Consumer.PrefetchCount)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("RabbitMQ consumer started", slog.String("queue", cfg.RabbitMQ.Queue.Name))
		go w.ConsumeRabbit(ctx, deliveries)
		return func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close RabbitMQ", slog.Any("error", err))
			}
		}, nil
	}
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
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
