// Package app wires configuration into the long-lived components both services
// share: the media library, the phase handlers, the scheduler and the batch
// tracker.
package app

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cuongbtq/mediaflow/internal/acquire"
	"github.com/cuongbtq/mediaflow/internal/analysis"
	"github.com/cuongbtq/mediaflow/internal/archive"
	"github.com/cuongbtq/mediaflow/internal/batch"
	"github.com/cuongbtq/mediaflow/internal/bridge"
	"github.com/cuongbtq/mediaflow/internal/command"
	"github.com/cuongbtq/mediaflow/internal/config"
	"github.com/cuongbtq/mediaflow/internal/library"
	"github.com/cuongbtq/mediaflow/internal/llm"
	"github.com/cuongbtq/mediaflow/internal/media"
	"github.com/cuongbtq/mediaflow/internal/notify"
	"github.com/cuongbtq/mediaflow/internal/pipeline"
	"github.com/cuongbtq/mediaflow/internal/scheduler"
	"github.com/cuongbtq/mediaflow/shared/database"
	"github.com/cuongbtq/mediaflow/shared/objectstore"
	"github.com/cuongbtq/mediaflow/shared/redis"
)

// Runtime holds the components built from one configuration.
type Runtime struct {
	DB        *database.Client
	Library   *library.Store
	Scheduler *scheduler.Scheduler
	Tracker   batch.Tracker
	Redis     *goredis.Client
	Checker   *Checker

	logger     *slog.Logger
	stopMirror context.CancelFunc
}

// New connects the library database, migrates it and builds the scheduler with
// every phase handler. Redis and object storage are connected when configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	dbClient, err := database.NewClient(databaseConfig(&cfg.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	rt.DB = dbClient

	rt.Library = library.NewStore(dbClient.GetDB(), logger)
	if err := rt.Library.Migrate(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to migrate library: %w", err)
	}

	if cfg.Batch.Tracker == config.TrackerRedis || cfg.Redis.CacheJobStatus {
		rt.Redis, err = redis.NewClient(&redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
	}

	if cfg.Batch.Tracker == config.TrackerRedis {
		rt.Tracker = batch.NewRedisTracker(rt.Redis)
	} else {
		rt.Tracker = batch.NewMemoryTracker()
	}

	deps, err := rt.pipelineDeps(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}

	phases := pipeline.NewPhases(deps, pipeline.Config{
		DownloadDir:     cfg.Library.DownloadDir,
		TempDir:         cfg.Library.TempDir,
		WhisperModel:    cfg.Transcription.Model,
		Language:        cfg.Transcription.Language,
		DefaultProvider: cfg.AI.DefaultProvider,
		DefaultModel:    cfg.AI.DefaultModel,
		OllamaEndpoint:  cfg.AI.OllamaEndpoint,
	}, logger)

	emitter := notify.NewEmitter(cfg.Scheduler.MaxEvents, logger)
	rt.Scheduler = scheduler.New(scheduler.Config{
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		AwaitPollInterval: cfg.Scheduler.AwaitPollInterval,
	}, phases.Handlers(), emitter, logger)

	if cfg.Redis.CacheJobStatus {
		mirrorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		events, unsubscribe := emitter.Subscribe(256)
		sink := notify.NewRedisSink(rt.Redis, logger)
		go func() {
			defer unsubscribe()
			sink.Run(mirrorCtx, events)
		}()
		rt.stopMirror = cancel
	}

	return rt, nil
}

func (rt *Runtime) pipelineDeps(ctx context.Context, cfg *config.Config) (pipeline.Deps, error) {
	runner := command.ExecRunner{}
	bridgeClient := bridge.NewClient(cfg.Tools.Python, cfg.Tools.BridgeScript, runner, rt.logger)
	router := llm.NewRouter(cfg.AI.OllamaEndpoint)

	deps := pipeline.Deps{
		Downloader:  acquire.NewDownloader(cfg.Tools.YtDlp, runner, rt.logger),
		Media:       media.NewTool(cfg.Tools.FFmpeg, cfg.Tools.FFprobe, runner, rt.logger),
		Transcriber: bridgeClient,
		Analyzer:    analysis.NewAnalyzer(router, rt.logger),
		Library:     rt.Library,
		Keys:        pipeline.StaticKeys(cfg.AI.APIKeys),
	}
	if cfg.AI.Engine == config.EngineBridge {
		deps.Analyzer = bridgeClient
	}

	if cfg.Storage.Endpoint != "" {
		store, err := objectstore.NewClient(ctx, &objectstore.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		}, rt.logger)
		if err != nil {
			return pipeline.Deps{}, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		deps.Archiver = archive.New(store, cfg.Storage.Prefix, rt.logger)
	}

	rt.Checker = &Checker{
		bridge:   bridgeClient,
		models:   llm.NewOllama(cfg.AI.OllamaEndpoint),
		provider: cfg.AI.DefaultProvider,
		model:    cfg.AI.DefaultModel,
		endpoint: cfg.AI.OllamaEndpoint,
		keys:     pipeline.StaticKeys(cfg.AI.APIKeys),
	}
	return deps, nil
}

// Shutdown stops the scheduler, waiting for running phases until ctx ends.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	err := rt.Scheduler.Shutdown(ctx)
	rt.Close()
	return err
}

// Close releases connections. It is safe on a partially built Runtime.
func (rt *Runtime) Close() {
	if rt.stopMirror != nil {
		rt.stopMirror()
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.logger.Warn("Failed to close redis", slog.Any("error", err))
		}
	}
	if rt.DB != nil {
		if err := rt.DB.Close(); err != nil {
			rt.logger.Warn("Failed to close database", slog.Any("error", err))
		}
	}
}

func databaseConfig(cfg *config.DatabaseConfig) *database.Config {
	return &database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}
