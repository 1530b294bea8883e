package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuongbtq/mediaflow/shared/logger"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Batch queue brokers.
const (
	BrokerNone     = "none"
	BrokerRabbitMQ = "rabbitmq"
	BrokerKafka    = "kafka"
)

// Batch status trackers.
const (
	TrackerMemory = "memory"
	TrackerRedis  = "redis"
)

// Config represents the complete application configuration
type Config struct {
	App           AppConfig           `yaml:"app"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Redis         RedisConfig         `yaml:"redis"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Tools         ToolsConfig         `yaml:"tools"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	AI            AIConfig            `yaml:"ai"`
	Library       LibraryConfig       `yaml:"library"`
	Batch         BatchConfig         `yaml:"batch"`
	Worker        WorkerConfig        `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the library database connection. Driver is "postgres"
// or "sqlite"; sqlite only needs Path.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	GroupID  string   `yaml:"group_id"`
	ClientID string   `yaml:"client_id"`
}

// RedisConfig is used by the redis batch tracker and the job status cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	// CacheJobStatus mirrors job snapshots into redis for other processes.
	CacheJobStatus bool `yaml:"cache_job_status"`
}

// StorageConfig enables archiving of transcripts and reports to an
// S3-compatible bucket. Empty Endpoint disables it.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

type SchedulerConfig struct {
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	AwaitPollInterval time.Duration `yaml:"await_poll_interval"`
	MaxEvents         int           `yaml:"max_events"`
}

// ToolsConfig locates external binaries. Empty values resolve on PATH.
type ToolsConfig struct {
	FFmpeg       string `yaml:"ffmpeg"`
	FFprobe      string `yaml:"ffprobe"`
	YtDlp        string `yaml:"yt_dlp"`
	Python       string `yaml:"python"`
	BridgeScript string `yaml:"bridge_script"`
}

type TranscriptionConfig struct {
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// Analysis engines.
const (
	EngineNative = "native"
	EngineBridge = "bridge"
)

// AIConfig selects the analysis engine and its default model. The bridge
// engine runs the helper's own analyze command instead of the built-in
// prompt sequence.
type AIConfig struct {
	Engine          string            `yaml:"engine"`
	DefaultProvider string            `yaml:"default_provider"`
	DefaultModel    string            `yaml:"default_model"`
	OllamaEndpoint  string            `yaml:"ollama_endpoint"`
	APIKeys         map[string]string `yaml:"api_keys"`
}

type LibraryConfig struct {
	DownloadDir string `yaml:"download_dir"`
	TempDir     string `yaml:"temp_dir"`
}

type BatchConfig struct {
	Broker  string `yaml:"broker"`
	Tracker string `yaml:"tracker"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID                string        `yaml:"id"`
	Concurrency       int           `yaml:"concurrency"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment and fills defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		c.Scheduler.MaxConcurrentJobs = 1
	}
	if c.Scheduler.AwaitPollInterval <= 0 {
		c.Scheduler.AwaitPollInterval = time.Second
	}
	if c.Scheduler.MaxEvents <= 0 {
		c.Scheduler.MaxEvents = 500
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "base"
	}
	if c.AI.Engine == "" {
		c.AI.Engine = EngineNative
	}
	if c.AI.DefaultProvider == "" {
		c.AI.DefaultProvider = "ollama"
	}
	if c.AI.OllamaEndpoint == "" {
		c.AI.OllamaEndpoint = "http://localhost:11434"
	}
	if c.Batch.Broker == "" {
		c.Batch.Broker = BrokerNone
	}
	if c.Batch.Tracker == "" {
		c.Batch.Tracker = TrackerMemory
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = "media"
	}
}

// ValidateAPIConfig checks the settings the API service depends on.
func (c *Config) ValidateAPIConfig() error {
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateAI(); err != nil {
		return err
	}
	return c.validateStorage()
}

// ValidateWorkerConfig checks the settings the worker service depends on.
func (c *Config) ValidateWorkerConfig() error {
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}
	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}
	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}
	if c.Batch.Broker == BrokerNone {
		return fmt.Errorf("worker needs a batch broker (rabbitmq or kafka)")
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateAI(); err != nil {
		return err
	}
	return c.validateStorage()
}

func (c *Config) validateAI() error {
	switch c.AI.Engine {
	case "", EngineNative, EngineBridge:
		return nil
	default:
		return fmt.Errorf("unsupported analysis engine: %s", c.AI.Engine)
	}
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
		return nil
	case "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *Config) validateBatch() error {
	switch c.Batch.Broker {
	case BrokerNone:
	case BrokerRabbitMQ:
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	case BrokerKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka group_id is required")
		}
	default:
		return fmt.Errorf("unsupported batch broker: %s", c.Batch.Broker)
	}

	switch c.Batch.Tracker {
	case TrackerMemory:
		if c.Batch.Broker != BrokerNone {
			return fmt.Errorf("batch tracker must be redis when a broker is used")
		}
	case TrackerRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
	default:
		return fmt.Errorf("unsupported batch tracker: %s", c.Batch.Tracker)
	}
	if c.Redis.CacheJobStatus && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Endpoint == "" {
		return nil
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	return nil
}
