package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, "mediaflow", cfg.Database.Database)
			assert.Equal(t, "mediaflow_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "batch_tasks", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "mediaflow-api", cfg.App.Name)
			assert.Equal(t, 2, cfg.Scheduler.MaxConcurrentJobs)
			assert.Equal(t, 2*time.Hour, cfg.Worker.JobTimeout)
			assert.Equal(t, BrokerRabbitMQ, cfg.Batch.Broker)
		})
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("MEDIAFLOW_TEST_DB_PASSWORD", "s3cret")
	t.Setenv("MEDIAFLOW_TEST_CLAUDE_KEY", "sk-test")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "sk-test", cfg.AI.APIKeys["claude"])
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/minimal_sqlite.yaml")
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Scheduler.MaxConcurrentJobs)
	assert.Equal(t, time.Second, cfg.Scheduler.AwaitPollInterval)
	assert.Equal(t, 500, cfg.Scheduler.MaxEvents)
	assert.Equal(t, "base", cfg.Transcription.Model)
	assert.Equal(t, "ollama", cfg.AI.DefaultProvider)
	assert.Equal(t, EngineNative, cfg.AI.Engine)
	assert.Equal(t, "http://localhost:11434", cfg.AI.OllamaEndpoint)
	assert.Equal(t, BrokerNone, cfg.Batch.Broker)
	assert.Equal(t, TrackerMemory, cfg.Batch.Tracker)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.NoError(t, cfg.ValidateAPIConfig())
}

func validAPIConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			Database: "mediaflow",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "mediaflow_exchange"},
			Queue:    QueueConfig{Name: "batch_tasks"},
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Batch: BatchConfig{Broker: BrokerRabbitMQ, Tracker: TrackerRedis},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{"valid config", func(*Config) {}, ""},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }, "unknown log level"},
		{"unknown analysis engine", func(c *Config) { c.AI.Engine = "remote" }, "unsupported analysis engine"},
		{"bridge analysis engine", func(c *Config) { c.AI.Engine = EngineBridge }, ""},
		{"invalid server port - too low", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"invalid server port - too high", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"empty database host", func(c *Config) { c.Database.Host = "" }, "database host is required"},
		{"empty database name", func(c *Config) { c.Database.Database = "" }, "database name is required"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"sqlite without path", func(c *Config) { c.Database.Driver = "sqlite" }, "database path is required"},
		{"empty rabbitmq host", func(c *Config) { c.RabbitMQ.Host = "" }, "rabbitmq host is required"},
		{"empty exchange name", func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, "rabbitmq exchange name is required"},
		{"empty queue name", func(c *Config) { c.RabbitMQ.Queue.Name = "" }, "rabbitmq queue name is required"},
		{"kafka without brokers", func(c *Config) { c.Batch.Broker = BrokerKafka }, "kafka brokers are required"},
		{"memory tracker with broker", func(c *Config) { c.Batch.Tracker = TrackerMemory }, "batch tracker must be redis"},
		{"redis tracker without addr", func(c *Config) { c.Redis.Addr = "" }, "redis addr is required"},
		{"unknown broker", func(c *Config) { c.Batch.Broker = "sqs" }, "unsupported batch broker"},
		{"storage without bucket", func(c *Config) { c.Storage.Endpoint = "localhost:9000" }, "storage bucket is required"},
		{
			name: "in-process batches",
			mutate: func(c *Config) {
				c.Batch = BatchConfig{Broker: BrokerNone, Tracker: TrackerMemory}
				c.RabbitMQ = RabbitMQConfig{}
			},
		},
		{
			name: "kafka broker",
			mutate: func(c *Config) {
				c.Batch.Broker = BrokerKafka
				c.Kafka = KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "batch-tasks", GroupID: "workers"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)
			err := cfg.ValidateAPIConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	valid := func() *Config {
		cfg := validAPIConfig()
		cfg.Worker = WorkerConfig{
			Concurrency:       1,
			JobTimeout:        time.Hour,
			HeartbeatInterval: 30 * time.Second,
			ShutdownTimeout:   time.Minute,
		}
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{"valid config", func(*Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, "worker concurrency"},
		{"zero timeout", func(c *Config) { c.Worker.JobTimeout = 0 }, "worker job_timeout"},
		{"zero heartbeat", func(c *Config) { c.Worker.HeartbeatInterval = 0 }, "worker heartbeat_interval"},
		{"zero shutdown", func(c *Config) { c.Worker.ShutdownTimeout = 0 }, "worker shutdown_timeout"},
		{"no broker", func(c *Config) { c.Batch.Broker = BrokerNone }, "worker needs a batch broker"},
		{"bad database", func(c *Config) { c.Database.Host = "" }, "database host is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateWorkerConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}
