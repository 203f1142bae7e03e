// Package config provides configuration structures and validation for the
// sync service. It handles environment-based configuration for all major
// components including the HTTP server, database connections, the SumUp API
// client, credential encryption, and sync batching parameters.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all
// components. Each field represents a major subsystem's configuration and is
// validated during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Kafka       KafkaConfig
	SumUp       SumUpConfig
	Encryption  EncryptionConfig
	Sync        SyncConfig
	Scheduler   SchedulerConfig
	WorkerPool  WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration for the sync-run audit store
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// KafkaConfig contains Kafka configuration for sync event publishing
type KafkaConfig struct {
	Brokers           string
	SyncEventsTopic   string // Topic for sync.completed events
	DLQTopic          string // Topic for per-transaction sync failures (empty disables the DLQ)
	NumPartitions     int
	ReplicationFactor int
	MaxWait           time.Duration
}

// SumUpConfig contains settings for the SumUp API client and OAuth exchange
type SumUpConfig struct {
	APIBaseURL          string        // Base URL of the SumUp REST API
	TokenURL            string        // OAuth token exchange endpoint
	DefaultClientID     string        // Fallback OAuth client id when a credential has none
	DefaultClientSecret string        // Fallback OAuth client secret
	PageSize            int           // Transaction history page size ceiling
	MaxPages            int           // Pagination safety ceiling
	HTTPTimeout         time.Duration // Timeout for individual API calls
}

// EncryptionConfig contains the key material for the credential vault
type EncryptionConfig struct {
	Key  string // Secret the vault key is derived from
	Salt string // Legacy key-derivation salt
}

// SyncConfig contains batching and reporting parameters for sync runs
type SyncConfig struct {
	ItemBatchSize    int           // Concurrent transactions per batch during item sync
	ItemBatchDelay   time.Duration // Delay between item sync batches
	FullBatchSize    int           // Concurrent transactions per batch during full history sync
	FullBatchDelay   time.Duration // Delay between full history sync batches
	DefaultItemLimit int           // Default cap on transactions processed by /sync-items
	MaxErrorDetails  int           // Cap on error descriptors reported per run
}

// SchedulerConfig contains the periodic background sync configuration
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	Lookback time.Duration // How far back each scheduled run fetches
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.SyncEventsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_SYNC_EVENTS_TOPIC is required")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_MAX_WAIT must be greater than 0")
	}

	// Validate SumUp config
	if c.SumUp.APIBaseURL == "" {
		validationErrors = append(validationErrors, "SUMUP_API_BASE_URL is required")
	}
	if c.SumUp.TokenURL == "" {
		validationErrors = append(validationErrors, "SUMUP_TOKEN_URL is required")
	}
	if c.SumUp.PageSize <= 0 {
		validationErrors = append(validationErrors, "SUMUP_PAGE_SIZE must be greater than 0")
	}
	if c.SumUp.MaxPages <= 0 {
		validationErrors = append(validationErrors, "SUMUP_MAX_PAGES must be greater than 0")
	}
	if c.SumUp.HTTPTimeout <= 0 {
		validationErrors = append(validationErrors, "SUMUP_HTTP_TIMEOUT must be greater than 0")
	}

	// Validate encryption config
	if c.Encryption.Key == "" {
		validationErrors = append(validationErrors, "ENCRYPTION_KEY is required")
	}

	// Validate sync config
	if c.Sync.ItemBatchSize <= 0 {
		validationErrors = append(validationErrors, "SYNC_ITEM_BATCH_SIZE must be greater than 0")
	}
	if c.Sync.FullBatchSize <= 0 {
		validationErrors = append(validationErrors, "SYNC_FULL_BATCH_SIZE must be greater than 0")
	}
	if c.Sync.DefaultItemLimit <= 0 {
		validationErrors = append(validationErrors, "SYNC_DEFAULT_ITEM_LIMIT must be greater than 0")
	}
	if c.Sync.MaxErrorDetails <= 0 {
		validationErrors = append(validationErrors, "SYNC_MAX_ERROR_DETAILS must be greater than 0")
	}

	// Validate scheduler config
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_INTERVAL must be greater than 0 when the scheduler is enabled")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
