// Package config provides configuration structures and validation for the
// reconciliation service. It handles environment-based configuration for all
// major components including the operator HTTP server, database connections,
// message topics, queue lanes, bank feed clients and matching thresholds.
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
	Application    ApplicationConfig
	Logging        LoggingConfig
	Server         ServerConfig
	Postgres       PostgresConfig
	MongoDB        MongoDBConfig
	Kafka          KafkaConfig
	Queue          QueueConfig
	Scheduler      SchedulerConfig
	Reconciliation ReconciliationConfig
	Banks          BanksConfig
	Dominio        DominioConfig
	WorkerPool     WorkerPoolConfig
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

// ServerConfig contains HTTP server configuration for the operator API
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

// MongoDBConfig contains MongoDB configuration for the audit/report store
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// KafkaConfig contains Kafka configuration. Statement events arrive on
// StatementTopic; lines that cannot be normalized are routed to OperatorTopic
// for manual review; alerts go out on NotificationTopic.
type KafkaConfig struct {
	Brokers           string
	StatementTopic    string
	NotificationTopic string
	OperatorTopic     string
	NumPartitions     int // Number of partitions for topics
	ReplicationFactor int // Replication factor for topics
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
}

// QueueConfig contains sync job queue configuration shared by all lanes
type QueueConfig struct {
	PollInterval   time.Duration // How often the dispatcher polls each lane
	BatchSize      int           // Maximum jobs claimed per poll
	MaxAttempts    int           // Attempts before a job goes failed-permanent
	BackoffBase    time.Duration // First retry delay, doubled per attempt
	BackoffCap     time.Duration // Upper bound for a single retry delay
	JobTimeout     time.Duration // Lease duration for a running job
	ReaperInterval time.Duration // How often expired leases are reclaimed
}

// SchedulerConfig contains feed scheduler configuration
type SchedulerConfig struct {
	PollInterval time.Duration // How often due feeds are checked
}

// ReconciliationConfig contains matching thresholds for the engine.
// These are deployment-tunable defaults, not bank contracts.
type ReconciliationConfig struct {
	DateWindowDays     int     // Due date vs value date tolerance
	MinFuzzyConfidence float64 // Floor for tier-2 subset matches
	HeuristicCap       float64 // Ceiling for tier-3 confidence
	TextSimilarity     float64 // Minimum description/counterparty similarity
	MaxCombination     int     // Largest entry set tried by the fuzzy tier
}

// BankConfig contains the transport settings for one bank feed client
type BankConfig struct {
	BaseURL string
	Timeout time.Duration
}

// BanksConfig contains per-bank transport configuration
type BanksConfig struct {
	BancoDoBrasil BankConfig
	Itau          BankConfig
	Bradesco      BankConfig
	Santander     BankConfig
	OpenBanking   BankConfig
}

// DominioConfig contains configuration for the DOMINIO accounting system client
type DominioConfig struct {
	BaseURL string
	Timeout time.Duration
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
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.StatementTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_STATEMENT_TOPIC is required")
	}
	if c.Kafka.NotificationTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_NOTIFICATION_TOPIC is required")
	}
	if c.Kafka.OperatorTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_OPERATOR_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}

	// Validate Queue config
	if c.Queue.PollInterval <= 0 {
		validationErrors = append(validationErrors, "QUEUE_POLL_INTERVAL must be greater than 0")
	}
	if c.Queue.BatchSize <= 0 {
		validationErrors = append(validationErrors, "QUEUE_BATCH_SIZE must be greater than 0")
	}
	if c.Queue.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "QUEUE_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Queue.BackoffBase <= 0 {
		validationErrors = append(validationErrors, "QUEUE_BACKOFF_BASE must be greater than 0")
	}
	if c.Queue.BackoffCap < c.Queue.BackoffBase {
		validationErrors = append(validationErrors, "QUEUE_BACKOFF_CAP must be at least QUEUE_BACKOFF_BASE")
	}
	if c.Queue.JobTimeout <= 0 {
		validationErrors = append(validationErrors, "QUEUE_JOB_TIMEOUT must be greater than 0")
	}
	if c.Queue.ReaperInterval <= 0 {
		validationErrors = append(validationErrors, "QUEUE_REAPER_INTERVAL must be greater than 0")
	}

	// Validate Scheduler config
	if c.Scheduler.PollInterval <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_POLL_INTERVAL must be greater than 0")
	}

	// Validate Reconciliation config
	if c.Reconciliation.DateWindowDays <= 0 {
		validationErrors = append(validationErrors, "RECON_DATE_WINDOW_DAYS must be greater than 0")
	}
	if c.Reconciliation.MinFuzzyConfidence <= 0 || c.Reconciliation.MinFuzzyConfidence > 1 {
		validationErrors = append(validationErrors, "RECON_MIN_FUZZY_CONFIDENCE must be in (0, 1]")
	}
	if c.Reconciliation.HeuristicCap <= 0 || c.Reconciliation.HeuristicCap > 1 {
		validationErrors = append(validationErrors, "RECON_HEURISTIC_CAP must be in (0, 1]")
	}
	if c.Reconciliation.TextSimilarity <= 0 || c.Reconciliation.TextSimilarity > 1 {
		validationErrors = append(validationErrors, "RECON_TEXT_SIMILARITY must be in (0, 1]")
	}
	if c.Reconciliation.MaxCombination < 2 {
		validationErrors = append(validationErrors, "RECON_MAX_COMBINATION must be at least 2")
	}

	// Validate Dominio config
	if c.Dominio.BaseURL == "" {
		validationErrors = append(validationErrors, "DOMINIO_BASE_URL is required")
	}
	if c.Dominio.Timeout <= 0 {
		validationErrors = append(validationErrors, "DOMINIO_TIMEOUT must be greater than 0")
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
