package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bpofinanceiro/reconciliation-service/internal/bankfeed"
	"github.com/bpofinanceiro/reconciliation-service/internal/config"
	"github.com/bpofinanceiro/reconciliation-service/internal/data/mongo"
	"github.com/bpofinanceiro/reconciliation-service/internal/data/postgres"
	"github.com/bpofinanceiro/reconciliation-service/internal/dominio"
	"github.com/bpofinanceiro/reconciliation-service/internal/ingest"
	"github.com/bpofinanceiro/reconciliation-service/internal/logger"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/messaging/consumers"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/messaging/producers"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/persistence"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
	"github.com/bpofinanceiro/reconciliation-service/internal/reconcile"
	"github.com/bpofinanceiro/reconciliation-service/internal/scheduler"
	"github.com/bpofinanceiro/reconciliation-service/internal/worker"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("reconciliation_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Reconciliation Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	store := postgres.NewStore(log, postgresDB)
	jobRepo := postgres.NewSyncJobRepository(log, postgresDB)
	feedRepo := postgres.NewBankFeedRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())

	// Initialize Kafka producers
	alertProducer, err := producers.NewAlertProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize alert Kafka producer", "error", err)
		os.Exit(1)
	}

	operatorProducer, err := producers.NewOperatorQueueProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize operator queue Kafka producer", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka consumer for statement line events
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// Initialize job queue and the bank feed client registry
	jobQueue := queue.NewQueue(log, jobRepo)
	feedRegistry := bankfeed.NewRegistry(&cfg.Banks, log)

	// Initialize the matching engine and its committer
	engine := reconcile.NewEngine(cfg.Reconciliation)
	committer := reconcile.NewCommitter(log, store, engine, auditRepo)

	// Initialize the DOMINIO accounting client
	dominioClient := dominio.NewClient(log, cfg.Dominio)

	// Initialize lane handlers
	bankSyncHandler := worker.NewBankSyncHandler(log, feedRepo, feedRegistry, store, jobQueue, operatorProducer)
	reconciliationHandler := worker.NewReconciliationHandler(log, committer, jobQueue)
	dominioSyncHandler := worker.NewDominioSyncHandler(log, store, dominioClient, auditRepo)
	reportsHandler := worker.NewReportsHandler(log, store, auditRepo)
	notificationsHandler := worker.NewNotificationsHandler(log, alertProducer)

	// Initialize the dispatcher over all lanes
	dispatcher, err := worker.NewDispatcher(
		log,
		jobRepo,
		alertProducer,
		cfg.Queue,
		cfg.WorkerPool.Size,
		bankSyncHandler,
		reconciliationHandler,
		dominioSyncHandler,
		reportsHandler,
		notificationsHandler,
	)
	if err != nil {
		log.Error("Failed to initialize dispatcher", "error", err)
		os.Exit(1)
	}

	// Initialize the lease reaper and the feed scheduler
	reaper := queue.NewReaper(log, jobRepo, cfg.Queue)
	feedScheduler := scheduler.New(log, feedRepo, jobQueue, cfg.Scheduler.PollInterval)

	// Initialize the statement line ingestion handler
	ingestHandler := ingest.NewHandler(log, store, jobQueue, operatorProducer)

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.StatementTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.StatementTopic, cfg.Kafka.ConsumerGroup, ingestHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	// Start the dispatcher in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting dispatcher",
			"poll_interval", cfg.Queue.PollInterval.String(),
			"batch_size", cfg.Queue.BatchSize,
			"pool_size", cfg.WorkerPool.Size,
		)
		dispatcher.Run(appCtx)
	}()

	// Start the lease reaper in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting lease reaper", "interval", cfg.Queue.ReaperInterval.String())
		reaper.Run(appCtx)
	}()

	// Start the feed scheduler in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting feed scheduler", "interval", cfg.Scheduler.PollInterval.String())
		feedScheduler.Run(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close Kafka producers
	if err = operatorProducer.Close(); err != nil {
		log.Error("Error closing operator queue Kafka producer", "error", err)
	}
	if err = alertProducer.Close(); err != nil {
		log.Error("Error closing alert Kafka producer", "error", err)
	}

	// Close Kafka consumer
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Reconciliation Worker shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Reconciliation Worker shutdown completed with errors")
	} else {
		log.Info("Reconciliation Worker shutdown completed successfully")
	}
}
