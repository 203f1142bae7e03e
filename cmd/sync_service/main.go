package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/panjf2000/ants/v2"
	"github.com/restobook/sumup-sync/internal/api"
	"github.com/restobook/sumup-sync/internal/config"
	mongodata "github.com/restobook/sumup-sync/internal/data/mongo"
	"github.com/restobook/sumup-sync/internal/data/postgres"
	"github.com/restobook/sumup-sync/internal/logger"
	"github.com/restobook/sumup-sync/internal/platform/messaging/producers"
	"github.com/restobook/sumup-sync/internal/platform/persistence"
	"github.com/restobook/sumup-sync/internal/platform/sumup"
	"github.com/restobook/sumup-sync/internal/scheduler"
	syncsvc "github.com/restobook/sumup-sync/internal/sync"
	"github.com/restobook/sumup-sync/internal/sync/reconcile"
	"github.com/restobook/sumup-sync/internal/sync/token"
	"github.com/restobook/sumup-sync/internal/vault"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("sync_service")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context; migrations run before the pool opens
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

	// Initialize Kafka producers
	eventProducer, err := producers.NewSyncEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize sync event producer", "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	credentialRepo := postgres.NewCredentialRepository(log, postgresDB)
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	productRepo := postgres.NewProductRepository(log, postgresDB)
	sessionRepo := postgres.NewSessionRepository(log, postgresDB)
	syncRunRepo := mongodata.NewSyncRunRepository(log, mongoDB.Database())

	// Initialize the credential vault
	credentialVault, err := vault.New(cfg.Encryption.Key, cfg.Encryption.Salt)
	if err != nil {
		log.Error("Failed to initialize credential vault", "error", err)
		os.Exit(1)
	}

	// Initialize the SumUp client and token lifecycle
	sumupClient := sumup.NewClient(log, &cfg.SumUp)
	tokenManager := token.NewManager(log, &cfg.SumUp, credentialVault, credentialRepo, sumupClient)

	// Initialize the worker pool for batched concurrency
	workerPool, err := ants.NewPool(cfg.WorkerPool.Size)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}
	defer workerPool.Release()

	// Initialize the sync pipeline
	reconcileEngine := reconcile.NewEngine(log, transactionRepo, productRepo)
	syncService := syncsvc.NewService(
		log,
		&cfg.Sync,
		sumupClient,
		tokenManager,
		credentialRepo,
		transactionRepo,
		reconcileEngine,
		eventProducer,
		dlqProducer,
		syncRunRepo,
		workerPool,
	)

	// Start the background scheduler if enabled
	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(&cfg.Scheduler, credentialRepo, syncService, log)
		go sched.Start(appCtx)
	}

	// Initialize REST server
	server := api.NewServer(log, cfg, sessionRepo, syncService, syncRunRepo)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing sync event producer", "error", err)
	}

	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ producer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
