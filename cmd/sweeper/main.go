package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"gearshare-backend/internal/config"
	"gearshare-backend/internal/jobs"
	"gearshare-backend/internal/logger"
	"gearshare-backend/internal/payments"
	"gearshare-backend/internal/repository/postgres"
	"gearshare-backend/internal/scheduler"
	"gearshare-backend/internal/service"
	"gearshare-backend/internal/taskqueue"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g. 'authorize-deposits', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting GearShare sweeper...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db)

	// Payment gateway selection
	var gateway payments.Gateway
	switch cfg.Payments.Provider {
	case "sandbox":
		gateway = payments.NewSandbox()
		logger.Warn("Using the sandbox payment gateway; no real money moves")
	default:
		log.Fatalf("Unknown payments provider %q", cfg.Payments.Provider)
	}

	var sender service.EmailSender
	if cfg.SendGrid.APIKey != "" {
		sender = service.NewSendGridSender(cfg.SendGrid)
	}
	notifier := service.NewNotifier(store, sender, nil)

	queue := taskqueue.New()
	services := service.New(store, gateway, queue, notifier, cfg)

	runner := jobs.NewRunner(
		jobs.NewExpireStaleBookingsJob(store, services.Bookings),
		jobs.NewAuthorizeDepositsJob(store, services.Bookings),
		jobs.NewReleaseDepositsJob(store, services.Bookings),
		jobs.NewSweepRebuttalTimeoutsJob(store, services.Disputes),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(ctx, runner, queue, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	queue.Start(ctx)

	cronScheduler, err := scheduler.New(cfg.Scheduler, runner)
	if err != nil {
		log.Fatalf("Failed to build scheduler: %v", err)
	}
	cronScheduler.Start()
	logger.Info("Sweeper is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down sweeper...")
	cronScheduler.Stop()
	queue.Stop()
	logger.Info("Sweeper stopped. Goodbye!")
}

// runJobOnce runs a specific job (or every job) once and exits.
func runJobOnce(ctx context.Context, runner *jobs.Runner, queue *taskqueue.Queue, jobName string) {
	if jobName == "all" {
		for _, j := range runner.Jobs() {
			jobs.RunWithRecovery(ctx, j)
		}
		queue.RunDueNow(ctx)
		return
	}

	job := runner.Get(jobName)
	if job == nil {
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		for _, j := range runner.Jobs() {
			fmt.Printf("  - %s\n", j.Name())
		}
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
	jobs.RunWithRecovery(ctx, job)
	queue.RunDueNow(ctx)
}
