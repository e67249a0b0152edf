package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trungvu/bridge-worker/internal/config"
	"github.com/trungvu/bridge-worker/internal/database"
	"github.com/trungvu/bridge-worker/internal/jobs"
	"github.com/trungvu/bridge-worker/internal/match"
	"github.com/trungvu/bridge-worker/internal/platform"
	"github.com/trungvu/bridge-worker/internal/repository"
	"github.com/trungvu/bridge-worker/internal/rules"
	"github.com/trungvu/bridge-worker/internal/syncer"
	"github.com/trungvu/bridge-worker/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	mappingRepo := repository.NewMappingRepository(db)
	logRepo := repository.NewSyncLogRepository(db)
	ruleRepo := repository.NewSyncRuleRepository(db)
	jobRepo := repository.NewBackgroundJobRepository(db)
	sourceRepo := repository.NewSourceSnapshotRepository(db)
	targetRepo := repository.NewTargetSnapshotRepository(db)

	// Initialize rule engine and matcher
	engine := rules.NewEngine(ruleRepo)
	matcher := match.NewMatcher(mappingRepo, logRepo, engine)

	// Initialize storefront client with push throttling
	target := platform.NewThrottledTarget(
		platform.NewHTTPTarget(cfg.TargetAPIURL, cfg.TargetAPIToken),
		cfg.PushRatePerSec,
		cfg.PushBurst,
	)

	// Initialize job tracker and sync executor
	tracker := jobs.NewTracker(jobRepo)
	executor := syncer.NewExecutor(mappingRepo, logRepo, sourceRepo, engine, target, tracker)
	if cfg.SourceAPIURL != "" {
		executor.UseSourceFallback(platform.NewHTTPSource(cfg.SourceAPIURL, cfg.SourceAPIToken))
	}

	// Initialize watcher
	w := watcher.New(cfg, sourceRepo, targetRepo, matcher, executor, tracker)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start watcher in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutdown signal received")
		cancel()

		// Wait for graceful shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		select {
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && err != context.Canceled {
				log.Printf("Watcher error: %v", err)
			}
		}

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
