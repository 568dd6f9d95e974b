package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timekeep/timekeep/internal/broadcast"
	"github.com/timekeep/timekeep/internal/cache"
	"github.com/timekeep/timekeep/internal/config"
	"github.com/timekeep/timekeep/internal/database"
	"github.com/timekeep/timekeep/internal/sweep"
	"github.com/timekeep/timekeep/internal/timer"
	"github.com/timekeep/timekeep/internal/web"

	"github.com/robfig/cron/v3"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "serve":
		serve()
	case "sweep":
		runSweepOnce()
	case "restore-cache":
		restoreCache()
	case "status":
		showStatus()
	case "version":
		fmt.Printf("timekeep version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`timekeep - Active work-timer service

Usage:
  timekeep <command> [options]

Commands:
  serve              Run the timer service (HTTP API, idle sweep, cache jobs)
  sweep              Run a single idle sweep and exit (for external schedulers)
  restore-cache      Repopulate the active-timer cache from the store and exit
  status             Query a running service for its status
  version            Show version information
  help               Show this help message

Examples:
  timekeep serve
  timekeep sweep
  timekeep status

Environment Variables:
  TIMEKEEP_CONFIG              Path to YAML config file
  TIMEKEEP_DB_PATH             Database file path
  TIMEKEEP_SWEEP_INTERVAL      Sweep interval in seconds
  TIMEKEEP_CACHE_TTL           Cache entry TTL (e.g. 24h)
  TIMEKEEP_CACHE_SYNC_SCHEDULE Cron expression for cache reconciliation
  TIMEKEEP_WEB_HOST            Web API host
  TIMEKEEP_WEB_PORT            Web API port

Version: %s
`, version)
}

func loadConfig() *config.Config {
	cfg, err := config.New(os.Getenv("TIMEKEEP_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func openStore(cfg *config.Config) (*database.DB, *database.TimerStore) {
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	return db, database.NewTimerStore(db)
}

func serve() {
	cfg := loadConfig()

	db, store := openStore(cfg)
	defer db.Close()

	prefs := database.NewPreferencesRepository(db)
	tasks := database.NewTaskDirectory(db)
	registry := broadcast.NewMemoryRegistry()
	broadcaster := broadcast.New(registry)

	activeCache := cache.New(
		cache.NewLRUBackend(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTL)),
		store, tasks,
	)
	controller := timer.NewController(store, activeCache, tasks, prefs, broadcaster)
	sweepWorker := sweep.NewWorker(store, prefs, time.Duration(cfg.Sweep.Interval))
	webServer := web.NewServer(cfg, controller, store, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A cache restart must not orphan in-flight timers.
	restored, err := activeCache.RestoreAllFromStore(ctx)
	if err != nil {
		log.Fatalf("Failed to restore cache from store: %v", err)
	}
	log.Printf("Restored %d active timer(s) into the cache", restored)

	// Periodic cache-to-store reconciliation for cache-side edits.
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Cache.SyncSchedule, func() {
		recs, err := store.ListRunning(ctx)
		if err != nil {
			log.Printf("Cache reconciliation: %v", err)
			return
		}
		for _, rec := range recs {
			if err := activeCache.SyncToStore(ctx, rec.UserID); err != nil {
				log.Printf("Cache reconciliation for user %s: %v", rec.UserID, err)
			}
		}
	})
	if err != nil {
		log.Fatalf("Invalid cache sync schedule %q: %v", cfg.Cache.SyncSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := webServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("Web server error: %v", err)
			cancel()
		}
	}()

	go func() {
		if err := sweepWorker.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Idle sweep error: %v", err)
			cancel()
		}
	}()

	log.Println("Starting timekeep service...")
	log.Printf("Web API available at: http://%s", webServer.GetAddress())
	log.Printf("Configuration:\n%s", cfg.String())

	select {
	case <-sigChan:
		log.Println("Received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	sweepWorker.Stop()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down web server: %v", err)
	}

	log.Println("Service stopped successfully")
}

// runSweepOnce supports external cron-style scheduling: one sweep, one exit
// code, counts on stdout.
func runSweepOnce() {
	cfg := loadConfig()

	db, store := openStore(cfg)
	defer db.Close()

	prefs := database.NewPreferencesRepository(db)
	worker := sweep.NewWorker(store, prefs, time.Duration(cfg.Sweep.Interval))

	result := worker.RunOnce(context.Background())
	fmt.Printf("Idle sweep: created=%d already_notified=%d errored=%d\n",
		result.Created, result.AlreadyNotified, result.Errored)
	if result.Errored > 0 {
		os.Exit(1)
	}
}

func restoreCache() {
	cfg := loadConfig()

	db, store := openStore(cfg)
	defer db.Close()

	activeCache := cache.New(
		cache.NewLRUBackend(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTL)),
		store, database.NewTaskDirectory(db),
	)

	count, err := activeCache.RestoreAllFromStore(context.Background())
	if err != nil {
		log.Fatalf("Failed to restore cache: %v", err)
	}
	fmt.Printf("Restored %d active timer(s)\n", count)
}

func showStatus() {
	cfg := loadConfig()

	url := fmt.Sprintf("http://%s:%d/api/status", cfg.Web.Host, cfg.Web.Port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Println("Status: Not running")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read status response: %v", err)
	}

	var status map[string]interface{}
	if err := json.Unmarshal(body, &status); err != nil {
		log.Fatalf("Failed to parse status response: %v", err)
	}

	fmt.Println("Status: Running")
	for key, value := range status {
		fmt.Printf("  %s: %v\n", key, value)
	}
}
