// Package main provides the entry point for the visio API server and
// its recognition worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/visio-labs/visio/internal/config"
	"github.com/visio-labs/visio/internal/db"
	"github.com/visio-labs/visio/internal/metrics"
	"github.com/visio-labs/visio/internal/queue"
	"github.com/visio-labs/visio/internal/server"
	"github.com/visio-labs/visio/internal/service"
	"github.com/visio-labs/visio/internal/storage"
	"github.com/visio-labs/visio/internal/vision"
	"github.com/visio-labs/visio/internal/worker"
)

const version = "0.1.0"

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	noWorker := flag.Bool("no-worker", false, "serve the API without the recognition worker")
	flag.Parse()

	// Load configuration
	var cfg config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadFile(*configFile)
		if err != nil {
			os.Stderr.WriteString("Error: " + err.Error() + "\n")
			os.Exit(1)
		}
	} else {
		cfg = config.Load()
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg)
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("visio-server starting",
		"version", version,
		"surrealdb_url", cfg.SurrealDBURL,
		"storage_backend", cfg.StorageBackend,
		"vision_backend", cfg.VisionBackend,
		"port", cfg.ServerPort,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing database connection")
		_ = dbClient.Close(context.Background())
	}()

	// Initialize database schema
	if err := dbClient.InitSchema(ctx); err != nil {
		logger.Error("failed to initialize database schema", "error", err)
		os.Exit(1)
	}

	if *wipeDB || os.Getenv("VISIO_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}

	// Object storage backend
	objects, fsStore, err := buildObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to init object store", "error", err)
		os.Exit(1)
	}

	// Recognition backend
	analyzer, err := buildAnalyzer(ctx, cfg)
	if err != nil {
		logger.Error("failed to init recognition backend", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	q := queue.NewSurrealQueue(dbClient, cfg.LockDuration, cfg.MaxDeliveryCount)
	images := service.NewImageService(dbClient, objects, q, logger, collector)

	var wg sync.WaitGroup
	if !*noWorker {
		w := worker.New(q, dbClient, objects, analyzer, logger, collector, worker.Config{
			LockRenewInterval: cfg.LockRenewInterval,
			PollInterval:      cfg.PollInterval,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("worker exited", "error", err)
			}
		}()
	}

	srv := server.New(":"+cfg.ServerPort, images, fsStore, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}

	wg.Wait()
	logger.Info("visio-server stopped")
}

// buildObjectStore returns the configured backend. The second return is
// non-nil only for the filesystem backend, whose objects the API server
// serves itself.
func buildObjectStore(ctx context.Context, cfg config.Config) (storage.Store, *storage.FSStore, error) {
	switch cfg.StorageBackend {
	case "fs":
		fs, err := storage.NewFSStore(cfg.StorageDir, cfg.StorageBaseURL, cfg.StorageToken)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	case "s3":
		s3, err := storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.SignedURLTTL)
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	case "memory":
		return storage.NewMemoryStore(cfg.StorageBaseURL, cfg.StorageToken), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// buildAnalyzer returns the configured recognition backend.
func buildAnalyzer(ctx context.Context, cfg config.Config) (vision.Analyzer, error) {
	switch cfg.VisionBackend {
	case "http":
		return vision.NewHTTPClient(cfg.VisionEndpoint, cfg.VisionAPIKey)
	case "bedrock":
		return vision.NewBedrockClient(ctx, cfg.BedrockModel)
	default:
		return nil, fmt.Errorf("unknown vision backend %q", cfg.VisionBackend)
	}
}
