// Package cli provides the command-line interface for visio.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/visio-labs/visio/internal/config"
	"github.com/visio-labs/visio/internal/db"
	"github.com/visio-labs/visio/internal/queue"
	"github.com/visio-labs/visio/internal/service"
	"github.com/visio-labs/visio/internal/storage"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configFile string

	// Global config, logger, and db client
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	dbClient *db.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "visio",
	Short: "Image ingestion and recognition pipeline",
	Long: `Visio ingests images into object storage, tracks them as metadata
records, and runs asynchronous recognition to attach content labels.

Uploads return immediately with a pending record; a background worker
picks up the notification, calls the recognition backend, and moves the
record to completed or failed.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		if configFile != "" {
			cfg, err = config.LoadFile(configFile)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Load()
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, closeLog = config.SetupLogger(cfg)

		ctx := context.Background()
		dbClient, err = db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// newObjectStore builds the configured object storage backend.
func newObjectStore(ctx context.Context) (storage.Store, error) {
	switch cfg.StorageBackend {
	case "fs":
		return storage.NewFSStore(cfg.StorageDir, cfg.StorageBaseURL, cfg.StorageToken)
	case "s3":
		return storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.SignedURLTTL)
	case "memory":
		return storage.NewMemoryStore(cfg.StorageBaseURL, cfg.StorageToken), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newImageService wires the ingestion coordinator from global state.
func newImageService(ctx context.Context) (*service.ImageService, error) {
	objects, err := newObjectStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	q := queue.NewSurrealQueue(dbClient, cfg.LockDuration, cfg.MaxDeliveryCount)
	return service.NewImageService(dbClient, objects, q, logger, nil), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")

	// Add subcommands
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(statusCmd)
}
