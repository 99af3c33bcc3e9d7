package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/hookline/internal/api"
	"github.com/shohag/hookline/internal/config"
	"github.com/shohag/hookline/internal/delivery"
	"github.com/shohag/hookline/internal/dispatch"
	"github.com/shohag/hookline/internal/models"
	"github.com/shohag/hookline/internal/registry"
	"github.com/shohag/hookline/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hookline",
		Short: "Self-hosted signed webhook dispatch service",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(cleanupCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Hookline server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			queue := delivery.NewQueue(cfg.Delivery.QueueSize, log)
			reg := registry.New(store, log)
			disp := dispatch.New(store, reg, queue, cfg.Delivery.MaxAttempts, log)

			pool := delivery.NewPool(cfg.Delivery, store, reg, queue, log)
			pool.Start(ctx)

			retrySweeper := delivery.NewRetrySweeper(store, queue, cfg.Sweeper.Interval, cfg.Sweeper.Batch, cfg.Sweeper.PendingGrace, cfg.Sweeper.ClaimTTL, log)
			retrySweeper.Start(ctx)

			retention := delivery.NewRetentionSweeper(store, cfg.Retention.MaxAge, cfg.Retention.Interval, log)
			retention.Start(ctx)

			testSender := delivery.NewSender(cfg.Delivery.TestTimeout)
			server := api.NewServer(cfg.Server, store, reg, disp, queue, testSender, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("workers", cfg.Delivery.Workers).
				Str("storage", cfg.Storage.Driver).
				Msg("Hookline is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			retention.Stop()
			retrySweeper.Stop()
			pool.Stop()

			log.Info().Msg("Hookline stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cleanup, _, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()
			fmt.Println("migrations completed successfully")
			return nil
		},
	}
}

func cleanupCmd(configPath *string) *cobra.Command {
	var olderThanDays int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old terminal delivery records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, log, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			sweeper := delivery.NewRetentionSweeper(store, time.Duration(olderThanDays)*24*time.Hour, 0, log)
			deleted, err := sweeper.Cleanup(context.Background())
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}

			fmt.Printf("deleted %d delivery records\n", deleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 30, "delete terminal deliveries older than this many days")
	return cmd
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user_id>",
		Short: "Show webhook delivery stats for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: hookline stats <user_id>")
			}

			store, cleanup, _, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetStats(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the dispatchable event catalog",
		Run: func(cmd *cobra.Command, args []string) {
			for _, e := range models.EventCatalog {
				fmt.Printf("  %-30s %s\n", e.Name, e.Description)
			}
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Hookline v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func storeFromConfig(configPath string) (storage.Storage, func(), zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, log, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, log, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close() }, log, nil
}
