package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smartdevs17/evm-event-indexer/internal/config"
	"github.com/smartdevs17/evm-event-indexer/internal/indexer"
	"github.com/smartdevs17/evm-event-indexer/internal/metrics"
	"github.com/smartdevs17/evm-event-indexer/internal/network"
	"github.com/smartdevs17/evm-event-indexer/internal/query"
	"github.com/smartdevs17/evm-event-indexer/internal/server"
	"github.com/smartdevs17/evm-event-indexer/internal/storage"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

var (
	version    = "1.0.0"
	configPath string
)

// Application wires together every component of the indexer
type Application struct {
	config   *config.Config
	logger   *logrus.Logger
	metrics  *metrics.Manager
	registry *network.Registry
	store    storage.Store
	server   *server.Server
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "indexer",
		Short: "EVM contract event indexer",
		Long:  "On-demand event indexer for EVM contracts with idempotent storage and a query API",
		RunE:  runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("evm-event-indexer %s\n", version)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("Configuration is valid")
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.store.Close()
			return app.store.Migrate()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApplication() (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
		return nil, err
	}
	logger := utils.GetLogger()

	metricsManager := metrics.NewManager()
	registry := network.NewRegistry(&cfg.Networks, metricsManager)

	store, err := storage.NewStore(&storage.StoreConfig{
		Type:             cfg.Storage.Type,
		ConnectionString: cfg.Storage.ConnectionString,
		MaxConnections:   cfg.Storage.MaxConnections,
		MaxIdleTime:      cfg.Storage.MaxIdleTime,
	}, metricsManager)
	if err != nil {
		return nil, err
	}
	if err := store.Connect(); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}

	runner := indexer.NewRunner(registry, store, &cfg.Indexer, metricsManager)
	querySvc := query.NewService(store)
	advisor := query.NewAdvisor(store, registry, &cfg.Indexer)
	srv := server.NewServer(&cfg.Server, runner, querySvc, advisor, store, registry, metricsManager)

	return &Application{
		config:   cfg,
		logger:   logger,
		metrics:  metricsManager,
		registry: registry,
		store:    store,
		server:   srv,
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := newApplication()
	if err != nil {
		return err
	}

	app.logger.WithFields(logrus.Fields{
		"version":     version,
		"environment": app.config.App.Environment,
		"storage":     app.config.Storage.Type,
	}).Info("Starting application")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	stopSystemMetrics := startSystemMetrics(app.metrics)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			app.logger.WithField("error", err).Error("HTTP server exited")
		}
	case sig := <-sigCh:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	stopSystemMetrics()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.WithField("error", err).Warn("HTTP server shutdown failed")
	}
	app.registry.Close()
	if err := app.store.Close(); err != nil {
		app.logger.WithField("error", err).Warn("Storage shutdown failed")
	}

	app.logger.Info("Application stopped")
	return nil
}

// startSystemMetrics refreshes memory and goroutine gauges periodically
func startSystemMetrics(m *metrics.Manager) func() {
	ticker := time.NewTicker(15 * time.Second)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.UpdateSystemMetrics()
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}
