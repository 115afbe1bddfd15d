// Package app wires the CMIP-IMR engine into a long-running service: it
// loads configuration, starts the Prometheus metrics server, and serves
// the batch HTTP front-end that triggers runs. Grounded on the App
// lifecycle (New/initializeComponents/Start/Stop/Run) in the teacher
// repo's internal/app/app.go, trimmed to the components CMIP-IMR
// actually has: no monitors, sinks, or enterprise features, just the
// engine, the metrics server, and the HTTP API.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cmip-imr/internal/config"
	"cmip-imr/internal/engine"
	"cmip-imr/internal/metrics"
	"cmip-imr/pkg/discovery"
	"cmip-imr/pkg/types"

	"github.com/sirupsen/logrus"
)

// App coordinates the engine, the metrics server, and the batch HTTP
// front-end across their lifecycle.
type App struct {
	config *types.Config
	logger *logrus.Logger

	httpServer    *http.Server
	metricsServer *metrics.MetricsServer

	oracle discovery.Oracle

	ctx        context.Context
	cancel     context.CancelFunc
	configFile string
	wg         sync.WaitGroup
}

// New loads and validates configuration at configFile, sets up logging,
// and prepares (but does not start) the HTTP and metrics servers.
func New(configFile string) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		config:     cfg,
		logger:     logger,
		oracle:     discovery.DefaultOracle,
		ctx:        ctx,
		cancel:     cancel,
		configFile: configFile,
	}

	if cfg.Metrics.Enabled {
		a.metricsServer = metrics.NewMetricsServer(fmt.Sprintf(":%d", cfg.Metrics.Port), logger)
	}
	if cfg.Server.Enabled {
		a.initHTTPServer()
	}

	return a, nil
}

func (a *App) initHTTPServer() {
	router := a.newRouter()
	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port),
		Handler: router,
	}
}

// Start brings up the metrics server and the HTTP front-end.
func (a *App) Start() error {
	a.logger.Info("starting cmip-imr")

	if a.metricsServer != nil {
		if err := a.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if a.httpServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.WithField("addr", a.httpServer.Addr).Info("starting HTTP server")
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.WithError(err).Error("HTTP server error")
			}
		}()
	}

	a.logger.Info("cmip-imr started successfully")
	return nil
}

// Stop gracefully shuts down the HTTP server and the metrics server.
func (a *App) Stop() error {
	a.logger.Info("stopping cmip-imr")
	a.cancel()

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("failed to shut down HTTP server")
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(); err != nil {
			a.logger.WithError(err).Error("failed to stop metrics server")
		}
	}

	a.wg.Wait()
	a.logger.Info("cmip-imr stopped")
	return nil
}

// Run starts the application and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	a.logger.Info("shutdown signal received")
	return a.Stop()
}

// RunOnce executes a single CMIP-IMR pipeline run against the configured
// log, bypassing the HTTP server entirely — this is what the CLI's batch
// mode and the HTTP /run handler both call.
func (a *App) RunOnce(ctx context.Context) (engine.Result, error) {
	return engine.Run(ctx, a.config, a.oracle, a.logger)
}
