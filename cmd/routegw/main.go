// Command routegw runs the gateway core with its admin API. Routes and
// services come from a declarative YAML file that is hot-reloaded on
// change.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vvoronin/routegw/internal/admin"
	"github.com/vvoronin/routegw/internal/config"
	"github.com/vvoronin/routegw/internal/gateway"
	"github.com/vvoronin/routegw/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "routegw: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "routegw.yaml", "path to the gateway configuration file")
		watch      = flag.Bool("watch", true, "reload routes when the configuration file changes")
	)
	flag.Parse()

	fc, err := config.LoadAndValidateFile(*configPath)
	if err != nil {
		return err
	}
	cfg := &fc.Gateway

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	observability.SetGlobalLogger(logger)

	logger.Info("starting gateway",
		observability.String("service", cfg.ServiceName),
		observability.String("config", *configPath),
	)

	gw := gateway.New(cfg, gateway.WithLogger(logger))
	if err := gw.ApplyFileConfig(fc); err != nil {
		return fmt.Errorf("failed to apply configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.StartHealthChecks(ctx)
	defer gw.Shutdown()

	// Log every health sweep that leaves a service without healthy
	// instances; the transport layer may subscribe as well.
	gw.Subscribe(func(event gateway.Event) {
		if event.Type != gateway.EventHealthCheck || event.Health == nil {
			return
		}
		for _, svc := range event.Health.Services {
			if svc.FailOpen {
				logger.Warn("service failing open",
					observability.String("service", svc.Service),
					observability.Int("instances", svc.Total),
				)
			}
		}
	})

	if *watch {
		watcher, err := config.NewWatcher(*configPath, func(next *config.FileConfig) {
			if err := gw.ReloadRoutes(next.Routes); err != nil {
				logger.Error("route reload failed", observability.Error(err))
			}
		}, config.WithWatcherLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		defer func() { _ = watcher.Stop() }()
	}

	errCh := make(chan error, 1)
	var adminSrv *admin.Server
	if cfg.AdminEnabled {
		adminSrv = admin.NewServer(gw, cfg, admin.WithServerLogger(logger))
		go func() {
			errCh <- adminSrv.Start()
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down",
			observability.String("signal", sig.String()),
		)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin server failed: %w", err)
		}
	}

	if adminSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown failed", observability.Error(err))
		}
	}

	gw.Shutdown()
	logger.Info("gateway stopped")
	return nil
}
