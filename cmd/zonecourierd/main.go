// Command zonecourierd runs the zonecourier DNS control-plane daemon:
// ingress HTTP admission, persistent queues, backend dispatch, retry
// and reconciliation workers, and peer-sync gossip.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/zonecourier/zonecourier/internal/appwire"
	"github.com/zonecourier/zonecourier/internal/config"
	"github.com/zonecourier/zonecourier/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	debug      bool
	jsonLogs   bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.Parse()
	return f
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if flags.debug {
		cfg.Logging.Level = "DEBUG"
	}
	if flags.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.New().String()[:8]
	}

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		Console:          cfg.Logging.Console,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("zonecourier starting", "node_id", cfg.NodeID, "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := appwire.Build(ctx, cfg, logger)
	defer app.Close()
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	logger.Info("ingress listening", "addr", app.Ingress.Addr())
	go func() {
		if serveErr := app.Ingress.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("ingress server error", "err", serveErr)
			cancel()
		}
	}()

	app.Manager.Start(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownTimeout := parseDurationOr(cfg.Server.ShutdownTimeout, 10*time.Second)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := app.Ingress.Shutdown(shutdownCtx); err != nil {
		logger.Error("ingress shutdown error", "err", err)
	}
	shutdownCancel()

	app.Manager.Wait()
	logger.Info("zonecourier stopped")
	return nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
