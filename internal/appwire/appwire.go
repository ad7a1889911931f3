// Package appwire builds the full zonecourierd dependency graph from a
// resolved config: datastore, backend registry, queues, worker manager,
// ingress server. Kept separate from cmd/zonecourierd so the wiring is
// unit-testable without a binary.
package appwire

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zonecourier/zonecourier/internal/backend"
	"github.com/zonecourier/zonecourier/internal/backend/dbdriver"
	"github.com/zonecourier/zonecourier/internal/backend/filedriver"
	"github.com/zonecourier/zonecourier/internal/config"
	"github.com/zonecourier/zonecourier/internal/ingress"
	"github.com/zonecourier/zonecourier/internal/metrics"
	"github.com/zonecourier/zonecourier/internal/queue"
	"github.com/zonecourier/zonecourier/internal/store"
	"github.com/zonecourier/zonecourier/internal/upstreamclient"
	"github.com/zonecourier/zonecourier/internal/worker"
)

// App holds every long-lived dependency cmd/zonecourierd drives.
type App struct {
	Store    *store.Store
	Registry *backend.Registry
	Manager  *worker.Manager
	Ingress  *ingress.Server

	closeDrivers func()
	saveQ        interface{ Close() error }
	deleteQ      interface{ Close() error }
	retryQ       interface{ Close() error }
}

// Build opens the store, backend drivers, and queues named in cfg, and
// wires them into a worker.Manager and ingress.Server. It also
// registers this node as an extra DNS server with every configured
// upstream (spec.md overview; best-effort, logged not fatal, since an
// upstream being briefly unreachable at startup shouldn't block the
// daemon from serving its own queues). Callers must call Close when
// done, even on a later build error path (Close tolerates a partially
// built App).
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{}

	st, err := store.Open(cfg.Datastore.Path)
	if err != nil {
		return app, fmt.Errorf("open datastore: %w", err)
	}
	app.Store = st

	registry, closeDrivers, err := buildBackendRegistry(cfg, logger)
	if err != nil {
		return app, fmt.Errorf("build backend registry: %w", err)
	}
	app.Registry = registry
	app.closeDrivers = closeDrivers

	saveQ, err := queue.OpenTyped[worker.SaveItem](filepath.Join(cfg.Queue.Directory, "save"))
	if err != nil {
		return app, fmt.Errorf("open save queue: %w", err)
	}
	app.saveQ = saveQ
	deleteQ, err := queue.OpenTyped[worker.DeleteItem](filepath.Join(cfg.Queue.Directory, "delete"))
	if err != nil {
		return app, fmt.Errorf("open delete queue: %w", err)
	}
	app.deleteQ = deleteQ
	retryQ, err := queue.OpenTyped[worker.RetryItem](filepath.Join(cfg.Queue.Directory, "retry"))
	if err != nil {
		return app, fmt.Errorf("open retry queue: %w", err)
	}
	app.retryQ = retryQ

	upstreamClients := make(map[string]upstreamclient.Client, len(cfg.Upstream.Servers))
	upstreamTimeout := parseDurationOr(cfg.Upstream.Timeout, 30*time.Second)
	for _, srv := range cfg.Upstream.Servers {
		upstreamClients[srv.Hostname] = upstreamclient.New(srv, upstreamTimeout, cfg.Upstream.ListPageSz)
	}
	registerWithUpstreams(ctx, cfg, upstreamClients, logger)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	app.Manager = worker.New(cfg, logger, st, registry, worker.Queues{Save: saveQ, Delete: deleteQ, Retry: retryQ}, met, upstreamClients)
	app.Ingress = ingress.New(cfg, logger, app.Manager, reg)

	return app, nil
}

// Close releases the queues, backend drivers, and store in reverse
// acquisition order. Safe to call on a partially built App.
func (a *App) Close() {
	if a.saveQ != nil {
		_ = a.saveQ.Close()
	}
	if a.deleteQ != nil {
		_ = a.deleteQ.Close()
	}
	if a.retryQ != nil {
		_ = a.retryQ.Close()
	}
	if a.closeDrivers != nil {
		a.closeDrivers()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// registerWithUpstreams asserts this node as an extra DNS server with
// every configured upstream, using the app-realm credentials the
// upstream will present back to this node's ingress when it later
// pushes or deletes a zone. A registration failure is logged and
// skipped rather than treated as a startup failure. Registration runs
// only here, at startup; no worker repeats it later.
func registerWithUpstreams(ctx context.Context, cfg *config.Config, clients map[string]upstreamclient.Client, logger *slog.Logger) {
	if cfg.SelfURL == "" {
		return
	}
	creds := upstreamclient.Credentials{Username: cfg.Auth.AppUsername, Password: cfg.Auth.AppPassword}
	for _, srv := range cfg.Upstream.Servers {
		client, ok := clients[srv.Hostname]
		if !ok {
			continue
		}
		if err := client.EnsureExtraDNSServer(ctx, cfg.SelfURL, creds); err != nil {
			logger.Warn("failed to register as extra DNS server", "upstream", srv.Hostname, "err", err)
			continue
		}
		logger.Info("registered as extra DNS server", "upstream", srv.Hostname)
	}
}

func buildBackendRegistry(cfg *config.Config, logger *slog.Logger) (*backend.Registry, func(), error) {
	var drivers []backend.Driver
	closers := func() {}

	if cfg.Backends.File.Enabled {
		drivers = append(drivers, filedriver.New(filedriver.Config{
			Enabled:       cfg.Backends.File.Enabled,
			ZonesDir:      cfg.Backends.File.ZonesDir,
			IncludeFile:   cfg.Backends.File.IncludeFile,
			ReloadCommand: cfg.Backends.File.ReloadCommand,
			ReloadArgs:    cfg.Backends.File.ReloadArgs,
			ReloadTimeout: parseDurationOr(cfg.Backends.File.ReloadTimeout, 30*time.Second),
		}, logger))
	}

	if cfg.Backends.DB.Enabled {
		dbDriver, err := dbdriver.Open(dbdriver.Config{
			Enabled: cfg.Backends.DB.Enabled,
			Driver:  cfg.Backends.DB.Driver,
			DSN:     cfg.Backends.DB.DSN,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open db backend: %w", err)
		}
		drivers = append(drivers, dbDriver)
		closers = func() { _ = dbDriver.Close() }
	}

	return backend.NewRegistry(drivers...), closers, nil
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
