package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zonecourier/zonecourier/internal/apperr"
	"github.com/zonecourier/zonecourier/internal/backend"
)

// backendResult is one driver's outcome from a dispatch round.
type backendResult struct {
	name string
	err  error
}

// dispatchWrite calls WriteZone on every driver, verifies the record
// count afterward, and reconciles + re-counts on mismatch. One driver
// runs inline; two or more run concurrently, one goroutine each, joined
// before returning (spec.md §4.2 dispatch rule).
func dispatchWrite(ctx context.Context, logger *slog.Logger, drivers []backend.Driver, zoneName, zoneText string, refCount int) (succeeded, failed []string) {
	results := dispatch(ctx, drivers, func(ctx context.Context, d backend.Driver) error {
		if err := d.WriteZone(ctx, zoneName, zoneText); err != nil {
			return apperr.TransientBackend("write", err)
		}
		n, err := d.CountRecords(ctx, zoneName)
		if err != nil {
			return apperr.TransientBackend("count after write", err)
		}
		if n == refCount {
			return nil
		}
		if err := d.Reconcile(ctx, zoneName, zoneText); err != nil {
			return apperr.TransientBackend("reconcile after count mismatch", err)
		}
		n, err = d.CountRecords(ctx, zoneName)
		if err != nil {
			return apperr.TransientBackend("count after reconcile", err)
		}
		if n != refCount {
			return apperr.PermanentBackend("record count mismatch after reconcile", fmt.Errorf("got %d want %d", n, refCount))
		}
		return nil
	})
	return partition(logger, results)
}

// dispatchDelete calls DeleteZone on every driver and verifies absence.
func dispatchDelete(ctx context.Context, logger *slog.Logger, drivers []backend.Driver, zoneName string) (succeeded, failed []string) {
	results := dispatch(ctx, drivers, func(ctx context.Context, d backend.Driver) error {
		if err := d.DeleteZone(ctx, zoneName); err != nil {
			return apperr.TransientBackend("delete", err)
		}
		exists, err := d.ZoneExists(ctx, zoneName)
		if err != nil {
			return apperr.TransientBackend("verify delete", err)
		}
		if exists {
			return apperr.PermanentBackend("zone still present after delete", nil)
		}
		return nil
	})
	return partition(logger, results)
}

// dispatch runs fn against every driver, inline for a single driver and
// concurrently (one worker per driver) for two or more; a slow or
// failing driver never blocks the others.
func dispatch(ctx context.Context, drivers []backend.Driver, fn func(context.Context, backend.Driver) error) []backendResult {
	if len(drivers) == 0 {
		return nil
	}
	if len(drivers) == 1 {
		d := drivers[0]
		return []backendResult{{name: d.Name(), err: fn(ctx, d)}}
	}

	results := make([]backendResult, len(drivers))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range drivers {
		i, d := i, d
		g.Go(func() error {
			err := fn(gctx, d)
			mu.Lock()
			results[i] = backendResult{name: d.Name(), err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// partition splits results into succeeded/failed backend names, logging
// each failure's apperr.Kind so an operator can tell a permanent
// mismatch (self-healing already failed once) from an ordinary
// transient I/O error without reading dead-letter payloads.
func partition(logger *slog.Logger, results []backendResult) (succeeded, failed []string) {
	for _, r := range results {
		if r.err == nil {
			succeeded = append(succeeded, r.name)
			continue
		}
		failed = append(failed, r.name)
		kind := "unclassified"
		switch {
		case apperr.Is(r.err, apperr.KindPermanentBackend):
			kind = apperr.KindPermanentBackend.String()
		case apperr.Is(r.err, apperr.KindTransientBackend):
			kind = apperr.KindTransientBackend.String()
		}
		logger.Warn("backend dispatch failed", "backend", r.name, "kind", kind, "err", r.err)
	}
	return succeeded, failed
}
