package worker

import (
	"context"
	"sync"
	"time"

	"github.com/zonecourier/zonecourier/internal/store"
	"github.com/zonecourier/zonecourier/internal/upstreamclient"
)

// reconcilerLastRunConfigKey is the Store.SetConfig/GetConfig key the
// reconciler's last successful run timestamp is persisted under, so
// /status can report it across a restart before the first post-restart
// cycle completes.
const reconcilerLastRunConfigKey = "reconciler_last_run_at"

// ReconcilerStats is the last reconciliation cycle's counters, read by
// /status. The counters are held in memory only; RanAt is also persisted
// under reconcilerLastRunConfigKey.
type ReconcilerStats struct {
	RanAt               time.Time
	UpstreamsPolled     int
	ZonesInUpstream     int
	ZonesInStore        int
	OrphansFound        int
	OrphansQueued       int
	HostnamesBackfilled int
	OwnershipMigrations int
	BackendsHealed      int
	Duration            time.Duration
	DryRun              bool
}

type reconcilerLastRun struct {
	mu    sync.RWMutex
	stats ReconcilerStats
}

func (r *reconcilerLastRun) set(s ReconcilerStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = s
}

func (r *reconcilerLastRun) get() ReconcilerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// runReconciler runs on a fixed interval after an initial stagger delay,
// observing ctx while sleeping so it can exit mid-wait.
func (m *Manager) runReconciler(ctx context.Context) {
	defer m.workerDone("reconciler")
	m.markAlive("reconciler")

	if !sleepInterruptible(ctx, m.reconcilerInitialDelay) {
		return
	}

	ticker := time.NewTicker(m.reconcilerInterval)
	defer ticker.Stop()

	for {
		m.runReconcileCycle(ctx)
		m.markAlive("reconciler")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) runReconcileCycle(ctx context.Context) {
	start := time.Now()
	stats := ReconcilerStats{DryRun: m.reconcilerDryRun}

	rows, err := m.store.ListDomains(ctx)
	if err != nil {
		m.logger.Error("reconciler failed to list domains", "err", err)
		return
	}
	stats.ZonesInStore = len(rows)

	m.reconcileOrphansAndOwnership(ctx, rows, &stats)
	m.reconcileBackendHealing(ctx, rows, &stats)

	stats.Duration = time.Since(start)
	stats.RanAt = start
	m.lastRun.set(stats)
	m.metrics.ReconcilerRuns.Inc()

	if err := m.store.SetConfig(ctx, reconcilerLastRunConfigKey, start.UTC().Format(time.RFC3339)); err != nil {
		m.logger.Error("failed to persist reconciler last-run timestamp", "err", err)
	}

	m.logger.Info("reconciler cycle complete",
		"upstreams_polled", stats.UpstreamsPolled,
		"zones_in_upstream", stats.ZonesInUpstream,
		"zones_in_store", stats.ZonesInStore,
		"orphans_found", stats.OrphansFound,
		"orphans_queued", stats.OrphansQueued,
		"hostnames_backfilled", stats.HostnamesBackfilled,
		"ownership_migrations", stats.OwnershipMigrations,
		"backends_healed", stats.BackendsHealed,
		"duration_ms", stats.Duration.Milliseconds(),
		"dry_run", stats.DryRun,
	)
}

// reconcileOrphansAndOwnership implements spec.md §4.5 pass 1.
func (m *Manager) reconcileOrphansAndOwnership(ctx context.Context, rows []store.Domain, stats *ReconcilerStats) {
	byName := make(map[string]store.Domain, len(rows))
	for _, d := range rows {
		byName[d.ZoneName] = d
	}

	for hostname, client := range m.upstreamClients {
		upstreamZones, ok := m.listAllUpstreamZones(ctx, hostname, client)
		if !ok {
			// Upstream unreachable this cycle: skip it entirely, no deletes
			// enqueued from a partial list (safety against false orphans).
			continue
		}
		stats.UpstreamsPolled++
		stats.ZonesInUpstream += len(upstreamZones)

		seen := make(map[string]bool, len(upstreamZones))
		for _, z := range upstreamZones {
			seen[z.Name] = true
			row, exists := byName[z.Name]
			if !exists {
				continue
			}
			switch {
			case row.UpstreamServerHostname == "":
				if err := m.store.TransferOwnership(ctx, z.Name, hostname, z.Username); err != nil {
					m.logger.Error("failed to backfill owner hostname", "zone_name", z.Name, "err", err)
					continue
				}
				stats.HostnamesBackfilled++
			case row.UpstreamServerHostname != hostname:
				m.logger.Info("[migration] zone ownership migrated", "zone_name", z.Name, "from", row.UpstreamServerHostname, "to", hostname)
				if err := m.store.TransferOwnership(ctx, z.Name, hostname, z.Username); err != nil {
					m.logger.Error("failed to migrate owner hostname", "zone_name", z.Name, "err", err)
					continue
				}
				stats.OwnershipMigrations++
			}
		}

		for _, row := range rows {
			if row.UpstreamServerHostname != hostname || seen[row.ZoneName] {
				continue
			}
			stats.OrphansFound++
			if m.reconcilerDryRun {
				m.logger.Info("dry-run: would enqueue orphan delete", "zone_name", row.ZoneName, "hostname", hostname)
				continue
			}
			if err := m.deleteQueue.Enqueue(DeleteItem{
				ZoneName:         row.ZoneName,
				UpstreamHostname: hostname,
				EnqueuedAt:       time.Now(),
			}); err != nil {
				m.logger.Error("failed to enqueue orphan delete", "zone_name", row.ZoneName, "err", err)
				continue
			}
			stats.OrphansQueued++
			m.metrics.ReconcilerOrphan.Inc()
		}
	}
}

// listAllUpstreamZones paginates ListDomains until exhausted. Returns
// ok=false if any page fails, in which case the caller must not act on
// a partial list.
func (m *Manager) listAllUpstreamZones(ctx context.Context, hostname string, client upstreamclient.Client) ([]upstreamclient.Domain, bool) {
	var all []upstreamclient.Domain
	for page := 1; ; page++ {
		domains, hasMore, err := client.ListDomains(ctx, page)
		if err != nil {
			m.logger.Warn("upstream unreachable during reconcile, skipping", "hostname", hostname, "err", err)
			return nil, false
		}
		all = append(all, domains...)
		if !hasMore {
			break
		}
	}
	return all, true
}

// reconcileBackendHealing implements spec.md §4.5 pass 2: for every
// domain with stored zone_data, ensure every enabled backend has it.
func (m *Manager) reconcileBackendHealing(ctx context.Context, rows []store.Domain, stats *ReconcilerStats) {
	drivers := m.registry.Enabled()
	if len(drivers) == 0 {
		return
	}

	for _, row := range rows {
		if row.ZoneData == "" {
			continue
		}
		var missing []string
		for _, d := range drivers {
			exists, err := d.ZoneExists(ctx, row.ZoneName)
			if err != nil {
				m.logger.Warn("backend healing check failed, skipping", "zone_name", row.ZoneName, "backend", d.Name(), "err", err)
				continue
			}
			if !exists {
				missing = append(missing, d.Name())
			}
		}
		if len(missing) == 0 {
			continue
		}
		if err := m.saveQueue.Enqueue(SaveItem{
			ZoneName:         row.ZoneName,
			ZoneText:         row.ZoneData,
			UpstreamHostname: row.UpstreamServerHostname,
			UpstreamUsername: row.UpstreamUsername,
			TargetBackends:   missing,
			EnqueuedAt:       time.Now(),
		}); err != nil {
			m.logger.Error("failed to enqueue healing save", "zone_name", row.ZoneName, "err", err)
			continue
		}
		stats.BackendsHealed += len(missing)
		for _, name := range missing {
			m.metrics.ReconcilerHealed.WithLabelValues(name).Inc()
		}
	}
}

// sleepInterruptible sleeps for d or returns false early if ctx is
// cancelled first.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
