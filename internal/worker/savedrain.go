package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/zonecourier/zonecourier/internal/store"
	"github.com/zonecourier/zonecourier/internal/zonefile"
)

// runSaveDrainer consumes save_queue strictly in FIFO order, forever,
// until ctx is cancelled.
func (m *Manager) runSaveDrainer(ctx context.Context) {
	defer m.workerDone("save_drainer")
	m.markAlive("save_drainer")

	var batch saveBatchStats
	for {
		n, _ := m.saveQueue.Len()
		queueWasEmpty := n == 0

		item, ack, err := m.saveQueue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				batch.flush(m.logger)
				return
			}
			m.logger.Error("save queue dequeue failed", "err", err)
			continue
		}

		// A dequeue that had to wait means the queue drained to empty;
		// that closes the current telemetry batch (spec.md §9 open question).
		if queueWasEmpty {
			batch.flush(m.logger)
			batch = saveBatchStats{start: time.Now()}
		}

		m.processSaveItem(ctx, item, &batch)
		if err := ack(); err != nil {
			m.logger.Error("failed to ack save queue item", "zone_name", item.ZoneName, "err", err)
		}
		m.markAlive("save_drainer")
	}
}

type saveBatchStats struct {
	start    time.Time
	zones    int
	failures int
}

func (b *saveBatchStats) flush(logger *slog.Logger) {
	if b.zones == 0 {
		return
	}
	elapsed := time.Since(b.start)
	logger.Info("save batch complete",
		"zones", b.zones,
		"failures", b.failures,
		"elapsed_ms", elapsed.Milliseconds(),
		"zones_per_sec", float64(b.zones)/elapsed.Seconds(),
	)
}

// processSaveItem implements spec.md §4.2 steps 1-5 for one save item.
func (m *Manager) processSaveItem(ctx context.Context, item SaveItem, batch *saveBatchStats) {
	batch.zones++

	refCount, err := zonefile.CountRecords(item.ZoneText)
	if err != nil {
		m.logger.Error("save item has unparsable zone text, dropping", "zone_name", item.ZoneName, "err", err)
		batch.failures++
		return
	}

	drivers := m.registry.Select(item.TargetBackends)
	if len(drivers) == 0 {
		m.logger.Warn("save item has no target backends, dropping", "zone_name", item.ZoneName)
		return
	}

	succeeded, failed := dispatchWrite(ctx, m.logger, drivers, item.ZoneName, item.ZoneText, refCount)
	for _, name := range succeeded {
		m.metrics.BackendWrites.WithLabelValues(name, "success").Inc()
	}
	for _, name := range failed {
		m.metrics.BackendWrites.WithLabelValues(name, "failure").Inc()
	}

	if len(succeeded) > 0 {
		if err := m.store.UpsertDomain(ctx, store.Domain{
			ZoneName:               item.ZoneName,
			UpstreamServerHostname: item.UpstreamHostname,
			UpstreamUsername:       item.UpstreamUsername,
			ManagedBy:              "directadmin",
			ZoneData:               item.ZoneText,
			ZoneUpdatedAt:          time.Now().UTC(),
		}); err != nil {
			m.logger.Error("failed to upsert domain after save", "zone_name", item.ZoneName, "err", err)
		}
	}

	if len(failed) > 0 {
		batch.failures++
		retry := RetryItem{
			Kind:             "save",
			ZoneName:         item.ZoneName,
			ZoneText:         item.ZoneText,
			UpstreamHostname: item.UpstreamHostname,
			UpstreamUsername: item.UpstreamUsername,
			Backends:         failed,
			Attempt:          1,
			NotBefore:        time.Now().Add(m.backoffFor(1)),
		}
		if err := m.retryQueue.Enqueue(retry); err != nil {
			m.logger.Error("failed to enqueue retry item", "zone_name", item.ZoneName, "err", err)
		}
	}
}
