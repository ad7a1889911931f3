package worker

import (
	"context"
	"time"
)

// runDeleteDrainer consumes delete_queue strictly in FIFO order. The
// delete guard (ownership check) already ran at ingress admission time;
// this drainer does not re-check ownership.
func (m *Manager) runDeleteDrainer(ctx context.Context) {
	defer m.workerDone("delete_drainer")
	m.markAlive("delete_drainer")

	for {
		item, ack, err := m.deleteQueue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("delete queue dequeue failed", "err", err)
			continue
		}

		m.processDeleteItem(ctx, item)
		if err := ack(); err != nil {
			m.logger.Error("failed to ack delete queue item", "zone_name", item.ZoneName, "err", err)
		}
		m.markAlive("delete_drainer")
	}
}

func (m *Manager) processDeleteItem(ctx context.Context, item DeleteItem) {
	drivers := m.registry.Select(item.TargetBackends)
	if len(drivers) == 0 {
		m.logger.Warn("delete item has no target backends, dropping", "zone_name", item.ZoneName)
		return
	}

	succeeded, failed := dispatchDelete(ctx, m.logger, drivers, item.ZoneName)
	for _, name := range succeeded {
		m.metrics.BackendDeletes.WithLabelValues(name, "success").Inc()
	}
	for _, name := range failed {
		m.metrics.BackendDeletes.WithLabelValues(name, "failure").Inc()
	}

	if len(failed) == 0 {
		if err := m.store.DeleteDomain(ctx, item.ZoneName); err != nil {
			m.logger.Error("failed to delete domain row", "zone_name", item.ZoneName, "err", err)
		}
		return
	}

	retry := RetryItem{
		Kind:             "delete",
		ZoneName:         item.ZoneName,
		UpstreamHostname: item.UpstreamHostname,
		Backends:         failed,
		Attempt:          1,
		NotBefore:        time.Now().Add(m.backoffFor(1)),
	}
	if err := m.retryQueue.Enqueue(retry); err != nil {
		m.logger.Error("failed to enqueue retry item", "zone_name", item.ZoneName, "err", err)
	}
}
