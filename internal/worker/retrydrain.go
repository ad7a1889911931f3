package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zonecourier/zonecourier/internal/store"
	"github.com/zonecourier/zonecourier/internal/zonefile"
)

// Retries are best-effort, not FIFO-strict — items become eligible by
// wall clock, not arrival order. The sweep cadence is cfg.Retry.TickInterval
// (m.retryTickInterval), defaulting to defaultRetryTickInterval.
func (m *Manager) runRetryDrainer(ctx context.Context) {
	defer m.workerDone("retry_drainer")
	m.markAlive("retry_drainer")

	ticker := time.NewTicker(m.retryTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepRetryQueue(ctx)
			m.markAlive("retry_drainer")
		}
	}
}

// sweepRetryQueue drains every item currently in retry_queue exactly
// once: eligible items are attempted and either dropped (fully
// succeeded), re-enqueued with the next attempt/backoff, or
// dead-lettered once m.maxRetryAttempts is reached; ineligible items are
// put back unchanged for a later tick. Each item is acked only after its
// re-enqueue or attempt has completed.
func (m *Manager) sweepRetryQueue(ctx context.Context) {
	n, err := m.retryQueue.Len()
	if err != nil {
		m.logger.Error("failed to size retry queue", "err", err)
		return
	}

	for i := 0; i < n; i++ {
		item, ack, ok, err := m.retryQueue.TryDequeue()
		if err != nil {
			m.logger.Error("retry queue dequeue failed", "err", err)
			return
		}
		if !ok {
			return
		}
		if time.Now().Before(item.NotBefore) {
			if err := m.retryQueue.Enqueue(item); err != nil {
				m.logger.Error("failed to re-enqueue ineligible retry item", "zone_name", item.ZoneName, "err", err)
				return
			}
		} else {
			m.attemptRetry(ctx, item)
		}

		if err := ack(); err != nil {
			m.logger.Error("failed to ack retry queue item", "zone_name", item.ZoneName, "err", err)
			return
		}
	}
}

func (m *Manager) attemptRetry(ctx context.Context, item RetryItem) {
	drivers := m.registry.Select(item.Backends)

	var succeeded, failed []string
	switch item.Kind {
	case "delete":
		succeeded, failed = dispatchDelete(ctx, m.logger, drivers, item.ZoneName)
	default:
		refCount := 0
		if n, err := zonefile.CountRecords(item.ZoneText); err == nil {
			refCount = n
		}
		succeeded, failed = dispatchWrite(ctx, m.logger, drivers, item.ZoneName, item.ZoneText, refCount)
	}

	for range succeeded {
		m.metrics.RetryAttempts.WithLabelValues("success").Inc()
	}
	for range failed {
		m.metrics.RetryAttempts.WithLabelValues("failure").Inc()
	}

	if len(failed) == 0 {
		m.logger.Info("retry succeeded", "zone_name", item.ZoneName, "kind", item.Kind, "attempt", item.Attempt)
		if item.Kind == "delete" {
			if err := m.store.DeleteDomain(ctx, item.ZoneName); err != nil {
				m.logger.Error("failed to delete domain after retry success", "zone_name", item.ZoneName, "err", err)
			}
		} else if err := m.store.UpsertDomain(ctx, store.Domain{
			ZoneName:               item.ZoneName,
			UpstreamServerHostname: item.UpstreamHostname,
			UpstreamUsername:       item.UpstreamUsername,
			ManagedBy:              "directadmin",
			ZoneData:               item.ZoneText,
			ZoneUpdatedAt:          time.Now().UTC(),
		}); err != nil {
			m.logger.Error("failed to upsert domain after retry success", "zone_name", item.ZoneName, "err", err)
		}
		return
	}

	item.Backends = failed
	if item.Attempt >= m.maxRetryAttempts {
		m.deadLetter(ctx, item)
		return
	}

	item.Attempt++
	item.NotBefore = time.Now().Add(m.backoffFor(item.Attempt))
	if err := m.retryQueue.Enqueue(item); err != nil {
		m.logger.Error("failed to re-enqueue retry item", "zone_name", item.ZoneName, "err", err)
	}
}

func (m *Manager) deadLetter(ctx context.Context, item RetryItem) {
	now := time.Now().UTC()
	kind := item.Kind
	if kind == "save" {
		kind = "write"
	}
	dl := store.DeadLetter{
		ID:           uuid.NewString(),
		Kind:         kind,
		ZoneName:     item.ZoneName,
		Payload:      item.ZoneText,
		Backends:     item.Backends,
		Cause:        "exhausted retry attempts",
		FirstFailure: now,
		LastFailure:  now,
		Attempts:     item.Attempt,
	}
	if err := m.store.CreateDeadLetter(ctx, dl); err != nil {
		m.logger.Error("failed to record dead letter", "zone_name", item.ZoneName, "err", err)
		return
	}
	m.metrics.DeadLetters.Inc()
	m.logger.Warn("item dead-lettered after exhausting retries",
		"zone_name", item.ZoneName, "kind", item.Kind, "backends", item.Backends, "attempts", item.Attempt)
}
