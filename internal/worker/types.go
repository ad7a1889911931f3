// Package worker hosts the five long-lived tasks that drain the
// persistent queues, retry failed backend writes with backoff,
// reconcile drift against the upstream, and gossip zone state with
// peers. All five observe a single shared shutdown context.
package worker

import (
	"time"

	"github.com/zonecourier/zonecourier/internal/helpers"
)

// SaveItem is a save_queue entry: a zone push to fan out to backends.
// TargetBackends is empty for an ordinary push (meaning "all enabled
// backends") and populated for reconciler-healing or retry-originated
// saves that must only touch specific backends.
type SaveItem struct {
	ZoneName         string    `json:"zone_name"`
	ZoneText         string    `json:"zone_text"`
	UpstreamHostname string    `json:"upstream_hostname"`
	UpstreamUsername string    `json:"upstream_username"`
	TargetBackends   []string  `json:"target_backends,omitempty"`
	EnqueuedAt       time.Time `json:"enqueued_at"`
}

// DeleteItem is a delete_queue entry.
type DeleteItem struct {
	ZoneName         string    `json:"zone_name"`
	UpstreamHostname string    `json:"upstream_hostname"`
	TargetBackends   []string  `json:"target_backends,omitempty"`
	EnqueuedAt       time.Time `json:"enqueued_at"`
}

// RetryItem is a retry_queue entry: the original operation plus the set
// of backends still pending and the attempt/backoff state.
type RetryItem struct {
	Kind             string    `json:"kind"` // "save" or "delete"
	ZoneName         string    `json:"zone_name"`
	ZoneText         string    `json:"zone_text,omitempty"`
	UpstreamHostname string    `json:"upstream_hostname"`
	UpstreamUsername string    `json:"upstream_username"`
	Backends         []string  `json:"backends"`
	Attempt          int       `json:"attempt"`
	NotBefore        time.Time `json:"not_before"`
}

// defaultRetryBackoff is the attempt->delay schedule from attempt 1..5
// used when cfg.Retry.Backoff is unset or fails to parse. Index n-1 is
// the delay before attempt n: index 0 is applied when a failed dispatch
// first creates a retry item with attempt 1.
var defaultRetryBackoff = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

// defaultMaxRetryAttempts is how many failed attempts a retry item
// tolerates before it is dead-lettered, used when cfg.Retry.MaxAttempts
// is unset.
const defaultMaxRetryAttempts = 5

// defaultRetryTickInterval is how often the retry drainer sweeps
// retry_queue when cfg.Retry.TickInterval is unset.
const defaultRetryTickInterval = 5 * time.Second

func (m *Manager) backoffFor(attempt int) time.Duration {
	idx := helpers.ClampInt(attempt-1, 0, len(m.retryBackoff)-1)
	return m.retryBackoff[idx]
}
