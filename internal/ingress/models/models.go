// Package models defines the request/response types exchanged over the
// ingress HTTP API, shared between internal/ingress/handlers and
// internal/worker's peer-sync client (which decodes these same shapes
// from a peer's /internal/zones and /internal/peers responses).
package models

import "time"

// ErrorResponse is the uniform error body for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PushDeleteRequest is the body of the app-realm zone push/delete
// endpoint; Action discriminates the two operations in one body.
type PushDeleteRequest struct {
	Action           string `json:"action" binding:"required,oneof=push delete"`
	ZoneName         string `json:"zone_name" binding:"required"`
	ZoneText         string `json:"zone_text,omitempty"`
	UpstreamHostname string `json:"upstream_hostname" binding:"required"`
	UpstreamUsername string `json:"upstream_username,omitempty"`
}

// AcceptedResponse confirms a push or delete was durably queued.
type AcceptedResponse struct {
	Status   string `json:"status"`
	ZoneName string `json:"zone_name"`
}

// ZoneDTO is one zone's replicated metadata, used by /internal/zones
// and /internal/zone.
type ZoneDTO struct {
	ZoneName      string    `json:"zone_name"`
	ZoneData      string    `json:"zone_data"`
	ZoneUpdatedAt time.Time `json:"zone_updated_at"`
}

// ZoneListResponse is the body of GET /internal/zones.
type ZoneListResponse struct {
	Zones []ZoneDTO `json:"zones"`
}

// PeerListResponse is the body of GET /internal/peers.
type PeerListResponse struct {
	Peers []string `json:"peers"`
}

// PeerStatusDTO summarizes one peer's health as seen by peer-sync.
type PeerStatusDTO struct {
	URL                 string     `json:"url"`
	Healthy             bool       `json:"healthy"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSeen            *time.Time `json:"last_seen,omitempty"`
}

// ReconcilerStatusDTO is the reconciler's last-run summary for /status.
type ReconcilerStatusDTO struct {
	RanAt               *time.Time `json:"ran_at,omitempty"`
	UpstreamsPolled     int        `json:"upstreams_polled"`
	ZonesInUpstream     int        `json:"zones_in_upstream"`
	ZonesInStore        int        `json:"zones_in_store"`
	OrphansFound        int        `json:"orphans_found"`
	OrphansQueued       int        `json:"orphans_queued"`
	HostnamesBackfilled int        `json:"hostnames_backfilled"`
	OwnershipMigrations int        `json:"ownership_migrations"`
	BackendsHealed      int        `json:"backends_healed"`
	DurationMs          int64      `json:"duration_ms"`
	DryRun              bool       `json:"dry_run"`
}

// QueueDepths reports the current item count of each persistent queue.
type QueueDepths struct {
	Save   int `json:"save"`
	Delete int `json:"delete"`
	Retry  int `json:"retry"`
}

// HostStats is a point-in-time snapshot of host CPU/memory, sampled
// with gopsutil the way the teacher's /stats handler does.
type HostStats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemUsedMB   float64 `json:"mem_used_mb"`
	MemTotalMB  float64 `json:"mem_total_mb"`
	MemPercent  float64 `json:"mem_used_percent"`
}

// StatusResponse is the composite health/telemetry document at GET /status.
type StatusResponse struct {
	State         string              `json:"state"` // ok | degraded | error
	Queues        QueueDepths         `json:"queues"`
	Workers       map[string]bool     `json:"workers"`
	Reconciler    ReconcilerStatusDTO `json:"reconciler"`
	Peers         []PeerStatusDTO     `json:"peers"`
	ZoneCount     int                 `json:"zone_count"`
	DeadLetters   int                 `json:"dead_letters"`
	NodeID        string              `json:"node_id"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Host          HostStats           `json:"host"`
}
