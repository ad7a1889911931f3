package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zonecourier/zonecourier/internal/ingress/models"
)

// runPeerSync gossips zone state with every known peer on a fixed
// interval, grounded on the teacher's cluster.Syncer shape (sleep,
// observe ctx, sync, repeat) but retargeted from "pull primary config"
// to "pull peer zone list and merge newer-wins".
func (m *Manager) runPeerSync(ctx context.Context) {
	defer m.workerDone("peer_sync")
	m.markAlive("peer_sync")

	ticker := time.NewTicker(m.peerSyncInterval)
	defer ticker.Stop()

	m.syncAllPeers(ctx)
	m.markAlive("peer_sync")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.syncAllPeers(ctx)
			m.markAlive("peer_sync")
		}
	}
}

func (m *Manager) syncAllPeers(ctx context.Context) {
	for _, url := range m.peers.urls() {
		m.syncOnePeer(ctx, url)
	}
	for _, healthy := range m.peers.status() {
		v := 0.0
		if healthy.Healthy {
			v = 1.0
		}
		m.metrics.PeerHealthy.WithLabelValues(healthy.URL).Set(v)
	}
}

func (m *Manager) syncOnePeer(ctx context.Context, peerURL string) {
	reqCtx, cancel := context.WithTimeout(ctx, m.peerCallTimeout)
	defer cancel()

	zones, err := m.fetchPeerZones(reqCtx, peerURL)
	if err != nil {
		m.peers.recordFailure(peerURL)
		m.logger.Warn("peer unreachable, skipping", "peer", peerURL, "err", err)
		return
	}

	wasUnhealthy := m.peers.wasUnhealthy(peerURL)
	m.peers.recordSuccess(peerURL)
	if wasUnhealthy {
		m.logger.Info("peer recovered", "peer", peerURL)
	}

	m.mergeNewerZones(ctx, zones)

	discovered, err := m.fetchPeerList(reqCtx, peerURL)
	if err != nil {
		m.logger.Warn("failed to fetch peer list from peer", "peer", peerURL, "err", err)
		return
	}
	m.peers.merge(discovered)
}

// mergeNewerZones implements the last-writer-wins rule in spec.md §4.6
// step 3: a zone is re-applied locally (as a save owned by this node)
// when the peer's copy is strictly newer.
func (m *Manager) mergeNewerZones(ctx context.Context, zones []models.ZoneDTO) {
	for _, z := range zones {
		local, err := m.store.GetDomain(ctx, z.ZoneName)
		if err != nil {
			m.logger.Error("failed to read local domain during peer sync", "zone_name", z.ZoneName, "err", err)
			continue
		}
		if local != nil && !local.ZoneUpdatedAt.Before(z.ZoneUpdatedAt) {
			continue
		}
		if err := m.saveQueue.Enqueue(SaveItem{
			ZoneName:         z.ZoneName,
			ZoneText:         z.ZoneData,
			UpstreamHostname: m.nodeHostname,
			EnqueuedAt:       time.Now(),
		}); err != nil {
			m.logger.Error("failed to enqueue peer-sync save", "zone_name", z.ZoneName, "err", err)
		}
	}
}

func (m *Manager) fetchPeerZones(ctx context.Context, peerURL string) ([]models.ZoneDTO, error) {
	body, err := m.peerGet(ctx, peerURL+"/internal/zones")
	if err != nil {
		return nil, err
	}
	var resp models.ZoneListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode zone list from %s: %w", peerURL, err)
	}
	return resp.Zones, nil
}

func (m *Manager) fetchPeerList(ctx context.Context, peerURL string) ([]string, error) {
	body, err := m.peerGet(ctx, peerURL+"/internal/peers")
	if err != nil {
		return nil, err
	}
	var resp models.PeerListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode peer list from %s: %w", peerURL, err)
	}
	return resp.Peers, nil
}

func (m *Manager) peerGet(ctx context.Context, target string) ([]byte, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse peer url %s: %w", target, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build peer request: %w", err)
	}
	req.SetBasicAuth(m.cfgAuthPeerUsername, m.cfgAuthPeerPassword)

	resp, err := m.peerHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("peer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer %s returned status %d", target, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
