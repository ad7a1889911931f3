package worker

import (
	"sync"
	"time"

	"github.com/zonecourier/zonecourier/internal/ingress/models"
)

// failureThreshold is the consecutive-failure count at which a peer is
// considered unhealthy (spec.md §3/§4.6).
const failureThreshold = 3

type peerInfo struct {
	consecutiveFailures int
	lastSeen            time.Time
}

// peerSet is the live, in-memory peer URL set: seeded from config,
// grown by gossip discovery, read by ingress's /internal/peers and by
// /status. Never persisted — cheap to rediscover (spec.md §9).
type peerSet struct {
	mu      sync.RWMutex
	selfURL string
	peers   map[string]*peerInfo
}

func newPeerSet(selfURL string, seed []string) *peerSet {
	ps := &peerSet{selfURL: selfURL, peers: make(map[string]*peerInfo)}
	for _, url := range seed {
		ps.addLocked(url)
	}
	return ps
}

func (ps *peerSet) addLocked(url string) {
	if url == "" || url == ps.selfURL {
		return
	}
	if _, ok := ps.peers[url]; !ok {
		ps.peers[url] = &peerInfo{}
	}
}

// merge adds any URLs not already known, skipping the set's own URL.
func (ps *peerSet) merge(urls []string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, u := range urls {
		ps.addLocked(u)
	}
}

// urls returns every known peer URL, in no particular order.
func (ps *peerSet) urls() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]string, 0, len(ps.peers))
	for u := range ps.peers {
		out = append(out, u)
	}
	return out
}

func (ps *peerSet) recordSuccess(url string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.addLocked(url)
	info := ps.peers[url]
	info.consecutiveFailures = 0
	info.lastSeen = time.Now()
}

func (ps *peerSet) wasUnhealthy(url string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	info, ok := ps.peers[url]
	return ok && info.consecutiveFailures >= failureThreshold
}

func (ps *peerSet) recordFailure(url string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.addLocked(url)
	ps.peers[url].consecutiveFailures++
}

// status renders the peer set as the /status DTO.
func (ps *peerSet) status() []models.PeerStatusDTO {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]models.PeerStatusDTO, 0, len(ps.peers))
	for url, info := range ps.peers {
		var lastSeen *time.Time
		if !info.lastSeen.IsZero() {
			t := info.lastSeen
			lastSeen = &t
		}
		out = append(out, models.PeerStatusDTO{
			URL:                 url,
			Healthy:             info.consecutiveFailures < failureThreshold,
			ConsecutiveFailures: info.consecutiveFailures,
			LastSeen:            lastSeen,
		})
	}
	return out
}
