package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zonecourier/zonecourier/internal/backend"
	"github.com/zonecourier/zonecourier/internal/config"
	"github.com/zonecourier/zonecourier/internal/ingress/models"
	"github.com/zonecourier/zonecourier/internal/metrics"
	"github.com/zonecourier/zonecourier/internal/queue"
	"github.com/zonecourier/zonecourier/internal/store"
	"github.com/zonecourier/zonecourier/internal/upstreamclient"
)

// backlogDegradeThreshold is the combined queue depth above which
// /status reports "degraded" even with every worker alive.
const backlogDegradeThreshold = 1000

// Manager owns the five long-lived workers (save/delete/retry drainers,
// reconciler, peer-sync) plus the shared state they read and write:
// the store, backend registry, and persistent queues. Grounded on the
// teacher's server.Runner/cluster.Syncer goroutine-plus-stop-channel
// pattern, generalized to five workers sharing one cancellation context.
type Manager struct {
	logger   *slog.Logger
	store    *store.Store
	registry *backend.Registry
	metrics  *metrics.Metrics

	saveQueue   *queue.Queue[SaveItem]
	deleteQueue *queue.Queue[DeleteItem]
	retryQueue  *queue.Queue[RetryItem]

	upstreamClients map[string]upstreamclient.Client
	peers           *peerSet
	peerHTTP        *http.Client

	lastRun *reconcilerLastRun

	reconcilerInterval     time.Duration
	reconcilerInitialDelay time.Duration
	reconcilerDryRun       bool
	peerSyncInterval       time.Duration
	peerCallTimeout        time.Duration

	retryTickInterval time.Duration
	retryBackoff      []time.Duration
	maxRetryAttempts  int

	cfgAuthPeerUsername string
	cfgAuthPeerPassword string
	nodeHostname        string
	startedAt           time.Time

	wg     sync.WaitGroup
	liveMu sync.RWMutex
	alive  map[string]bool
}

// Queues bundles the three persistent queues a Manager drains; kept
// separate from Config so ingress (which only enqueues) and the worker
// manager (which drains) can share the same opened queues without
// either owning the other's lifecycle.
type Queues struct {
	Save   *queue.Queue[SaveItem]
	Delete *queue.Queue[DeleteItem]
	Retry  *queue.Queue[RetryItem]
}

// New builds a Manager. upstreamClients is keyed by upstream hostname,
// one entry per configured upstream server.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	st *store.Store,
	registry *backend.Registry,
	queues Queues,
	m *metrics.Metrics,
	upstreamClients map[string]upstreamclient.Client,
) *Manager {
	reconcilerInterval := parseDurationOr(cfg.Reconciler.Interval, 60*time.Minute)
	reconcilerInitialDelay := parseDurationOr(cfg.Reconciler.InitialDelay, 0)
	peerSyncInterval := parseDurationOr(cfg.PeerSync.Interval, 15*time.Minute)
	peerCallTimeout := parseDurationOr(cfg.Peers.Timeout, 10*time.Second)

	retryTickInterval := parseDurationOr(cfg.Retry.TickInterval, defaultRetryTickInterval)
	retryBackoff := parseBackoffTable(cfg.Retry.Backoff)
	maxRetryAttempts := cfg.Retry.MaxAttempts
	if maxRetryAttempts <= 0 {
		maxRetryAttempts = defaultMaxRetryAttempts
	}

	return &Manager{
		logger:      logger,
		store:       st,
		registry:    registry,
		metrics:     m,
		saveQueue:   queues.Save,
		deleteQueue: queues.Delete,
		retryQueue:  queues.Retry,

		upstreamClients: upstreamClients,
		peers:           newPeerSet(cfg.SelfURL, cfg.Peers.URLs),
		peerHTTP:        &http.Client{Timeout: peerCallTimeout},

		lastRun: &reconcilerLastRun{},

		reconcilerInterval:     reconcilerInterval,
		reconcilerInitialDelay: reconcilerInitialDelay,
		reconcilerDryRun:       cfg.Reconciler.DryRun,
		peerSyncInterval:       peerSyncInterval,
		peerCallTimeout:        peerCallTimeout,

		retryTickInterval: retryTickInterval,
		retryBackoff:      retryBackoff,
		maxRetryAttempts:  maxRetryAttempts,

		cfgAuthPeerUsername: cfg.Auth.PeerUsername,
		cfgAuthPeerPassword: cfg.Auth.PeerPassword,
		nodeHostname:        cfg.NodeID,
		startedAt:           time.Now(),

		alive: make(map[string]bool),
	}
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

// parseBackoffTable parses an operator-supplied attempt->delay schedule
// (e.g. ZONECOURIER_RETRY_BACKOFF="30s,2m,5m,15m,30m"). Falls back to
// defaultRetryBackoff wholesale on an empty table or any unparseable
// entry, rather than risk a partially-valid schedule.
func parseBackoffTable(raw []string) []time.Duration {
	if len(raw) == 0 {
		return defaultRetryBackoff
	}
	out := make([]time.Duration, 0, len(raw))
	for _, s := range raw {
		d, err := time.ParseDuration(s)
		if err != nil {
			return defaultRetryBackoff
		}
		out = append(out, d)
	}
	return out
}

// Start launches all five workers. They run until ctx is cancelled;
// call Wait to block until every one has returned.
func (m *Manager) Start(ctx context.Context) {
	workers := []func(context.Context){
		m.runSaveDrainer,
		m.runDeleteDrainer,
		m.runRetryDrainer,
		m.runReconciler,
		m.runPeerSync,
	}
	for _, w := range workers {
		m.wg.Add(1)
		w := w
		go func() {
			defer m.wg.Done()
			w(ctx)
		}()
	}
}

// Wait blocks until every worker started by Start has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) markAlive(name string) {
	m.liveMu.Lock()
	defer m.liveMu.Unlock()
	m.alive[name] = true
}

func (m *Manager) workerDone(name string) {
	m.liveMu.Lock()
	defer m.liveMu.Unlock()
	m.alive[name] = false
}

func (m *Manager) liveness() map[string]bool {
	m.liveMu.RLock()
	defer m.liveMu.RUnlock()
	out := make(map[string]bool, len(m.alive))
	for k, v := range m.alive {
		out[k] = v
	}
	return out
}

// PeerURLs exposes the live gossip peer set for ingress's
// GET /internal/peers handler.
func (m *Manager) PeerURLs() []string {
	return m.peers.urls()
}

// EnqueueSave admits a push onto save_queue, used by the ingress push handler.
func (m *Manager) EnqueueSave(item SaveItem) error {
	return m.saveQueue.Enqueue(item)
}

// EnqueueDelete admits a delete onto delete_queue, used by the ingress
// delete handler (after the ownership guard has already run there).
func (m *Manager) EnqueueDelete(item DeleteItem) error {
	return m.deleteQueue.Enqueue(item)
}

// Status assembles the composite health/telemetry document for GET /status.
func (m *Manager) Status(ctx context.Context) (models.StatusResponse, error) {
	saveLen, err := m.saveQueue.Len()
	if err != nil {
		return models.StatusResponse{}, fmt.Errorf("read save queue depth: %w", err)
	}
	deleteLen, err := m.deleteQueue.Len()
	if err != nil {
		return models.StatusResponse{}, fmt.Errorf("read delete queue depth: %w", err)
	}
	retryLen, err := m.retryQueue.Len()
	if err != nil {
		return models.StatusResponse{}, fmt.Errorf("read retry queue depth: %w", err)
	}
	m.metrics.QueueDepth.WithLabelValues("save_queue").Set(float64(saveLen))
	m.metrics.QueueDepth.WithLabelValues("delete_queue").Set(float64(deleteLen))
	m.metrics.QueueDepth.WithLabelValues("retry_queue").Set(float64(retryLen))

	deadLetters, err := m.store.CountDeadLetters(ctx)
	if err != nil {
		return models.StatusResponse{}, fmt.Errorf("count dead letters: %w", err)
	}
	domains, err := m.store.ListDomains(ctx)
	if err != nil {
		return models.StatusResponse{}, fmt.Errorf("list domains: %w", err)
	}

	liveness := m.liveness()
	state := "ok"
	for _, alive := range liveness {
		if !alive {
			state = "error"
		}
	}
	if state == "ok" && (deadLetters > 0 || saveLen+deleteLen+retryLen > backlogDegradeThreshold) {
		state = "degraded"
	}

	last := m.lastRun.get()
	var ranAt *time.Time
	if !last.RanAt.IsZero() {
		ranAt = &last.RanAt
	} else if persisted, ok := m.loadPersistedReconcilerRanAt(ctx); ok {
		ranAt = &persisted
	}

	return models.StatusResponse{
		State: state,
		Queues: models.QueueDepths{
			Save:   saveLen,
			Delete: deleteLen,
			Retry:  retryLen,
		},
		Workers: liveness,
		Reconciler: models.ReconcilerStatusDTO{
			RanAt:               ranAt,
			UpstreamsPolled:     last.UpstreamsPolled,
			ZonesInUpstream:     last.ZonesInUpstream,
			ZonesInStore:        last.ZonesInStore,
			OrphansFound:        last.OrphansFound,
			OrphansQueued:       last.OrphansQueued,
			HostnamesBackfilled: last.HostnamesBackfilled,
			OwnershipMigrations: last.OwnershipMigrations,
			BackendsHealed:      last.BackendsHealed,
			DurationMs:          last.Duration.Milliseconds(),
			DryRun:              last.DryRun,
		},
		Peers:         m.peers.status(),
		ZoneCount:     len(domains),
		DeadLetters:   deadLetters,
		NodeID:        m.nodeHostname,
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
	}, nil
}

// loadPersistedReconcilerRanAt backfills the reconciler's last-run
// timestamp from Store.GetConfig when the in-process cache is still
// empty, i.e. /status is queried after a restart and before the first
// reconcile cycle since then has completed.
func (m *Manager) loadPersistedReconcilerRanAt(ctx context.Context) (time.Time, bool) {
	raw, err := m.store.GetConfig(ctx, reconcilerLastRunConfigKey)
	if err != nil {
		m.logger.Error("failed to read persisted reconciler last-run timestamp", "err", err)
		return time.Time{}, false
	}
	if raw == "" {
		return time.Time{}, false
	}
	ranAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		m.logger.Error("persisted reconciler last-run timestamp is unparsable", "value", raw, "err", err)
		return time.Time{}, false
	}
	return ranAt, true
}

// ListZones renders every domain row as the peer-sync wire shape, used
// by the ingress GET /internal/zones handler.
func (m *Manager) ListZones(ctx context.Context) ([]models.ZoneDTO, error) {
	domains, err := m.store.ListDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	out := make([]models.ZoneDTO, 0, len(domains))
	for _, d := range domains {
		out = append(out, models.ZoneDTO{
			ZoneName:      d.ZoneName,
			ZoneData:      d.ZoneData,
			ZoneUpdatedAt: d.ZoneUpdatedAt,
		})
	}
	return out, nil
}

// GetZone renders one domain row as the peer-sync wire shape, or
// (nil, nil) if the zone is unknown.
func (m *Manager) GetZone(ctx context.Context, zoneName string) (*models.ZoneDTO, error) {
	d, err := m.store.GetDomain(ctx, zoneName)
	if err != nil {
		return nil, fmt.Errorf("get zone %s: %w", zoneName, err)
	}
	if d == nil {
		return nil, nil
	}
	return &models.ZoneDTO{ZoneName: d.ZoneName, ZoneData: d.ZoneData, ZoneUpdatedAt: d.ZoneUpdatedAt}, nil
}

// GetDomain exposes the raw store row, used by the ingress push
// handler's ownership-transfer check.
func (m *Manager) GetDomain(ctx context.Context, zoneName string) (*store.Domain, error) {
	return m.store.GetDomain(ctx, zoneName)
}

// TransferOwnership rewrites the recorded owning upstream, used by the
// ingress push handler when a push arrives from a different upstream
// than the one currently on record.
func (m *Manager) TransferOwnership(ctx context.Context, zoneName, newHostname, newUsername string) error {
	return m.store.TransferOwnership(ctx, zoneName, newHostname, newUsername)
}
