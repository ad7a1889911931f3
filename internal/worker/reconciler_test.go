package worker

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonecourier/zonecourier/internal/store"
	"github.com/zonecourier/zonecourier/internal/upstreamclient"
)

// fakeUpstream is an in-memory upstreamclient.Client for reconciler tests.
type fakeUpstream struct {
	domains   []upstreamclient.Domain
	listErr   error
	failPage  int
}

func (f *fakeUpstream) ListDomains(ctx context.Context, page int) ([]upstreamclient.Domain, bool, error) {
	if f.failPage != 0 && page == f.failPage {
		return nil, false, f.listErr
	}
	if page > 1 {
		return nil, false, nil
	}
	return f.domains, false, nil
}

func (f *fakeUpstream) Get(ctx context.Context, command string, params url.Values) ([]byte, error) {
	return nil, nil
}

func (f *fakeUpstream) EnsureExtraDNSServer(ctx context.Context, selfURL string, creds upstreamclient.Credentials) error {
	return nil
}

func TestReconcileOrphansAndOwnershipBackfillsEmptyHostname(t *testing.T) {
	d := newFakeDriver("file")
	m, st := newTestManager(t, d)
	ctx := context.Background()

	require.NoError(t, st.UpsertDomain(ctx, store.Domain{ZoneName: "example.com", ZoneData: testZone, ZoneUpdatedAt: time.Now()}))
	m.upstreamClients = map[string]upstreamclient.Client{
		"da1": &fakeUpstream{domains: []upstreamclient.Domain{{Name: "example.com", Username: "alice"}}},
	}

	var stats ReconcilerStats
	rows, err := st.ListDomains(ctx)
	require.NoError(t, err)
	m.reconcileOrphansAndOwnership(ctx, rows, &stats)

	assert.Equal(t, 1, stats.HostnamesBackfilled)
	row, err := st.GetDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "da1", row.UpstreamServerHostname)
}

func TestReconcileOrphansAndOwnershipMigratesDifferingHostname(t *testing.T) {
	d := newFakeDriver("file")
	m, st := newTestManager(t, d)
	ctx := context.Background()

	require.NoError(t, st.UpsertDomain(ctx, store.Domain{ZoneName: "example.com", ZoneData: testZone, UpstreamServerHostname: "old-host", ZoneUpdatedAt: time.Now()}))
	m.upstreamClients = map[string]upstreamclient.Client{
		"new-host": &fakeUpstream{domains: []upstreamclient.Domain{{Name: "example.com", Username: "alice"}}},
	}

	var stats ReconcilerStats
	rows, err := st.ListDomains(ctx)
	require.NoError(t, err)
	m.reconcileOrphansAndOwnership(ctx, rows, &stats)

	assert.Equal(t, 1, stats.OwnershipMigrations)
	row, err := st.GetDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "new-host", row.UpstreamServerHostname)
}

func TestReconcileOrphansAndOwnershipQueuesOrphanDelete(t *testing.T) {
	d := newFakeDriver("file")
	m, st := newTestManager(t, d)
	ctx := context.Background()

	require.NoError(t, st.UpsertDomain(ctx, store.Domain{ZoneName: "gone.example.com", ZoneData: testZone, UpstreamServerHostname: "da1", ZoneUpdatedAt: time.Now()}))
	m.upstreamClients = map[string]upstreamclient.Client{
		"da1": &fakeUpstream{domains: nil},
	}

	var stats ReconcilerStats
	rows, err := st.ListDomains(ctx)
	require.NoError(t, err)
	m.reconcileOrphansAndOwnership(ctx, rows, &stats)

	assert.Equal(t, 1, stats.OrphansFound)
	assert.Equal(t, 1, stats.OrphansQueued)

	n, err := m.deleteQueue.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReconcileOrphansAndOwnershipSkipsUnreachableUpstream(t *testing.T) {
	d := newFakeDriver("file")
	m, st := newTestManager(t, d)
	ctx := context.Background()

	require.NoError(t, st.UpsertDomain(ctx, store.Domain{ZoneName: "example.com", ZoneData: testZone, UpstreamServerHostname: "da1", ZoneUpdatedAt: time.Now()}))
	m.upstreamClients = map[string]upstreamclient.Client{
		"da1": &fakeUpstream{failPage: 1, listErr: assertErr},
	}

	var stats ReconcilerStats
	rows, err := st.ListDomains(ctx)
	require.NoError(t, err)
	m.reconcileOrphansAndOwnership(ctx, rows, &stats)

	assert.Zero(t, stats.OrphansFound, "a partial/failed upstream listing must never produce orphan deletes")
	assert.Zero(t, stats.UpstreamsPolled)

	n, err := m.deleteQueue.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcileOrphansDryRunDoesNotEnqueue(t *testing.T) {
	d := newFakeDriver("file")
	m, st := newTestManager(t, d)
	m.reconcilerDryRun = true
	ctx := context.Background()

	require.NoError(t, st.UpsertDomain(ctx, store.Domain{ZoneName: "gone.example.com", ZoneData: testZone, UpstreamServerHostname: "da1", ZoneUpdatedAt: time.Now()}))
	m.upstreamClients = map[string]upstreamclient.Client{
		"da1": &fakeUpstream{domains: nil},
	}

	var stats ReconcilerStats
	rows, err := st.ListDomains(ctx)
	require.NoError(t, err)
	m.reconcileOrphansAndOwnership(ctx, rows, &stats)

	assert.Equal(t, 1, stats.OrphansFound)
	assert.Zero(t, stats.OrphansQueued)

	n, err := m.deleteQueue.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcileBackendHealingEnqueuesSaveForMissingBackend(t *testing.T) {
	present := newFakeDriver("file")
	missing := newFakeDriver("db")
	m, st := newTestManager(t, present, missing)
	ctx := context.Background()

	require.NoError(t, st.UpsertDomain(ctx, store.Domain{ZoneName: "example.com", ZoneData: testZone, UpstreamServerHostname: "da1", ZoneUpdatedAt: time.Now()}))
	present.zones["example.com"] = testZone

	var stats ReconcilerStats
	rows, err := st.ListDomains(ctx)
	require.NoError(t, err)
	m.reconcileBackendHealing(ctx, rows, &stats)

	assert.Equal(t, 1, stats.BackendsHealed)
	n, err := m.saveQueue.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	item, ack, err := m.saveQueue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, ack())
	assert.Equal(t, []string{"db"}, item.TargetBackends)
}

func TestReconcileBackendHealingSkipsWhenAllBackendsHaveZone(t *testing.T) {
	d := newFakeDriver("file")
	m, st := newTestManager(t, d)
	ctx := context.Background()

	require.NoError(t, st.UpsertDomain(ctx, store.Domain{ZoneName: "example.com", ZoneData: testZone, UpstreamServerHostname: "da1", ZoneUpdatedAt: time.Now()}))
	d.zones["example.com"] = testZone

	var stats ReconcilerStats
	rows, err := st.ListDomains(ctx)
	require.NoError(t, err)
	m.reconcileBackendHealing(ctx, rows, &stats)

	assert.Zero(t, stats.BackendsHealed)
	n, err := m.saveQueue.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunReconcileCyclePersistsLastRunAcrossManagerInstances(t *testing.T) {
	dbPath := t.TempDir() + "/store.db"
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m1, _ := newTestManagerWithStore(t, st)
	ctx := context.Background()
	m1.runReconcileCycle(ctx)

	resp1, err := m1.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, resp1.Reconciler.RanAt)

	// A fresh Manager sharing the same store has no in-memory lastRun yet;
	// Status must backfill it from Store.GetConfig rather than report nil.
	m2, _ := newTestManagerWithStore(t, st)
	resp2, err := m2.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, resp2.Reconciler.RanAt)
	assert.WithinDuration(t, *resp1.Reconciler.RanAt, *resp2.Reconciler.RanAt, time.Second)
}

var assertErr = errUpstreamUnreachable{}

type errUpstreamUnreachable struct{}

func (errUpstreamUnreachable) Error() string { return "upstream unreachable" }
