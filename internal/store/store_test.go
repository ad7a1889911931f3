package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndGetDomain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	d := Domain{
		ZoneName:               "example.com",
		UpstreamServerHostname: "da1",
		UpstreamUsername:       "alice",
		ManagedBy:              "directadmin",
		ZoneData:               "$ORIGIN example.com.\n@ IN A 1.2.3.4\n",
		ZoneUpdatedAt:          now,
	}
	require.NoError(t, s.UpsertDomain(ctx, d))

	got, err := s.GetDomain(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.ZoneName, got.ZoneName)
	assert.Equal(t, d.UpstreamServerHostname, got.UpstreamServerHostname)
	assert.Equal(t, d.ZoneData, got.ZoneData)
	assert.WithinDuration(t, now, got.ZoneUpdatedAt, time.Second)
}

func TestGetDomainMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetDomain(context.Background(), "nope.example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertDomainReplacesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t1 := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpsertDomain(ctx, Domain{ZoneName: "z.com", ZoneData: "old", ZoneUpdatedAt: t1}))
	t2 := t1.Add(time.Minute)
	require.NoError(t, s.UpsertDomain(ctx, Domain{ZoneName: "z.com", ZoneData: "new", ZoneUpdatedAt: t2}))

	got, err := s.GetDomain(ctx, "z.com")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ZoneData)
	assert.WithinDuration(t, t2, got.ZoneUpdatedAt, time.Second)
}

func TestListDomainsOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.UpsertDomain(ctx, Domain{ZoneName: "b.com", ZoneUpdatedAt: now}))
	require.NoError(t, s.UpsertDomain(ctx, Domain{ZoneName: "a.com", ZoneUpdatedAt: now}))

	list, err := s.ListDomains(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a.com", list[0].ZoneName)
	assert.Equal(t, "b.com", list[1].ZoneName)
}

func TestDeleteDomainIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDomain(ctx, Domain{ZoneName: "gone.com", ZoneUpdatedAt: time.Now()}))
	require.NoError(t, s.DeleteDomain(ctx, "gone.com"))
	require.NoError(t, s.DeleteDomain(ctx, "gone.com")) // deleting twice is ok

	got, err := s.GetDomain(ctx, "gone.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransferOwnership(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDomain(ctx, Domain{
		ZoneName: "owned.com", UpstreamServerHostname: "da1", ZoneData: "text", ZoneUpdatedAt: time.Now(),
	}))
	require.NoError(t, s.TransferOwnership(ctx, "owned.com", "da2", "bob"))

	got, err := s.GetDomain(ctx, "owned.com")
	require.NoError(t, err)
	assert.Equal(t, "da2", got.UpstreamServerHostname)
	assert.Equal(t, "bob", got.UpstreamUsername)
	assert.Equal(t, "text", got.ZoneData, "transfer does not touch zone_data")
}

func TestDeadLetterCreateAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	dl := DeadLetter{
		ID: "dl-1", Kind: "write", ZoneName: "down.com", Payload: "zone text",
		Backends: []string{"bind-a", "bind-b"}, Cause: "connection refused",
		FirstFailure: now, LastFailure: now.Add(52 * time.Minute), Attempts: 5,
	}
	require.NoError(t, s.CreateDeadLetter(ctx, dl))

	n, err := s.CountDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListDeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"bind-a", "bind-b"}, list[0].Backends)
	assert.Equal(t, 5, list[0].Attempts)
}

func TestConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.GetConfig(ctx, "reconciler.last_success_at")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.SetConfig(ctx, "reconciler.last_success_at", "2026-07-29T10:00:00Z"))
	got, err := s.GetConfig(ctx, "reconciler.last_success_at")
	require.NoError(t, err)
	assert.Equal(t, "2026-07-29T10:00:00Z", got)
}

func TestLegacyColumnBackfillIsIdempotent(t *testing.T) {
	// Opening twice over the same file must not fail even though every
	// column already exists from the first Open's migration.
	path := filepath.Join(t.TempDir(), "legacy.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	cols, err := s2.domainColumns()
	require.NoError(t, err)
	assert.True(t, cols["zone_data"])
	assert.True(t, cols["zone_updated_at"])
	assert.True(t, cols["managed_by"])
}
