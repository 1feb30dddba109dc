package daemon

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/discourse/ddns-sd/internal/backend"
	"github.com/discourse/ddns-sd/internal/container"
	"github.com/discourse/ddns-sd/internal/record"
	"github.com/discourse/ddns-sd/internal/testutils"
)

func testCap() container.HostCapability {
	return container.HostCapability{FQDN: "host1.example.com", BaseDomain: "example.com", Logger: log.NewEntry(log.StandardLogger())}
}

type fakeBackend struct {
	live map[record.Key]record.Record
}

func newFakeBackend() *fakeBackend { return &fakeBackend{live: map[record.Key]record.Record{}} }

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) DNSRecords(ctx context.Context) ([]record.Record, error) {
	var out []record.Record
	for _, r := range f.live {
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeBackend) PublishRecord(ctx context.Context, r record.Record) error {
	f.live[r.Key()] = r
	return nil
}
func (f *fakeBackend) SuppressRecord(ctx context.Context, r record.Record) error {
	delete(f.live, r.Key())
	return nil
}
func (f *fakeBackend) SuppressSharedRecords(ctx context.Context) error {
	for k, r := range f.live {
		if r.Type.Shared() {
			delete(f.live, k)
		}
	}
	return nil
}
func (f *fakeBackend) Rest(ctx context.Context) {}

func metaFor(id string) container.Metadata {
	return container.Metadata{Name: id, Addr: "10.0.0.1", Service: "_http._tcp", Port: 80, TTL: 60}
}

func newTestSystemReal(meta map[string]container.Metadata, b *fakeBackend) *System {
	lookup := func(ctx context.Context, id string) (container.Metadata, bool) {
		m, ok := meta[id]
		return m, ok
	}
	return New([]backend.Backend{b}, testCap(), lookup, nil, nil, nil)
}

// newTestSystemWithLister is newTestSystemReal plus a real Lister, for tests
// that exercise rebuildContainerMap's full-enumeration pass.
func newTestSystemWithLister(meta map[string]container.Metadata, list []string, b *fakeBackend) *System {
	lookup := func(ctx context.Context, id string) (container.Metadata, bool) {
		m, ok := meta[id]
		return m, ok
	}
	lister := func(ctx context.Context) []string { return list }
	return New([]backend.Backend{b}, testCap(), lookup, lister, nil, nil)
}

// S1 — start/stop clean: starting a container publishes its records;
// stop then a clean death suppresses them.
func TestStartStopClean(t *testing.T) {
	b := newFakeBackend()
	meta := map[string]container.Metadata{"c1": metaFor("c1")}
	s := newTestSystemReal(meta, b)

	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Started, ID: "c1"}))
	require.NotEmpty(t, b.live)

	s.dispatch(context.Background(), Message{Tag: Stopped, ID: "c1"})
	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Died, ID: "c1", ExitCode: 0}))
	require.Empty(t, b.live)
	require.NotContains(t, s.containers, "c1")
}

// S2 — crash retention: a nonzero-exitcode death with stopped=false keeps
// records; a subsequent start suppresses the old generation then
// republishes the new one.
func TestCrashRetention(t *testing.T) {
	b := newFakeBackend()
	meta := map[string]container.Metadata{"c1": metaFor("c1")}
	s := newTestSystemReal(meta, b)

	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Started, ID: "c1"}))
	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Died, ID: "c1", ExitCode: 137}))
	require.NotEmpty(t, b.live, "crashed container must keep its records published")
	require.True(t, s.containers["c1"].Crashed)

	meta["c1"] = container.Metadata{Name: "c1", Addr: "10.0.0.2", Service: "_http._tcp", Port: 80, TTL: 60}
	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Started, ID: "c1"}))

	var addrs []string
	for _, r := range b.live {
		if r.Type == record.A {
			addrs = append(addrs, r.Data.(record.AData).Addr)
		}
	}
	require.Equal(t, []string{"10.0.0.2"}, addrs)
}

// Invariant: events for an untracked container ID are dropped with a
// warning, not an error.
func TestDiedUntrackedIsDropped(t *testing.T) {
	b := newFakeBackend()
	s := newTestSystemReal(map[string]container.Metadata{}, b)
	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Died, ID: "ghost", ExitCode: 1}))
}

func TestStartedUnknownContainerIsDropped(t *testing.T) {
	b := newFakeBackend()
	s := newTestSystemReal(map[string]container.Metadata{}, b)
	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Started, ID: "ghost"}))
	require.Empty(t, b.live)
}

// S3 — reconcile drift: an orphaned owned A record is deleted by
// reconcile_all; a shared PTR record is retained even if orphaned.
func TestReconcileAllDeletesOrphanedOwnedRecord(t *testing.T) {
	b := newFakeBackend()
	stale := record.New("stale.host1.example.com", 60, record.A, record.AData{Addr: "10.0.0.99"})
	b.live[stale.Key()] = stale
	ptr := record.New("foo.example.com", 60, record.PTR, record.PTRData{Target: "stale.host1.example.com"})
	b.live[ptr.Key()] = ptr

	s := newTestSystemReal(map[string]container.Metadata{}, b)
	require.NoError(t, s.dispatch(context.Background(), Message{Tag: ReconcileAll}))

	require.NotContains(t, b.live, stale.Key())
	require.Contains(t, b.live, ptr.Key())
}

// rebuildContainerMap must prune tracked containers that vanish without a
// died/removed event (e.g. killed mid-pass), not just skip adding them:
// a tracked-then-vanished container's records must still fall out of
// desired on the next reconcile_all (spec.md §4.3 step 1).
func TestReconcileAllPrunesVanishedTrackedContainer(t *testing.T) {
	b := newFakeBackend()
	meta := map[string]container.Metadata{"c1": metaFor("c1")}
	s := newTestSystemWithLister(meta, []string{"c1"}, b)

	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Started, ID: "c1"}))
	require.Contains(t, s.containers, "c1")
	require.NotEmpty(t, b.live)

	// c1 disappears from the runtime without a died/removed event; list()
	// no longer reports it on the next reconcile pass.
	s.list = func(ctx context.Context) []string { return nil }
	require.NoError(t, s.dispatch(context.Background(), Message{Tag: ReconcileAll}))

	require.NotContains(t, s.containers, "c1")
	// The owned A and SRV records are deleted; the shared TXT and PTR are
	// never deleted by reconciliation, and this fake backend does not
	// cascade SRV suppression onto them.
	require.Len(t, b.live, 2)
	for _, r := range b.live {
		require.True(t, r.Type.Shared(), "only shared records may survive reconciliation, got %s", r)
	}
}

// S4 — concurrent events for different IDs: started for two distinct
// containers yields the union of their records.
func TestStartedForTwoContainersUnionsRecords(t *testing.T) {
	b := newFakeBackend()
	meta := map[string]container.Metadata{"c1": metaFor("c1"), "c2": metaFor("c2")}
	s := newTestSystemReal(meta, b)

	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Started, ID: "c1"}))
	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Started, ID: "c2"}))

	require.Len(t, s.containers, 2)
	for _, id := range []string{"c1", "c2"} {
		for _, r := range s.containers[id].DNSRecords() {
			require.Contains(t, b.live, r.Key())
		}
	}
}

// S5 — graceful shutdown with suppression.
func TestSuppressAllClearsOwnedAndSharedRecords(t *testing.T) {
	b := newFakeBackend()
	meta := map[string]container.Metadata{"c1": metaFor("c1")}
	s := newTestSystemReal(meta, b)

	require.NoError(t, s.dispatch(context.Background(), Message{Tag: Started, ID: "c1"}))
	require.NotEmpty(t, b.live)

	require.NoError(t, s.dispatch(context.Background(), Message{Tag: SuppressAll}))
	require.Empty(t, b.live)
	require.Empty(t, s.containers)
}

func TestUnknownMessageTagLogsAndContinues(t *testing.T) {
	buf := testutils.LogsToBuffer(log.WarnLevel, t)
	b := newFakeBackend()
	s := newTestSystemReal(map[string]container.Metadata{}, b)
	require.NoError(t, s.dispatch(context.Background(), Message{Tag: MessageTag(99)}))
	require.Contains(t, buf.String(), "unknown message tag")
}
