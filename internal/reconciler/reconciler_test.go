package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/discourse/ddns-sd/internal/backend"
	"github.com/discourse/ddns-sd/internal/record"
)

const hostname = "host1.example.com"

func TestCalculateDeletesOrphanedOwnedRecord(t *testing.T) {
	stale := record.New("stale.host1.example.com", 60, record.A, record.AData{Addr: "10.0.0.99"})
	existing := []record.Record{stale}
	var desired []record.Record

	plan := Calculate(existing, desired, hostname)
	require.Contains(t, plan.ToDelete, stale)
	require.Empty(t, plan.ToCreate)
}

func TestCalculateRetainsSharedPTREvenIfOrphaned(t *testing.T) {
	ptr := record.New("foo.example.com", 60, record.PTR, record.PTRData{Target: "stale.host1.example.com"})
	existing := []record.Record{ptr}
	var desired []record.Record

	plan := Calculate(existing, desired, hostname)
	require.Empty(t, plan.ToDelete, "PTR/TXT/CNAME must never be deleted by reconciliation")
}

func TestCalculateCreatesMissingDesiredRecord(t *testing.T) {
	want := record.New("c1.host1.example.com", 60, record.A, record.AData{Addr: "10.0.0.1"})
	plan := Calculate(nil, []record.Record{want}, hostname)
	require.Contains(t, plan.ToCreate, want)
}

func TestCalculateSkipsCreateWhenSharedRecordAlreadyPresent(t *testing.T) {
	ptr := record.New("_http._tcp.example.com", 60, record.PTR, record.PTRData{Target: "_http._tcp.example.com"})
	plan := Calculate([]record.Record{ptr}, []record.Record{ptr}, hostname)
	require.Empty(t, plan.ToCreate)
}

func TestCalculateDoesNotTouchUnownedRecordsWithMatchingType(t *testing.T) {
	other := record.New("other.example.org", 60, record.A, record.AData{Addr: "10.0.0.5"})
	plan := Calculate([]record.Record{other}, nil, hostname)
	require.Empty(t, plan.ToDelete, "an A record not owned by our hostname suffix must be left alone")
}

type fakeBackend struct {
	suppressed, published []record.Record
	failSuppress          error
}

func (f *fakeBackend) Name() string                                           { return "fake" }
func (f *fakeBackend) DNSRecords(ctx context.Context) ([]record.Record, error) { return nil, nil }
func (f *fakeBackend) PublishRecord(ctx context.Context, r record.Record) error {
	f.published = append(f.published, r)
	return nil
}
func (f *fakeBackend) SuppressRecord(ctx context.Context, r record.Record) error {
	if f.failSuppress != nil {
		return f.failSuppress
	}
	f.suppressed = append(f.suppressed, r)
	return nil
}
func (f *fakeBackend) SuppressSharedRecords(ctx context.Context) error { return nil }
func (f *fakeBackend) Rest(ctx context.Context)                       {}

func TestApplyDeletesBeforeCreates(t *testing.T) {
	del := record.New("c1.base", 60, record.A, record.AData{Addr: "10.0.0.1"})
	create := record.New("c1.base", 60, record.A, record.AData{Addr: "10.0.0.2"})
	b := &fakeBackend{}

	err := Apply(context.Background(), b, Plan{ToDelete: []record.Record{del}, ToCreate: []record.Record{create}})
	require.NoError(t, err)
	require.Equal(t, []record.Record{del}, b.suppressed)
	require.Equal(t, []record.Record{create}, b.published)
}

func TestApplyContinuesPastNonFatalFailure(t *testing.T) {
	del := record.New("c1.base", 60, record.A, record.AData{Addr: "10.0.0.1"})
	b := &fakeBackend{failSuppress: backend.ErrTransient}

	err := Apply(context.Background(), b, Plan{ToDelete: []record.Record{del}})
	require.NoError(t, err, "a per-record failure must not abort the pass")
}

func TestApplyAbortsOnFatal(t *testing.T) {
	del := record.New("c1.base", 60, record.A, record.AData{Addr: "10.0.0.1"})
	b := &fakeBackend{failSuppress: backend.ErrFatal}

	err := Apply(context.Background(), b, Plan{ToDelete: []record.Record{del}})
	require.ErrorIs(t, err, backend.ErrFatal)
}

func TestDesiredDeduplicatesAcrossContainers(t *testing.T) {
	r := record.New("c1.base", 60, record.A, record.AData{Addr: "10.0.0.1"})
	out := Desired([][]record.Record{{r}, {r}}, nil)
	require.Len(t, out, 1)
}

func TestDesiredIncludesHostRecord(t *testing.T) {
	host := record.New("host.base", 60, record.A, record.AData{Addr: "10.0.0.254"})
	out := Desired(nil, &host)
	require.Contains(t, out, host)
}
