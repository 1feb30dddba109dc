package container

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/discourse/ddns-sd/internal/record"
)

func testCap() HostCapability {
	return HostCapability{FQDN: "host.base", BaseDomain: "base", Logger: log.NewEntry(log.StandardLogger())}
}

func TestDNSRecordsDerivation(t *testing.T) {
	c := New("c1", Metadata{Name: "c1", Addr: "10.0.0.1", Service: "_http._tcp", Port: 80, TTL: 60}, testCap())
	recs := c.DNSRecords()

	require.Contains(t, recs, record.New("c1.host.base", 60, record.A, record.AData{Addr: "10.0.0.1"}))
	require.Contains(t, recs, record.New("_http._tcp.base", 60, record.SRV, record.SRVData{Port: 80, Target: "c1.host.base"}))
	require.Contains(t, recs, record.New("_http._tcp.base", 60, record.PTR, record.PTRData{Target: "_http._tcp.base"}))
}

func TestDNSRecordsStableAcrossCalls(t *testing.T) {
	c := New("c1", Metadata{Name: "c1", Addr: "10.0.0.1", Service: "_http._tcp", Port: 80}, testCap())
	first := c.DNSRecords()
	second := c.DNSRecords()
	require.Equal(t, first, second)
}

type fakeBackend struct {
	published []record.Record
	suppressed []record.Record
	failOn    func(record.Record) error
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) DNSRecords(ctx context.Context) ([]record.Record, error) { return nil, nil }
func (f *fakeBackend) PublishRecord(ctx context.Context, r record.Record) error {
	if f.failOn != nil {
		if err := f.failOn(r); err != nil {
			return err
		}
	}
	f.published = append(f.published, r)
	return nil
}
func (f *fakeBackend) SuppressRecord(ctx context.Context, r record.Record) error {
	f.suppressed = append(f.suppressed, r)
	return nil
}
func (f *fakeBackend) SuppressSharedRecords(ctx context.Context) error { return nil }
func (f *fakeBackend) Rest(ctx context.Context)                       {}

func TestPublishRecordsContinuesPastFailure(t *testing.T) {
	c := New("c1", Metadata{Name: "c1", Addr: "10.0.0.1", Service: "_http._tcp", Port: 80}, testCap())
	calls := 0
	b := &fakeBackend{failOn: func(r record.Record) error {
		calls++
		if calls == 1 {
			return assertError{}
		}
		return nil
	}}

	err := c.PublishRecords(context.Background(), b)
	require.Error(t, err)
	require.Len(t, b.published, len(c.DNSRecords())-1)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestSuppressRecordsIteratesAll(t *testing.T) {
	c := New("c1", Metadata{Name: "c1", Addr: "10.0.0.1", Service: "_http._tcp", Port: 80}, testCap())
	b := &fakeBackend{}
	require.NoError(t, c.SuppressRecords(context.Background(), b))
	require.Len(t, b.suppressed, len(c.DNSRecords()))
}
