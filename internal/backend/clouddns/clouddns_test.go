package clouddns

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/stretchr/testify/require"

	"github.com/discourse/ddns-sd/internal/record"
)

// fakeChangeBatchAPI is an in-memory stand-in for ChangeBatchAPI, grounded
// on provider/aws_test.go's Route53APIStub shape (a map of rrsets keyed by
// name+type) but trimmed to what this backend's tests exercise.
type fakeChangeBatchAPI struct {
	sets map[string]*route53.ResourceRecordSet
}

func newFake() *fakeChangeBatchAPI {
	return &fakeChangeBatchAPI{sets: map[string]*route53.ResourceRecordSet{}}
}

func fakeKey(name, typ string) string { return name + "|" + typ }

func (f *fakeChangeBatchAPI) ListResourceRecordSets(ctx context.Context, zoneID string) ([]*route53.ResourceRecordSet, error) {
	var out []*route53.ResourceRecordSet
	for _, rr := range f.sets {
		out = append(out, rr)
	}
	return out, nil
}

func (f *fakeChangeBatchAPI) ChangeResourceRecordSets(ctx context.Context, zoneID string, batch *route53.ChangeBatch) error {
	for _, c := range batch.Changes {
		key := fakeKey(aws.StringValue(c.ResourceRecordSet.Name), aws.StringValue(c.ResourceRecordSet.Type))
		switch aws.StringValue(c.Action) {
		case route53.ChangeActionDelete:
			delete(f.sets, key)
		default:
			f.sets[key] = c.ResourceRecordSet
		}
	}
	return nil
}

func TestPublishIdempotent(t *testing.T) {
	api := newFake()
	b := New(api, "Z1")
	ctx := context.Background()
	r := record.New("c1.example.com.", 60, record.A, record.AData{Addr: "10.0.0.1"})

	require.NoError(t, b.PublishRecord(ctx, r))
	require.NoError(t, b.PublishRecord(ctx, r))

	records, err := b.DNSRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].Equal(r))
}

func TestSuppressIdempotent(t *testing.T) {
	api := newFake()
	b := New(api, "Z1")
	ctx := context.Background()
	r := record.New("c1.example.com.", 60, record.A, record.AData{Addr: "10.0.0.1"})

	require.NoError(t, b.PublishRecord(ctx, r))
	require.NoError(t, b.SuppressRecord(ctx, r))
	require.NoError(t, b.SuppressRecord(ctx, r))

	records, err := b.DNSRecords(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSRVSetSemantics(t *testing.T) {
	api := newFake()
	b := New(api, "Z1")
	ctx := context.Background()

	r1 := record.New("_http._tcp.example.com.", 60, record.SRV, record.SRVData{Port: 80, Target: "c1.example.com"})
	r2 := record.New("_http._tcp.example.com.", 60, record.SRV, record.SRVData{Port: 81, Target: "c2.example.com"})
	txt := record.New("_http._tcp.example.com.", 60, record.TXT, record.TXTData{Attrs: []string{"v=1"}})
	ptr := record.New("_http._tcp.example.com.", 60, record.PTR, record.PTRData{Target: "_http._tcp.example.com"})

	require.NoError(t, b.PublishRecord(ctx, r1))
	require.NoError(t, b.PublishRecord(ctx, r2))
	require.NoError(t, b.PublishRecord(ctx, txt))
	require.NoError(t, b.PublishRecord(ctx, ptr))

	require.NoError(t, b.SuppressRecord(ctx, r1))
	records, err := b.DNSRecords(ctx)
	require.NoError(t, err)
	require.Contains(t, records, r2)

	require.NoError(t, b.SuppressRecord(ctx, r2))
	records, err = b.DNSRecords(ctx)
	require.NoError(t, err)
	for _, r := range records {
		require.NotEqual(t, record.TXT, r.Type, "TXT at the SRV name must be gone once the last SRV is suppressed")
	}
}
