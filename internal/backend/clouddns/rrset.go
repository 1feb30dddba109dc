package clouddns

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/route53"

	"github.com/discourse/ddns-sd/internal/record"
)

// fromResourceRecordSet converts one AWS rrset into our Record model. An
// rrset with N resource records (e.g. an SRV set with several siblings)
// expands into N Records sharing (name, type, ttl).
func fromResourceRecordSet(rrset *route53.ResourceRecordSet) ([]record.Record, error) {
	typ := record.Type(aws.StringValue(rrset.Type))
	name := aws.StringValue(rrset.Name)
	ttl := uint32(aws.Int64Value(rrset.TTL))

	var out []record.Record
	for _, rr := range rrset.ResourceRecords {
		val := aws.StringValue(rr.Value)
		data, err := parseData(typ, val)
		if err != nil {
			return nil, err
		}
		out = append(out, record.New(name, ttl, typ, data))
	}
	return out, nil
}

func parseData(typ record.Type, val string) (record.Data, error) {
	switch typ {
	case record.A:
		return record.AData{Addr: val}, nil
	case record.AAAA:
		return record.AAAAData{Addr: val}, nil
	case record.CNAME:
		return record.CNAMEData{Target: val}, nil
	case record.PTR:
		return record.PTRData{Target: val}, nil
	case record.SRV:
		var prio, weight, port int
		var target string
		if _, err := fmt.Sscanf(val, "%d %d %d %s", &prio, &weight, &port, &target); err != nil {
			return nil, fmt.Errorf("clouddns: malformed SRV value %q: %w", val, err)
		}
		return record.SRVData{Priority: uint16(prio), Weight: uint16(weight), Port: uint16(port), Target: strings.TrimSuffix(target, ".")}, nil
	case record.TXT:
		return record.TXTData{Attrs: splitTXT(val)}, nil
	default:
		return nil, fmt.Errorf("clouddns: unsupported record type %q", typ)
	}
}

func splitTXT(val string) []string {
	var attrs []string
	var cur strings.Builder
	inQuote := false
	for _, r := range val {
		switch {
		case r == '"':
			inQuote = !inQuote
			if !inQuote && cur.Len() > 0 {
				attrs = append(attrs, cur.String())
				cur.Reset()
			}
		case r == ' ' && !inQuote:
			// separator between quoted segments
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		attrs = append(attrs, cur.String())
	}
	return attrs
}

// toResourceRecordSet builds the rrset to push for key, covering the
// current UPSERT-or-DELETE-when-empty rule from spec.md §4.1.1.
func toResourceRecordSet(key record.SetKey, ttl uint32, set []record.Record) (*route53.ResourceRecordSet, string, error) {
	if len(set) == 0 {
		return &route53.ResourceRecordSet{
			Name: aws.String(key.Name),
			Type: aws.String(string(key.Type)),
			TTL:  aws.Int64(int64(ttl)),
		}, route53.ChangeActionDelete, nil
	}
	rrset := &route53.ResourceRecordSet{
		Name: aws.String(key.Name),
		Type: aws.String(string(key.Type)),
		TTL:  aws.Int64(int64(ttl)),
	}
	for _, r := range set {
		rrset.ResourceRecords = append(rrset.ResourceRecords, &route53.ResourceRecord{
			Value: aws.String(r.Value()),
		})
	}
	return rrset, route53.ChangeActionUpsert, nil
}

// upsertInto returns set with r inserted: for upsert-single types
// (A/AAAA/CNAME/TXT) the whole set is replaced by r alone; for set types
// (SRV/PTR) r is added alongside its siblings unless its Value is already
// present.
func upsertInto(set []record.Record, r record.Record) []record.Record {
	switch r.Type {
	case record.A, record.AAAA, record.CNAME, record.TXT:
		return []record.Record{r}
	case record.PTR:
		for _, existing := range set {
			if existing.Value() == r.Value() {
				return set
			}
		}
		return append(append([]record.Record{}, set...), r)
	default: // SRV: add preserving siblings
		out := append([]record.Record{}, set...)
		for _, existing := range out {
			if existing.Value() == r.Value() {
				return set
			}
		}
		return append(out, r)
	}
}

// removeFrom returns set with the RR identified by (name, type, value)
// removed.
func removeFrom(set []record.Record, r record.Record) []record.Record {
	var out []record.Record
	for _, existing := range set {
		if existing.Equal(r) {
			continue
		}
		out = append(out, existing)
	}
	return out
}

// serviceNameOf derives the service-level name ("_http._tcp.base.") from
// an SRV record's owning name, which may already be the service name
// (no separate instance label in this daemon's SRV naming, per spec.md's
// S1 example: `SRV _http._tcp.base ...`). Kept as a seam in case a future
// instance-qualified SRV naming scheme is introduced.
func serviceNameOf(srvName string) (string, bool) {
	return srvName, true
}
