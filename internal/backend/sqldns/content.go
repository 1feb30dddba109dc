package sqldns

import (
	"fmt"
	"strings"

	"github.com/discourse/ddns-sd/internal/record"
)

// parseContent parses a stored `content` column back into record.Data,
// mirroring internal/backend/clouddns's parseData but working from a
// plain SQL column value rather than a route53 resource-record value.
func parseContent(typ record.Type, content string) (record.Data, error) {
	switch typ {
	case record.A:
		return record.AData{Addr: content}, nil
	case record.AAAA:
		return record.AAAAData{Addr: content}, nil
	case record.CNAME:
		return record.CNAMEData{Target: content}, nil
	case record.PTR:
		return record.PTRData{Target: content}, nil
	case record.SRV:
		var prio, weight, port int
		var target string
		if _, err := fmt.Sscanf(content, "%d %d %d %s", &prio, &weight, &port, &target); err != nil {
			return nil, fmt.Errorf("sqldns: malformed SRV content %q: %w", content, err)
		}
		return record.SRVData{Priority: uint16(prio), Weight: uint16(weight), Port: uint16(port), Target: target}, nil
	case record.TXT:
		return record.TXTData{Attrs: splitTXT(content)}, nil
	default:
		return nil, fmt.Errorf("sqldns: unsupported record type %q", typ)
	}
}

func splitTXT(content string) []string {
	var attrs []string
	var cur strings.Builder
	inQuote := false
	for _, r := range content {
		switch {
		case r == '"':
			inQuote = !inQuote
			if !inQuote && cur.Len() > 0 {
				attrs = append(attrs, cur.String())
				cur.Reset()
			}
		case r == ' ' && !inQuote:
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		attrs = append(attrs, cur.String())
	}
	return attrs
}
