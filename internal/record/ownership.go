package record

import "strings"

// Owned reports whether r would be claimed for deletion by a daemon whose
// own FQDN is hostname: A/AAAA records owned when their Name ends in
// hostname, SRV records owned when their Target ends in hostname. PTR, TXT
// and CNAME are never owned (they're shared — see Type.Shared).
//
// This replaces dynamic dispatch on concrete record classes with a single
// type-tag switch, per the teacher's §9 design note on "dynamic dispatch on
// runtime record classes".
func Owned(r Record, hostname string) bool {
	suffix := strings.ToLower(strings.TrimSuffix(hostname, ".")) + "."
	switch r.Type {
	case A, AAAA:
		return hasSuffix(r.Name, suffix)
	case SRV:
		d, ok := r.Data.(SRVData)
		if !ok {
			return false
		}
		return hasSuffix(d.Target, suffix)
	default:
		return false
	}
}

func hasSuffix(name, suffix string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, ".")) + "."
	return strings.HasSuffix(name, suffix)
}
