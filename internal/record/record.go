/*
Copyright 2017 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package record holds the DNS resource-record value type shared by every
// backend: an immutable (name, type, data) tuple whose identity is the
// canonical wire-text rendering of its type-specific payload.
package record

import (
	"fmt"
	"net"
	"strings"
)

// Type is a DNS resource record type recognized by this daemon.
type Type string

const (
	A     Type = "A"
	AAAA  Type = "AAAA"
	SRV   Type = "SRV"
	PTR   Type = "PTR"
	TXT   Type = "TXT"
	CNAME Type = "CNAME"
)

// Shared reports whether records of this type are co-authored by other
// daemons sharing the zone (never deleted by reconciliation) as opposed to
// owned (deletable once this daemon no longer desires them).
func (t Type) Shared() bool {
	switch t {
	case PTR, TXT, CNAME:
		return true
	default:
		return false
	}
}

// Data is the type-specific payload of a Record. Record equality compares
// (Name, Type, Value) rather than Data values themselves (TXTData holds a
// slice and is not comparable with ==).
type Data interface {
	// Value renders the canonical master-file-style wire text for this
	// payload. Record equality and backend "content" columns/fields use
	// this string as identity.
	Value() string
}

// AData is the payload of an A record: an IPv4 address.
type AData struct{ Addr string }

func (d AData) Value() string { return d.Addr }

// AAAAData is the payload of an AAAA record: an IPv6 address.
type AAAAData struct{ Addr string }

func (d AAAAData) Value() string {
	if ip := net.ParseIP(d.Addr); ip != nil && ip.To4() == nil {
		return ip.String()
	}
	return d.Addr
}

// CNAMEData is the payload of a CNAME record: a target name.
type CNAMEData struct{ Target string }

func (d CNAMEData) Value() string { return EnsureTrailingDot(d.Target) }

// PTRData is the payload of a PTR record: a target name.
type PTRData struct{ Target string }

func (d PTRData) Value() string { return EnsureTrailingDot(d.Target) }

// SRVData is the payload of an SRV record. Grounded on srv.Target's
// "priority weight port target." wire layout.
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (d SRVData) Value() string {
	return fmt.Sprintf("%d %d %d %s", d.Priority, d.Weight, d.Port, EnsureTrailingDot(d.Target))
}

// TXTData is the payload of a TXT record: an ordered sequence of
// "key=value" attributes. Order is significant and preserved.
type TXTData struct {
	Attrs []string
}

func (d TXTData) Value() string {
	quoted := make([]string, len(d.Attrs))
	for i, a := range d.Attrs {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return strings.Join(quoted, " ")
}

// Record is an immutable DNS resource record.
type Record struct {
	Name string
	TTL  uint32
	Type Type
	Data Data
}

// New builds a Record, lowercasing Name per spec (names are compared and
// stored case-insensitively).
func New(name string, ttl uint32, typ Type, data Data) Record {
	return Record{
		Name: strings.ToLower(name),
		TTL:  ttl,
		Type: typ,
		Data: data,
	}
}

// Value returns the canonical wire-text identity payload.
func (r Record) Value() string {
	if r.Data == nil {
		return ""
	}
	return r.Data.Value()
}

// Equal implements the spec's equality rule: (name, type, value) tuple
// equality. TTL, casing and a trailing dot on the name are not part of
// identity.
func (r Record) Equal(o Record) bool {
	return identityName(r.Name) == identityName(o.Name) && r.Type == o.Type && r.Value() == o.Value()
}

func identityName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// Key is a comparable identity usable as a map key, matching Equal.
type Key struct {
	Name  string
	Type  Type
	Value string
}

// Key returns r's identity tuple, with Name lowercased and its trailing dot
// removed.
func (r Record) Key() Key {
	return Key{Name: identityName(r.Name), Type: r.Type, Value: r.Value()}
}

// SetKey identifies an rrset at (name, type) — the granularity SRV/PTR/TXT
// publish/suppress operate on before considering individual members.
type SetKey struct {
	Name string
	Type Type
}

func (r Record) SetKey() SetKey {
	return SetKey{Name: strings.ToLower(r.Name), Type: r.Type}
}

// EnsureTrailingDot normalizes a target/name to end in a dot, matching
// master-file convention (spec.md §6).
func EnsureTrailingDot(name string) string {
	if name == "" {
		return name
	}
	return strings.TrimSuffix(name, ".") + "."
}

// String implements fmt.Stringer for logging.
func (r Record) String() string {
	return fmt.Sprintf("%s %d IN %s %s", r.Name, r.TTL, r.Type, r.Value())
}
