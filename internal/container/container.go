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

// Package container holds the per-container tracked state: a snapshot of
// runtime metadata and the lazily-derived, stable DNS record set for that
// container's lifetime. Grounded on the teacher's source packages (e.g.
// source/service.go), which likewise derive endpoints from a narrow runtime
// object snapshot rather than a live handle back into the controller.
package container

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/discourse/ddns-sd/internal/backend"
	"github.com/discourse/ddns-sd/internal/record"
)

// HostCapability is the narrow capability object passed to every Container
// instead of a back-pointer to the daemon (spec.md §9 "Cyclic
// back-reference" design note).
type HostCapability struct {
	FQDN       string
	BaseDomain string
	Logger     *log.Entry
}

// Metadata is the runtime-provided snapshot a Container derives its DNS
// records from. Its fields are deliberately minimal: the core trusts
// already-derived inputs (spec.md §1 "DNS-record-derivation rules from
// container metadata/labels are assumed") and only needs enough here to
// produce the six wire RR types.
type Metadata struct {
	Name    string // container/instance short name, e.g. "c1"
	Addr    string // IPv4 address, empty if none
	AddrV6  string // IPv6 address, empty if none
	Service string // DNS-SD service label, e.g. "_http._tcp"
	Port    uint16
	TXT     []string
	TTL     uint32
}

// Container is mutable tracked state keyed by runtime ID.
type Container struct {
	ID      string
	Meta    Metadata
	Stopped bool
	Crashed bool

	hostCap HostCapability

	mu      sync.Mutex
	records []record.Record
}

// New constructs a Container. The derived record set is computed lazily on
// first DNSRecords() call and then cached for the container's lifetime, per
// spec.md §3.
func New(id string, meta Metadata, hostCap HostCapability) *Container {
	return &Container{ID: id, Meta: meta, hostCap: hostCap}
}

// DNSRecords returns the stable, derived record set for this container.
func (c *Container) DNSRecords() []record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records == nil {
		c.records = deriveRecords(c.Meta, c.hostCap)
	}
	return c.records
}

func deriveRecords(m Metadata, hostCap HostCapability) []record.Record {
	ttl := m.TTL
	if ttl == 0 {
		ttl = 60
	}
	// Instance names nest under this host's own FQDN (so the ownership
	// suffix test in record.Owned matches), e.g. "c1.host1.example.com"
	// for a container on host "host1.example.com".
	instance := fmt.Sprintf("%s.%s", m.Name, strings.TrimSuffix(hostCap.FQDN, "."))
	var out []record.Record
	if m.Addr != "" {
		out = append(out, record.New(instance, ttl, record.A, record.AData{Addr: m.Addr}))
	}
	if m.AddrV6 != "" {
		out = append(out, record.New(instance, ttl, record.AAAA, record.AAAAData{Addr: m.AddrV6}))
	}
	if m.Service == "" {
		return out
	}
	service := fmt.Sprintf("%s.%s", m.Service, hostCap.BaseDomain)
	out = append(out, record.New(service, ttl, record.SRV, record.SRVData{
		Priority: 0,
		Weight:   0,
		Port:     m.Port,
		Target:   instance,
	}))
	out = append(out, record.New(service, ttl, record.TXT, record.TXTData{Attrs: m.TXT}))
	out = append(out, record.New(service, ttl, record.PTR, record.PTRData{Target: service}))
	return out
}

// PublishRecords publishes every derived record to b, logging and
// continuing past per-record failures so one bad record does not block the
// rest (spec.md §4.4).
func (c *Container) PublishRecords(ctx context.Context, b backend.Backend) error {
	var firstErr error
	for _, r := range c.DNSRecords() {
		if err := b.PublishRecord(ctx, r); err != nil {
			hostCap := c.hostCap.Logger
			if hostCap == nil {
				hostCap = log.NewEntry(log.StandardLogger())
			}
			hostCap.WithError(err).WithField("container", c.ID).WithField("record", r.String()).
				Warn("container: publish_record failed, will retry next reconciliation")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SuppressRecords suppresses every derived record on b, same failure policy
// as PublishRecords.
func (c *Container) SuppressRecords(ctx context.Context, b backend.Backend) error {
	var firstErr error
	for _, r := range c.DNSRecords() {
		if err := b.SuppressRecord(ctx, r); err != nil {
			hostCap := c.hostCap.Logger
			if hostCap == nil {
				hostCap = log.NewEntry(log.StandardLogger())
			}
			hostCap.WithError(err).WithField("container", c.ID).WithField("record", r.String()).
				Warn("container: suppress_record failed, will retry next reconciliation")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
