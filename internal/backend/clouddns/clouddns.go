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

// Package clouddns implements the backend.Backend contract over a
// change-batch cloud DNS API (AWS Route 53 shaped), grounded on
// provider/aws.go's submitChanges/newChanges/changesByZone pattern:
// per (name, type) rrset, compute the target record set and emit exactly
// one UPSERT (or DELETE when the target set becomes empty), because the
// API forbids conflicting operations within one batch.
package clouddns

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/discourse/ddns-sd/internal/backend"
	"github.com/discourse/ddns-sd/internal/record"
)

// ChangeBatchAPI is the subset of the change-batch client this backend
// needs. Production code plugs in route53Client (client.go), an adapter
// over route53iface.Route53API; tests
// substitute a stub the same way provider/aws_test.go's Route53APIStub
// does.
type ChangeBatchAPI interface {
	ListResourceRecordSets(ctx context.Context, zoneID string) ([]*route53.ResourceRecordSet, error)
	ChangeResourceRecordSets(ctx context.Context, zoneID string, batch *route53.ChangeBatch) error
}

const maxRetries = 5

// Backend implements backend.Backend over a ChangeBatchAPI.
type Backend struct {
	client ChangeBatchAPI
	zoneID string

	// cache mirrors the zone's rrset view, keyed by (name, type). When a
	// change to an rrset is accepted, its entry is overwritten with the set
	// just written (write-through); it is not dropped, so later reads of
	// that rrset do not refetch it. The whole cache is dropped only on
	// CONFLICT.
	cache map[record.SetKey][]record.Record
}

// New constructs a clouddns Backend. Exported for direct use in tests and
// by the registry constructor registered in init().
func New(client ChangeBatchAPI, zoneID string) *Backend {
	return &Backend{client: client, zoneID: zoneID, cache: map[record.SetKey][]record.Record{}}
}

func (b *Backend) Name() string { return "cloud-dns" }

// DNSRecords returns every RR currently in the zone, uncached (a fresh
// listing), matching the "no filtering by ownership" contract requirement.
func (b *Backend) DNSRecords(ctx context.Context) ([]record.Record, error) {
	raw, err := b.client.ListResourceRecordSets(ctx, b.zoneID)
	if err != nil {
		return nil, classify(err)
	}
	var out []record.Record
	for _, rrset := range raw {
		recs, err := fromResourceRecordSet(rrset)
		if err != nil {
			log.WithError(err).WithField("name", aws.StringValue(rrset.Name)).Debug("skipping unsupported rrset")
			continue
		}
		out = append(out, recs...)
	}
	return out, nil
}

// PublishRecord ensures r is present, per the per-type set semantics of
// spec.md §4.1.
func (b *Backend) PublishRecord(ctx context.Context, r record.Record) error {
	return b.retry(ctx, func() error {
		set, err := b.rrset(ctx, r.SetKey())
		if err != nil {
			return err
		}
		merged := upsertInto(set, r)
		return b.pushRRSet(ctx, r.SetKey(), r.TTL, merged)
	})
}

// SuppressRecord removes exactly the RR identified by (name, type, value).
// For SRV it also removes the sibling TXT at the same name once no SRV
// remain, and removes the matching PTR entry from the parent's PTR set.
func (b *Backend) SuppressRecord(ctx context.Context, r record.Record) error {
	return b.retry(ctx, func() error {
		set, err := b.rrset(ctx, r.SetKey())
		if err != nil {
			return err
		}
		remaining := removeFrom(set, r)
		if err := b.pushRRSet(ctx, r.SetKey(), r.TTL, remaining); err != nil {
			return err
		}
		if r.Type == record.SRV && len(remaining) == 0 {
			if err := b.suppressTXTAt(ctx, r.Name); err != nil {
				return err
			}
			if err := b.suppressPTREntry(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) suppressTXTAt(ctx context.Context, name string) error {
	key := record.SetKey{Name: name, Type: record.TXT}
	return b.pushRRSet(ctx, key, 0, nil)
}

// suppressPTREntry removes the PTR entry pointing at r.Name from the
// service-level PTR record. The service-level name comes from
// serviceNameOf, which returns the SRV's own name unchanged (SRV records
// here are named at the service level, with no instance label).
func (b *Backend) suppressPTREntry(ctx context.Context, r record.Record) error {
	svc, ok := serviceNameOf(r.Name)
	if !ok {
		return nil
	}
	key := record.SetKey{Name: svc, Type: record.PTR}
	set, err := b.rrset(ctx, key)
	if err != nil {
		return err
	}
	target := record.New(r.Name, r.TTL, record.PTR, record.PTRData{Target: r.Name})
	remaining := removeFrom(set, target)
	return b.pushRRSet(ctx, key, r.TTL, remaining)
}

// SuppressSharedRecords deletes the PTR/TXT records this daemon would have
// created at the zone-wide enumeration names. Called only on graceful
// total shutdown; it does not attempt to enumerate every service, only
// clears the cached rrsets this process touched this run.
func (b *Backend) SuppressSharedRecords(ctx context.Context) error {
	var firstErr error
	for key := range b.cache {
		if key.Type != record.PTR && key.Type != record.TXT {
			continue
		}
		if err := b.pushRRSet(ctx, key, 0, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Rest flushes no pending batches (each publish/suppress here is already
// submitted synchronously) but is kept as the advisory hook the contract
// requires.
func (b *Backend) Rest(ctx context.Context) {}

func (b *Backend) rrset(ctx context.Context, key record.SetKey) ([]record.Record, error) {
	if cached, ok := b.cache[key]; ok {
		return cached, nil
	}
	all, err := b.DNSRecords(ctx)
	if err != nil {
		return nil, err
	}
	var set []record.Record
	for _, r := range all {
		if r.SetKey() == key {
			set = append(set, r)
		}
	}
	b.cache[key] = set
	return set, nil
}

func (b *Backend) pushRRSet(ctx context.Context, key record.SetKey, ttl uint32, set []record.Record) error {
	rrset, action, err := toResourceRecordSet(key, ttl, set)
	if err != nil {
		return err
	}
	change := &route53.Change{
		Action:            aws.String(action),
		ResourceRecordSet: rrset,
	}
	if err := b.client.ChangeResourceRecordSets(ctx, b.zoneID, &route53.ChangeBatch{
		Changes: []*route53.Change{change},
	}); err != nil {
		return classify(err)
	}
	delete(b.cache, key) // every accepted change replaces its (name,type) entry with the written set
	b.cache[key] = set
	return nil
}

// retry applies the bounded exponential-backoff budget spec.md §4.1.1
// requires: on ErrConflict, refetch and retry; on ErrTransient, backoff and
// retry; both bounded by maxRetries. Grounded on provider/aws.go's manual
// batchChangeInterval pacing, generalized via cenkalti/backoff.
func (b *Backend) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	var attempt int
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		switch {
		case errors.Is(err, backend.ErrConflict):
			log.WithField("attempt", attempt).Warn("cloud-dns: conflict, re-reading rrset and retrying")
			b.cache = map[record.SetKey][]record.Record{}
			return err
		case errors.Is(err, backend.ErrTransient):
			log.WithField("attempt", attempt).Warn("cloud-dns: transient error, retrying")
			return err
		case errors.Is(err, backend.ErrInvariantViolation):
			log.WithError(err).Warn("cloud-dns: invariant violation, dropping operation")
			return backoff.Permanent(nil)
		default:
			return backoff.Permanent(err)
		}
	}, policy)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case route53.ErrCodeInvalidChangeBatch:
			return fmt.Errorf("%w: %v", backend.ErrConflict, err)
		case route53.ErrCodeNoSuchHostedZone:
			return fmt.Errorf("%w: %v", backend.ErrInvariantViolation, err)
		case route53.ErrCodeThrottlingException, "RequestLimitExceeded":
			return fmt.Errorf("%w: %v", backend.ErrTransient, err)
		}
	}
	return fmt.Errorf("%w: %v", backend.ErrTransient, err)
}
