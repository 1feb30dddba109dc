/*
Copyright 2018 The Kubernetes Authors.

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

// Package reconciler computes the set difference between a backend's live
// view and the daemon's desired record set and drives the backend
// mutations to close the gap. Grounded on plan/plan.go's planTable
// (addCurrent/addCandidate then per-row create/update/delete resolution),
// generalized here from a single current/candidate table to the
// ownership-aware our_live/shared_existing/desired three-way partition.
package reconciler

import (
	"context"
	"errors"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	log "github.com/sirupsen/logrus"

	"github.com/discourse/ddns-sd/internal/backend"
	"github.com/discourse/ddns-sd/internal/record"
)

// Plan is the result of a single reconciliation computation: the records
// to delete (our_live minus desired) and the records to create (desired
// minus our_live minus shared_existing), in that order so a rename lands
// correctly (spec.md §4.3).
type Plan struct {
	ToDelete []record.Record
	ToCreate []record.Record
}

// Calculate partitions existing into our_live/shared_existing by ownership
// and diffs against desired, matching plan/plan.go's Calculate() shape but
// keyed on the simpler ownership test instead of a multi-source candidate
// table.
func Calculate(existing, desired []record.Record, hostname string) Plan {
	ownedKeys := map[record.Key]record.Record{}
	sharedKeys := map[record.Key]record.Record{}
	for _, r := range existing {
		if r.Type.Shared() {
			sharedKeys[r.Key()] = r
			continue
		}
		if record.Owned(r, hostname) {
			ownedKeys[r.Key()] = r
		}
	}

	desiredKeys := map[record.Key]record.Record{}
	for _, r := range desired {
		desiredKeys[r.Key()] = r
	}

	var plan Plan
	for k, r := range ownedKeys {
		if _, ok := desiredKeys[k]; !ok {
			plan.ToDelete = append(plan.ToDelete, r)
		}
	}
	for k, r := range desiredKeys {
		if _, ok := ownedKeys[k]; ok {
			continue
		}
		if _, ok := sharedKeys[k]; ok {
			continue // already present identically as a shared record; don't re-publish (open question (a), kept as specified)
		}
		plan.ToCreate = append(plan.ToCreate, r)
	}
	return plan
}

// HasChanges reports whether the plan requires any backend mutation,
// mirroring plan/plan.go's Changes.HasChanges using go-cmp instead of a
// hand-rolled length check so empty-vs-nil slices compare equal.
func (p Plan) HasChanges() bool {
	return !cmp.Equal(p, Plan{}, cmpopts.EquateEmpty())
}

// Apply executes the plan against b: all deletes first, then all creates,
// per spec.md §4.3's delete-before-create guarantee. A per-record failure
// is logged and the pass continues (the next reconciliation retries); a
// FATAL error aborts the pass and is returned to the caller.
func Apply(ctx context.Context, b backend.Backend, plan Plan) error {
	for _, r := range plan.ToDelete {
		if err := b.SuppressRecord(ctx, r); err != nil {
			if errors.Is(err, backend.ErrFatal) {
				return err
			}
			log.WithError(err).WithField("backend", b.Name()).WithField("record", r.String()).
				Warn("reconciler: suppress_record failed, retrying next pass")
		}
	}
	for _, r := range plan.ToCreate {
		if err := b.PublishRecord(ctx, r); err != nil {
			if errors.Is(err, backend.ErrFatal) {
				return err
			}
			log.WithError(err).WithField("backend", b.Name()).WithField("record", r.String()).
				Warn("reconciler: publish_record failed, retrying next pass")
		}
	}
	return nil
}

// Desired computes the union of every tracked container's derived records
// plus the optional host record, de-duplicated by the record equality
// rule (spec.md §4.3 step 4).
func Desired(containerRecords [][]record.Record, hostRecord *record.Record) []record.Record {
	seen := map[record.Key]record.Record{}
	for _, recs := range containerRecords {
		for _, r := range recs {
			seen[r.Key()] = r
		}
	}
	if hostRecord != nil {
		seen[hostRecord.Key()] = *hostRecord
	}
	out := make([]record.Record, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	return out
}
