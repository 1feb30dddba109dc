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

// Package backend defines the contract every DNS backend implements, plus
// its error taxonomy. Grounded on provider.Provider (the teacher's
// equivalent abstraction) and controller.go's errors.Is(err,
// provider.SoftError) pattern, generalized into named sentinel classes.
package backend

import (
	"context"

	"github.com/discourse/ddns-sd/internal/record"
)

// Backend is the contract every DNS backend implements. DNSRecords returns
// the current, unfiltered snapshot of the zone; Publish/Suppress mutate
// individual records with the set semantics spec.md §4.1 describes per
// type; SuppressSharedRecords removes the zone-wide enumeration PTR/TXT
// records this daemon would have created, called only at graceful total
// shutdown; Rest is an advisory hook invoked whenever the event queue
// drains.
type Backend interface {
	Name() string
	DNSRecords(ctx context.Context) ([]record.Record, error)
	PublishRecord(ctx context.Context, r record.Record) error
	SuppressRecord(ctx context.Context, r record.Record) error
	SuppressSharedRecords(ctx context.Context) error
	Rest(ctx context.Context)
}

// Constructor builds a Backend from a generic string-keyed configuration
// map. Backend packages register a Constructor in the registry (see
// registry.go) rather than being referenced by concrete type, matching the
// teacher's §9 "backend plugin discovery" design note.
type Constructor func(cfg map[string]string) (Backend, error)
