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

// Package daemon implements the single-consumer event loop (spec.md §4.2):
// a buffered channel of tagged messages mutating the container map and
// driving backend mutations. Grounded on controller/controller.go's
// Controller.Run/RunOnce ticker-driven loop, generalized here from
// "tick, then RunOnce" to "receive one message, process it to completion,
// call Rest() on backends once the channel drains."
package daemon

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/discourse/ddns-sd/internal/backend"
	"github.com/discourse/ddns-sd/internal/container"
	"github.com/discourse/ddns-sd/internal/metrics"
	"github.com/discourse/ddns-sd/internal/reconciler"
	"github.com/discourse/ddns-sd/internal/record"
)

// MessageTag identifies the kind of tagged message on the event queue,
// spec.md §4.2.
type MessageTag int

const (
	Started MessageTag = iota
	Stopped
	Died
	Removed
	ReconcileAll
	SuppressAll
	Terminate
)

// Message is one entry on the event queue.
type Message struct {
	Tag      MessageTag
	ID       string
	ExitCode int
}

// MetadataLookup fetches runtime metadata for id, returning ok=false if the
// container is no longer present (spec.md §4.2 "started(id): fetch
// container metadata; if absent → warn & drop").
type MetadataLookup func(ctx context.Context, id string) (container.Metadata, bool)

// Lister enumerates every live container ID for reconciliation's rebuild
// step (spec.md §4.3 step 1).
type Lister func(ctx context.Context) []string

// System owns the container map and the single goroutine that drains
// messages from Queue. Grounded on controller.Controller, generalized from
// a polling ticker to an explicit message channel (spec.md §9 "Coroutine-
// ish event loop": single-consumer, no fan-out across workers).
type System struct {
	Queue chan Message

	backends []backend.Backend
	hostCap  container.HostCapability
	lookup   MetadataLookup
	list     Lister
	hostRec  *record.Record
	metrics  *metrics.Registry
	logger   *log.Entry

	containers map[string]*container.Container
}

// New constructs a System. backends must be non-empty (spec.md §6
// "backend_classes — ordered non-empty list of backend constructors").
func New(backends []backend.Backend, hostCap container.HostCapability, lookup MetadataLookup, list Lister, hostRec *record.Record, m *metrics.Registry) *System {
	logger := hostCap.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &System{
		Queue:      make(chan Message, 256),
		backends:   backends,
		hostCap:    hostCap,
		lookup:     lookup,
		list:       list,
		hostRec:    hostRec,
		metrics:    m,
		logger:     logger,
		containers: map[string]*container.Container{},
	}
}

// Run drains the queue until a Terminate message, processing each message
// to completion before the next is taken (spec.md §5 "a message is
// processed to completion before the next is taken"). When the queue is
// empty it calls Rest() on every backend before blocking again.
func (s *System) Run(ctx context.Context) error {
	for {
		msg, ok := s.next(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := s.dispatch(ctx, msg); err != nil {
			return err
		}
		if msg.Tag == Terminate {
			return nil
		}
	}
}

// next pops the next message, calling Rest() on every backend first if the
// queue was empty (spec.md §4.2: "when the queue is empty, the loop calls
// rest() on each backend before blocking on the next message").
func (s *System) next(ctx context.Context) (Message, bool) {
	select {
	case msg, ok := <-s.Queue:
		return msg, ok
	default:
	}
	for _, b := range s.backends {
		b.Rest(ctx)
	}
	select {
	case msg, ok := <-s.Queue:
		return msg, ok
	case <-ctx.Done():
		return Message{}, false
	}
}

func (s *System) dispatch(ctx context.Context, msg Message) error {
	switch msg.Tag {
	case Started:
		return s.handleStarted(ctx, msg.ID)
	case Stopped:
		s.handleStopped(msg.ID)
		return nil
	case Died:
		return s.handleDied(ctx, msg.ID, msg.ExitCode)
	case Removed:
		return s.handleRemoved(ctx, msg.ID)
	case ReconcileAll:
		return s.handleReconcileAll(ctx)
	case SuppressAll:
		return s.handleSuppressAll(ctx)
	case Terminate:
		return nil
	default:
		s.logger.WithField("tag", msg.Tag).Error("daemon: unknown message tag, please report this as a bug")
		return nil
	}
}

func (s *System) handleStarted(ctx context.Context, id string) error {
	meta, ok := s.lookup(ctx, id)
	if !ok {
		s.logger.WithField("container", id).Warn("daemon: started for unknown container, dropping")
		return nil
	}
	if prev, tracked := s.containers[id]; tracked && prev.Crashed {
		for _, b := range s.backends {
			if err := prev.SuppressRecords(ctx, b); err != nil && isFatal(err) {
				return err
			}
		}
	}
	c := container.New(id, meta, s.hostCap)
	s.containers[id] = c
	for _, b := range s.backends {
		if err := c.PublishRecords(ctx, b); err != nil && isFatal(err) {
			return err
		}
	}
	return nil
}

func (s *System) handleStopped(id string) {
	if c, ok := s.containers[id]; ok {
		c.Stopped = true
	}
}

func (s *System) handleDied(ctx context.Context, id string, exitCode int) error {
	c, ok := s.containers[id]
	if !ok {
		s.logger.WithField("container", id).Warn("daemon: died for untracked container, dropping")
		return nil
	}
	if exitCode == 0 || c.Stopped {
		for _, b := range s.backends {
			if err := c.SuppressRecords(ctx, b); err != nil && isFatal(err) {
				return err
			}
		}
		delete(s.containers, id)
		return nil
	}
	c.Crashed = true
	return nil
}

func (s *System) handleRemoved(ctx context.Context, id string) error {
	c, ok := s.containers[id]
	if !ok {
		s.logger.WithField("container", id).Warn("daemon: removed for untracked container, dropping")
		return nil
	}
	for _, b := range s.backends {
		if err := c.SuppressRecords(ctx, b); err != nil && isFatal(err) {
			return err
		}
	}
	delete(s.containers, id)
	return nil
}

func (s *System) handleReconcileAll(ctx context.Context) error {
	s.rebuildContainerMap(ctx)

	var recs [][]record.Record
	for _, c := range s.containers {
		recs = append(recs, c.DNSRecords())
	}
	desired := reconciler.Desired(recs, s.hostRec)

	for _, b := range s.backends {
		existing, err := b.DNSRecords(ctx)
		if err != nil {
			if isFatal(err) {
				return err
			}
			s.logger.WithError(err).WithField("backend", b.Name()).Warn("daemon: dns_records failed, skipping this backend this pass")
			continue
		}
		plan := reconciler.Calculate(existing, desired, s.hostCap.FQDN)
		if err := reconciler.Apply(ctx, b, plan); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordsTotal.WithLabelValues(b.Name(), "desired").Set(float64(len(desired)))
		}
	}
	if s.metrics != nil {
		s.metrics.ReconcileLastSeconds.SetToCurrentTime()
	}
	return nil
}

// rebuildContainerMap fully re-enumerates live containers from the runtime
// (spec.md §4.3 step 1): containers newly seen since the last pass are
// fetched and added, and any tracked container whose ID is no longer
// reported by list() is pruned so its records fall out of desired on the
// reconcile pass that follows. IDs that vanish between listing and
// fetching are dropped silently rather than added.
func (s *System) rebuildContainerMap(ctx context.Context) {
	if s.list == nil {
		return
	}
	live := map[string]bool{}
	for _, id := range s.list(ctx) {
		live[id] = true
		if _, tracked := s.containers[id]; tracked {
			continue
		}
		meta, ok := s.lookup(ctx, id)
		if !ok {
			continue // vanished between list and fetch; dropped silently
		}
		s.containers[id] = container.New(id, meta, s.hostCap)
	}
	for id := range s.containers {
		if !live[id] {
			delete(s.containers, id)
		}
	}
}

func (s *System) handleSuppressAll(ctx context.Context) error {
	for _, b := range s.backends {
		for _, c := range s.containers {
			if err := c.SuppressRecords(ctx, b); err != nil && isFatal(err) {
				return err
			}
		}
		if err := b.SuppressSharedRecords(ctx); err != nil && isFatal(err) {
			return err
		}
	}
	s.containers = map[string]*container.Container{}
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, backend.ErrFatal)
}
