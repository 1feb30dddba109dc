/*
Copyright 2025 The Kubernetes Authors.

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

// Package dockerwatch is the one runtime-specific source in this daemon
// (spec.md §1 "out-of-core, one runtime shipped: docker"). It turns the
// Docker Engine event stream into daemon.Message values pushed onto a
// daemon.System's Queue, and implements the daemon.MetadataLookup and
// daemon.Lister functions the event loop uses to hydrate container state.
//
// No package in the retrieval pack talks to the Docker Engine API directly;
// this is grounded on the *shape* of source.Source (a runtime-specific
// adapter translating native events into the controller's domain types)
// generalized from "poll Endpoints() on a ticker" to "range over a Docker
// events channel and push tagged messages," the same generalization
// daemon.System applies to controller.Controller.Run.
package dockerwatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	log "github.com/sirupsen/logrus"

	ddnscontainer "github.com/discourse/ddns-sd/internal/container"
	"github.com/discourse/ddns-sd/internal/daemon"
	"github.com/discourse/ddns-sd/internal/metrics"
)

// Label keys read off a container's spec to derive its DNS-SD metadata.
// A container with no Name label is not published.
const (
	LabelName    = "ddns-sd.name"
	LabelService = "ddns-sd.service"
	LabelPort    = "ddns-sd.port"
	LabelTXT     = "ddns-sd.txt" // comma-separated
	LabelTTL     = "ddns-sd.ttl"

	defaultTTL = uint32(60)
)

// Watcher watches the Docker Engine event stream and feeds a daemon.System.
type Watcher struct {
	cli    *client.Client
	logger *log.Entry
}

// New builds a Watcher against the given Docker host (e.g.
// "unix:///var/run/docker.sock"), spec.md §6 "docker_host". When host uses
// a tcp:// scheme and DOCKER_CERT_FILE/DOCKER_KEY_FILE are set, the
// connection is wrapped in TLS. When reg is non-nil its
// DockerRequestDuration summary records per-request latency.
func New(host string, logger *log.Entry, reg *metrics.Registry) (*Watcher, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	opts := []client.Opt{client.WithHost(host), client.WithAPIVersionNegotiation()}

	tlsConfig, err := tlsConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil || reg != nil {
		transport := http.DefaultTransport
		if tlsConfig != nil {
			transport = &http.Transport{TLSClientConfig: tlsConfig}
			logger.Info("dockerwatch: TLS client certificate configured for docker host")
		}
		httpClient := &http.Client{Transport: transport}
		if reg != nil {
			httpClient.Transport = instrumentedTransport(transport, reg.DockerRequestDuration)
		}
		opts = append(opts, client.WithHTTPClient(httpClient))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("dockerwatch: connect to docker: %w", err)
	}
	return &Watcher{cli: cli, logger: logger}, nil
}

// Lookup implements daemon.MetadataLookup: inspect the container, derive its
// DNS-SD metadata from labels, drop (ok=false) if absent or unlabeled.
func (w *Watcher) Lookup(ctx context.Context, id string) (ddnscontainer.Metadata, bool) {
	inspect, err := w.cli.ContainerInspect(ctx, id)
	if err != nil {
		w.logger.WithError(err).WithField("container", id).Debug("dockerwatch: inspect failed, treating as absent")
		return ddnscontainer.Metadata{}, false
	}
	return metadataFromLabels(id, inspect.Config.Labels, networkAddrs(inspect))
}

// List implements daemon.Lister: every running container ID, regardless of
// whether it carries DNS-SD labels (Lookup reports unlabeled ones as absent,
// so reconciliation's map rebuild never tracks them).
func (w *Watcher) List(ctx context.Context) []string {
	containers, err := w.cli.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		w.logger.WithError(err).Warn("dockerwatch: list failed, reconcile_all will see a stale container set this pass")
		return nil
	}
	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID)
	}
	return ids
}

// Run subscribes to the Docker event stream and pushes translated messages
// onto queue until ctx is cancelled. Blocking; run it in its own goroutine.
func (w *Watcher) Run(ctx context.Context, queue chan<- daemon.Message) error {
	f := filters.NewArgs(
		filters.Arg("type", string(events.ContainerEventType)),
		filters.Arg("event", "start"),
		filters.Arg("event", "die"),
		filters.Arg("event", "stop"),
		filters.Arg("event", "destroy"),
	)
	msgs, errs := w.cli.Events(ctx, types.EventsOptions{Filters: f})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			if err != nil {
				return fmt.Errorf("dockerwatch: event stream: %w", err)
			}
		case m := <-msgs:
			if tagged, ok := translate(m); ok {
				queue <- tagged
			}
		}
	}
}

func translate(m events.Message) (daemon.Message, bool) {
	switch m.Action {
	case "start":
		return daemon.Message{Tag: daemon.Started, ID: m.Actor.ID}, true
	case "stop":
		return daemon.Message{Tag: daemon.Stopped, ID: m.Actor.ID}, true
	case "die":
		code, _ := strconv.Atoi(m.Actor.Attributes["exitCode"])
		return daemon.Message{Tag: daemon.Died, ID: m.Actor.ID, ExitCode: code}, true
	case "destroy":
		return daemon.Message{Tag: daemon.Removed, ID: m.Actor.ID}, true
	default:
		return daemon.Message{}, false
	}
}

// networkAddrs picks the first IPv4 and IPv6 address across the container's
// attached networks (bridge-mode single-network containers are the common
// case; a container on several networks is published under whichever one
// Docker iterates first).
func networkAddrs(inspect types.ContainerJSON) (addr, addrV6 string) {
	if inspect.NetworkSettings == nil {
		return "", ""
	}
	for _, net := range inspect.NetworkSettings.Networks {
		if addr == "" && net.IPAddress != "" {
			addr = net.IPAddress
		}
		if addrV6 == "" && net.GlobalIPv6Address != "" {
			addrV6 = net.GlobalIPv6Address
		}
	}
	return addr, addrV6
}

func metadataFromLabels(id string, labels map[string]string, addr, addrV6 string) (ddnscontainer.Metadata, bool) {
	name := labels[LabelName]
	if name == "" {
		return ddnscontainer.Metadata{}, false
	}
	ttl := defaultTTL
	if v, ok := labels[LabelTTL]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = uint32(n)
		}
	}
	var port uint16
	if v, ok := labels[LabelPort]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			port = uint16(n)
		}
	}
	var txt []string
	if v, ok := labels[LabelTXT]; ok && v != "" {
		for _, s := range strings.Split(v, ",") {
			txt = append(txt, strings.TrimSpace(s))
		}
	}
	return ddnscontainer.Metadata{
		Name:    name,
		Addr:    addr,
		AddrV6:  addrV6,
		Service: labels[LabelService],
		Port:    port,
		TXT:     txt,
		TTL:     ttl,
	}, true
}
