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

// Package metrics exposes this daemon's Prometheus gauges and counters,
// trimmed from pkg/metrics/metrics.go's MetricRegistry/IMetric wrapper
// down to the handful this daemon's operations actually emit.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Registry holds every metric this daemon updates, constructed once at
// startup and threaded explicitly into the daemon and the Docker watcher rather than
// read off a package-level global (spec.md §9 "Global connection
// singletons" applies equally to metrics state here).
type Registry struct {
	StartTimestamp        prometheus.Gauge
	BackendErrorsTotal    *prometheus.CounterVec
	RecordsTotal          *prometheus.GaugeVec
	ReconcileLastSeconds  prometheus.Gauge
	DockerRequestDuration *prometheus.SummaryVec
}

// New registers and returns a fresh Registry. gitRevision labels the
// start-timestamp gauge, matching spec.md §6's "DDNSSD_GIT_REVISION...
// passed through to the metrics gauge label."
func New(gitRevision string) *Registry {
	r := &Registry{
		StartTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ddnssd",
			Name:        "start_timestamp",
			Help:        "Unix timestamp of daemon start, labeled by git revision.",
			ConstLabels: prometheus.Labels{"git_revision": gitRevision},
		}),
		BackendErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ddnssd",
			Name:      "backend_errors_total",
			Help:      "Count of backend operation errors, by backend and error class.",
		}, []string{"backend", "class"}),
		RecordsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ddnssd",
			Name:      "records_total",
			Help:      "Count of DNS records currently tracked, by backend and type.",
		}, []string{"backend", "type"}),
		ReconcileLastSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ddnssd",
			Name:      "reconcile_last_timestamp_seconds",
			Help:      "Unix timestamp of the last completed reconciliation pass.",
		}),
		DockerRequestDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  "ddnssd",
			Subsystem:  "docker",
			Name:       "request_duration_seconds",
			Help:       "Docker Engine API request latency, by method and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"method", "status"}),
	}
	prometheus.MustRegister(r.StartTimestamp, r.BackendErrorsTotal, r.RecordsTotal, r.ReconcileLastSeconds, r.DockerRequestDuration)
	r.StartTimestamp.SetToCurrentTime()
	return r
}

// Serve starts the metrics HTTP endpoint in the background, matching the
// teacher's `go serveMetrics(cfg.MetricsAddress)` call shape in
// cmd/external-dns/main.go. Intended to be invoked in its own goroutine by
// the caller.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithField("address", addr).Info("metrics: serving Prometheus endpoint")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics: server exited")
	}
}
