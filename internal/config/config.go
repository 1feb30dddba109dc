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

// Package config loads the daemon's external interface (spec.md §6) from
// CLI flags bound to DDNSSD_* environment variables, grounded on
// config/config.go + pkg/apis/externaldns/types.go's flag-driven Config
// struct but switched from the teacher's pflag to
// github.com/alecthomas/kingpin/v2 (the binder the teacher's own
// internal/flags/binders.go targets), so each flag's `.Envar(...)` call
// matches the DDNSSD_ prefix convention directly.
package config

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/discourse/ddns-sd/internal/record"
)

// Config is the parsed external interface spec.md §6 names.
type Config struct {
	BaseDomain     string
	Hostname       string
	Backends       []string
	EnableMetrics  bool
	MetricsAddr    string
	DockerHost     string
	HostRecordName string
	HostRecordAddr string
	GitRevision    string

	CloudDNSZoneID string
	CloudDNSRegion string
	SQLDNSDSN      string
}

// HostRecord builds the optional host record from the parsed flags, or
// returns (zero, false) if none was configured.
func (c Config) HostRecord() (record.Record, bool) {
	if c.HostRecordName == "" || c.HostRecordAddr == "" {
		return record.Record{}, false
	}
	return record.New(c.HostRecordName, 60, record.A, record.AData{Addr: c.HostRecordAddr}), true
}

// BackendConfig narrows Config to the map[string]string shape
// backend.Constructor expects for the named backend, grounded on the
// registry's plugin-discovery model (spec.md §9 "Backend plugin
// discovery").
func (c Config) BackendConfig(name string) map[string]string {
	switch name {
	case "cloud-dns":
		return map[string]string{"zone_id": c.CloudDNSZoneID, "region": c.CloudDNSRegion}
	case "sql-dns":
		return map[string]string{"dsn": c.SQLDNSDSN, "base_domain": c.BaseDomain}
	default:
		return nil
	}
}

// Parse builds the kingpin application, binds every DDNSSD_* flag, and
// parses args (typically os.Args[1:]).
func Parse(args []string) (*Config, error) {
	app := kingpin.New("ddns-sd", "Maintains DNS-SD records for containers running on this host.")
	cfg := &Config{}

	app.Flag("base-domain", "Zone suffix; all emitted names end with it.").
		Envar("DDNSSD_BASE_DOMAIN").Required().StringVar(&cfg.BaseDomain)
	app.Flag("hostname", "Local host FQDN; ownership suffix for A/AAAA/SRV.").
		Envar("DDNSSD_HOSTNAME").Required().StringVar(&cfg.Hostname)
	app.Flag("backend", "Backend to publish to (repeatable): cloud-dns, sql-dns.").
		Envar("DDNSSD_BACKEND").Required().EnumsVar(&cfg.Backends, "cloud-dns", "sql-dns")
	app.Flag("enable-metrics", "Serve Prometheus metrics on :9218.").
		Envar("DDNSSD_ENABLE_METRICS").Default("false").BoolVar(&cfg.EnableMetrics)
	app.Flag("metrics-address", "Address the metrics endpoint listens on.").
		Envar("DDNSSD_METRICS_ADDRESS").Default(":9218").StringVar(&cfg.MetricsAddr)
	app.Flag("docker-host", "Docker runtime endpoint.").
		Envar("DDNSSD_DOCKER_HOST").Default("unix:///var/run/docker.sock").StringVar(&cfg.DockerHost)
	app.Flag("host-record-name", "Optional always-published host A record name.").
		Envar("DDNSSD_HOST_RECORD_NAME").StringVar(&cfg.HostRecordName)
	app.Flag("host-record-addr", "Optional always-published host A record address.").
		Envar("DDNSSD_HOST_RECORD_ADDR").StringVar(&cfg.HostRecordAddr)
	app.Flag("git-revision", "Label applied to the start-timestamp metric.").
		Envar("DDNSSD_GIT_REVISION").Default("unknown").StringVar(&cfg.GitRevision)

	app.Flag("clouddns-zone-id", "Route53-shaped hosted zone ID (cloud-dns backend).").
		Envar("DDNSSD_CLOUDDNS_ZONE_ID").StringVar(&cfg.CloudDNSZoneID)
	app.Flag("clouddns-region", "AWS region for the cloud-dns backend.").
		Envar("DDNSSD_CLOUDDNS_REGION").Default("us-east-1").StringVar(&cfg.CloudDNSRegion)
	app.Flag("sqldns-dsn", "PostgreSQL DSN for the sql-dns backend.").
		Envar("DDNSSD_SQLDNS_DSN").StringVar(&cfg.SQLDNSDSN)

	if _, err := app.Parse(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
