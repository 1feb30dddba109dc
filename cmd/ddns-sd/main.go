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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/discourse/ddns-sd/internal/backend"
	_ "github.com/discourse/ddns-sd/internal/backend/clouddns"
	_ "github.com/discourse/ddns-sd/internal/backend/sqldns"
	"github.com/discourse/ddns-sd/internal/config"
	"github.com/discourse/ddns-sd/internal/container"
	"github.com/discourse/ddns-sd/internal/daemon"
	"github.com/discourse/ddns-sd/internal/dockerwatch"
	"github.com/discourse/ddns-sd/internal/metrics"
	"github.com/discourse/ddns-sd/internal/record"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.NewEntry(log.StandardLogger()).WithField("hostname", cfg.Hostname)
	logger.Logger.SetFormatter(&log.JSONFormatter{})
	logger.Info("starting")

	backends := make([]backend.Backend, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		b, err := backend.Build(name, cfg.BackendConfig(name))
		if err != nil {
			logger.Fatalf("backend %q: %v", name, err)
		}
		backends = append(backends, b)
		logger.WithField("backend", name).Info("backend ready")
	}

	hostCap := container.HostCapability{FQDN: cfg.Hostname, BaseDomain: cfg.BaseDomain, Logger: logger}

	var reg *metrics.Registry
	if cfg.EnableMetrics {
		reg = metrics.New(cfg.GitRevision)
		go metrics.Serve(cfg.MetricsAddr)
		logger.WithField("address", cfg.MetricsAddr).Info("serving metrics")
	}

	watcher, err := dockerwatch.New(cfg.DockerHost, logger, reg)
	if err != nil {
		logger.Fatalf("dockerwatch: %v", err)
	}

	var hostRec *record.Record
	if r, ok := cfg.HostRecord(); ok {
		hostRec = &r
	}

	sys := daemon.New(backends, hostCap, watcher.Lookup, watcher.List, hostRec, reg)

	// watcherCtx only stops the background Docker event-stream goroutine,
	// and is cancelled after sys.Run returns. Signal handling enqueues
	// SuppressAll/Terminate directly onto sys.Queue rather than cancelling
	// a shared context: sys.Run's next() selects between the queue and
	// ctx.Done(), so cancelling a context the loop itself watches could
	// let ctx.Done() win the race and skip the queued graceful-shutdown
	// messages entirely.
	watcherCtx, cancelWatcher := context.WithCancel(context.Background())
	defer cancelWatcher()
	go handleSignals(sys.Queue, logger)

	go func() {
		if err := watcher.Run(watcherCtx, sys.Queue); err != nil && watcherCtx.Err() == nil {
			logger.WithError(err).Fatal("dockerwatch: event stream ended unexpectedly")
		}
	}()

	sys.Queue <- daemon.Message{Tag: daemon.ReconcileAll}

	runErr := sys.Run(context.Background())
	cancelWatcher()
	if runErr != nil && runErr != context.Canceled {
		logger.WithError(runErr).Fatal("daemon: terminated with error")
	}
	logger.Info("stopped")
}

func handleSignals(queue chan<- daemon.Message, logger *log.Entry) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	<-signals
	logger.Info("received shutdown signal, suppressing records and terminating")
	queue <- daemon.Message{Tag: daemon.SuppressAll}
	queue <- daemon.Message{Tag: daemon.Terminate}
}
