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

package dockerwatch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// instrumentedRoundTripper records Docker Engine API request latency,
// adapted from pkg/http/http.go's CustomRoundTripper. The teacher registers
// its SummaryVec as a package-level global in an init() func; here the
// metric is passed in explicitly (spec.md §9 "Global connection
// singletons" design note, applied the same way internal/metrics.Registry
// is threaded through rather than read off a package global) and is nil
// whenever metrics are disabled.
type instrumentedRoundTripper struct {
	next   http.RoundTripper
	metric *prometheus.SummaryVec
}

func instrumentedTransport(next http.RoundTripper, metric *prometheus.SummaryVec) http.RoundTripper {
	if metric == nil {
		return next
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumentedRoundTripper{next: next, metric: metric}
}

func (r *instrumentedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := r.next.RoundTrip(req)
	status := ""
	if resp != nil {
		status = fmt.Sprintf("%d", resp.StatusCode)
	}
	r.metric.WithLabelValues(req.Method, status).Observe(time.Since(start).Seconds())
	return resp, err
}
