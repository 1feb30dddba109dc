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

// Package testutils holds small test helpers shared across package-level
// _test.go files: a logrus output capture and a Prometheus GaugeVec assertion.
package testutils

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
)

// LogsToBuffer redirects logrus output to a buffer for the duration of t,
// restoring the previous output and level on cleanup. Narrowed from the
// teacher's helper of the same name, which also redirected k8s.io/klog
// output — dropped here since nothing in this daemon's tree uses klog.
//
// Usage:
//
//	buf := LogsToBuffer(log.DebugLevel, t)
//	... do something that logs ...
//	assert.Contains(t, buf.String(), "expected debug log message")
func LogsToBuffer(level log.Level, t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	prevOut := log.StandardLogger().Out
	prevLevel := log.GetLevel()
	log.SetOutput(buf)
	log.SetLevel(level)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetLevel(prevLevel)
	})
	return buf
}
