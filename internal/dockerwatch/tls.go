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
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
)

// tlsConfigFromEnv builds a *tls.Config for a tcp:// Docker host from
// DOCKER_CA_FILE / DOCKER_CERT_FILE / DOCKER_KEY_FILE / DOCKER_TLS_INSECURE,
// adapted from pkg/tlsutils/tlsconfig.go's CreateTLSConfig, narrowed to the
// one caller this daemon has (the Docker Engine client) so the prefix
// argument and general-purpose NewTLSConfig entry point are dropped.
// Returns (nil, nil) when no cert material is configured, meaning "dial
// the host as given, don't wrap the transport."
func tlsConfigFromEnv() (*tls.Config, error) {
	certFile := os.Getenv("DOCKER_CERT_FILE")
	keyFile := os.Getenv("DOCKER_KEY_FILE")
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, errors.New("dockerwatch: both DOCKER_CERT_FILE and DOCKER_KEY_FILE must be set, or neither")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("dockerwatch: loading docker client cert: %w", err)
	}

	var roots *x509.CertPool
	if caFile := os.Getenv("DOCKER_CA_FILE"); caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("dockerwatch: reading docker CA file: %w", err)
		}
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("dockerwatch: no certificates found in %s", caFile)
		}
	}

	insecure := strings.EqualFold(os.Getenv("DOCKER_TLS_INSECURE"), "true")
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		RootCAs:            roots,
		InsecureSkipVerify: insecure,
	}, nil
}
