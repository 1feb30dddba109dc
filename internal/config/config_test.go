package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBindsFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"--base-domain=example.com",
		"--hostname=host1.example.com",
		"--backend=cloud-dns",
		"--clouddns-zone-id=Z123",
	})
	require.NoError(t, err)
	require.Equal(t, "example.com", cfg.BaseDomain)
	require.Equal(t, []string{"cloud-dns"}, cfg.Backends)
	require.Equal(t, "Z123", cfg.CloudDNSZoneID)
	require.Equal(t, "us-east-1", cfg.CloudDNSRegion, "default region applies when unset")
}

func TestParseRejectsMissingRequiredFlags(t *testing.T) {
	_, err := Parse([]string{"--hostname=host1.example.com"})
	require.Error(t, err)
}

func TestHostRecordRequiresBothNameAndAddr(t *testing.T) {
	cfg := &Config{HostRecordName: "host1.example.com"}
	_, ok := cfg.HostRecord()
	require.False(t, ok)

	cfg.HostRecordAddr = "10.0.0.254"
	r, ok := cfg.HostRecord()
	require.True(t, ok)
	require.Equal(t, "host1.example.com", r.Name)
}

func TestBackendConfigNarrowsToNamedBackend(t *testing.T) {
	cfg := &Config{CloudDNSZoneID: "Z1", SQLDNSDSN: "postgres://x", BaseDomain: "example.com"}
	require.Equal(t, map[string]string{"zone_id": "Z1", "region": ""}, cfg.BackendConfig("cloud-dns"))
	require.Equal(t, map[string]string{"dsn": "postgres://x", "base_domain": "example.com"}, cfg.BackendConfig("sql-dns"))
	require.Nil(t, cfg.BackendConfig("unknown"))
}
