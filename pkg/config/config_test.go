package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seera-networks/yakserv/pkg/config"
)

func TestLoadServerConfig_Defaults(t *testing.T) {
	t.Setenv("YAK_LISTEN_ADDR", "")
	t.Setenv("YAK_STORAGE_DB", "")
	t.Setenv("YAK_POLICY_DB", "")
	t.Setenv("YAK_USE_TEST_CHALLENGE", "")
	t.Setenv("YAK_PROC_TYPE", "")

	cfg := config.LoadServerConfig()

	assert.Equal(t, ":8815", cfg.ListenAddr)
	assert.Equal(t, "storage.db", cfg.StorageDBPath)
	assert.Equal(t, "policy.db", cfg.PolicyDBPath)
	assert.Equal(t, "milan", cfg.ProcType)
	assert.False(t, cfg.UseTestChallenge)
	assert.False(t, cfg.NoTLS)
	assert.Empty(t, cfg.AuthorizedSubject)
	assert.Empty(t, cfg.CSVFile)
	assert.Empty(t, cfg.ServerLD)
}

func TestLoadServerConfig_Overrides(t *testing.T) {
	t.Setenv("YAK_LISTEN_ADDR", ":9000")
	t.Setenv("YAK_USE_TEST_CHALLENGE", "true")
	t.Setenv("YAK_PROC_TYPE", "genoa")
	t.Setenv("YAK_NO_TLS", "true")
	t.Setenv("YAK_AUTHORIZED_SUBJECT", "alice")
	t.Setenv("YAK_CSV_FILE", "/data/sample.csv")
	t.Setenv("YAK_SERVER_LD", "c2hvcnQ=")

	cfg := config.LoadServerConfig()

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.True(t, cfg.UseTestChallenge)
	assert.Equal(t, "genoa", cfg.ProcType)
	assert.True(t, cfg.NoTLS)
	assert.Equal(t, "alice", cfg.AuthorizedSubject)
	assert.Equal(t, "/data/sample.csv", cfg.CSVFile)
	assert.Equal(t, "c2hvcnQ=", cfg.ServerLD)
}

func TestLoadBridgeConfig_Defaults(t *testing.T) {
	t.Setenv("YAK_BRIDGE_LISTEN_ADDR", "")
	t.Setenv("YAK_FLIGHT_ADDR", "")
	t.Setenv("YAK_BRIDGE_USE_TLS", "")

	cfg := config.LoadBridgeConfig()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "localhost:8815", cfg.FlightAddr)
	assert.False(t, cfg.UseTLS)
}

func TestLoadBridgeConfig_Overrides(t *testing.T) {
	t.Setenv("YAK_BRIDGE_LISTEN_ADDR", ":9090")
	t.Setenv("YAK_FLIGHT_ADDR", "gateway.internal:8815")
	t.Setenv("YAK_BRIDGE_USE_TLS", "true")

	cfg := config.LoadBridgeConfig()

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "gateway.internal:8815", cfg.FlightAddr)
	assert.True(t, cfg.UseTLS)
}
