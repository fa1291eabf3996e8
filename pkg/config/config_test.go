package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const nodeYAML = `
id: node-a
cluster:
  bind: tcp://127.0.0.1:7100
  state_bind: tcp://127.0.0.1:7101
  seeds: [tcp://127.0.0.1:7200]
rpc:
  bind: tcp://127.0.0.1:7102
http:
  listen: 127.0.0.1:8081
timeouts:
  quorum: 2s
storage:
  dir: /var/lib/filestore
auth:
  secret: 0123456789abcdef0123456789abcdef
`

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDecodeNodeAppliesDefaults(t *testing.T) {
	cfg := &NodeConfig{}
	require.NoError(t, Decode(strings.NewReader(nodeYAML), cfg))
	cfg.ApplyEnv(noEnv)
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "node-a", cfg.ID)
	assert.Equal(t, DefaultClusterGroup, cfg.Cluster.Name)
	assert.Equal(t, DefaultRPCGroup, cfg.RPC.Name)
	assert.Equal(t, "nng", cfg.Cluster.Transport)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Quorum)
	assert.Equal(t, DefaultLockTimeout, cfg.Timeouts.Lock)
	assert.Equal(t, DefaultTransactionTimeout, cfg.Timeouts.Transaction)
	assert.Equal(t, DefaultStateTransferTimeout, cfg.Timeouts.StateTransfer)
	assert.Equal(t, DefaultTokenTTL, cfg.Auth.TokenTTL)
	assert.Equal(t, "disk", cfg.Storage.Backend)
	assert.Equal(t, "plaintext", cfg.Accounts.Scheme)
	assert.Equal(t, "http://127.0.0.1:8081", cfg.HTTP.AdvertiseURL)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	err := Decode(strings.NewReader("id: a\nquorum_size: 3\n"), &NodeConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadConfig))
}

func TestNodeEnvOverrides(t *testing.T) {
	cfg := &NodeConfig{}
	require.NoError(t, Decode(strings.NewReader(nodeYAML), cfg))
	cfg.ApplyEnv(envMap(map[string]string{
		"FILESTORE_NODE_ID":         "node-b",
		"FILESTORE_CLUSTER_SEEDS":   "tcp://10.0.0.1:7100, tcp://10.0.0.2:7100,",
		"FILESTORE_JWT_SECRET":      "fedcba9876543210fedcba9876543210",
		"FILESTORE_DATABASE_URL":    "postgres://fs@db/fs",
		"FILESTORE_ADVERTISE_URL":   "http://node-b:8081",
		"FILESTORE_HTTP_LISTEN":     "",
		"FILESTORE_UNRELATED_THING": "x",
	}))
	cfg.ApplyDefaults()

	assert.Equal(t, "node-b", cfg.ID)
	assert.Equal(t, []string{"tcp://10.0.0.1:7100", "tcp://10.0.0.2:7100"}, cfg.Cluster.Seeds)
	assert.Equal(t, "fedcba9876543210fedcba9876543210", cfg.Auth.Secret)
	assert.Equal(t, "postgres://fs@db/fs", cfg.Accounts.DatabaseURL)
	assert.Equal(t, "http://node-b:8081", cfg.HTTP.AdvertiseURL)
	assert.Equal(t, "127.0.0.1:8081", cfg.HTTP.Listen, "empty env values must not clear fields")
}

func TestNodeValidate(t *testing.T) {
	valid := func() *NodeConfig {
		cfg := &NodeConfig{
			ID:      "n1",
			Cluster: GroupConfig{Bind: "tcp://127.0.0.1:7000", StateBind: "tcp://127.0.0.1:7001"},
			RPC:     GroupConfig{Bind: "tcp://127.0.0.1:7002"},
			HTTP:    HTTPConfig{Listen: ":8080"},
			Storage: StorageConfig{Dir: t.TempDir()},
			Auth:    AuthConfig{Secret: testSecret},
		}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*NodeConfig)
		field  string
	}{
		{"missing id", func(c *NodeConfig) { c.ID = "" }, "ID"},
		{"bad transport", func(c *NodeConfig) { c.Cluster.Transport = "udp" }, "Transport"},
		{"bad bind", func(c *NodeConfig) { c.Cluster.Bind = "127.0.0.1:7000" }, "Cluster.Bind"},
		{"missing state bind", func(c *NodeConfig) { c.Cluster.StateBind = "" }, "Cluster.StateBind"},
		{"same group names", func(c *NodeConfig) { c.RPC.Name = c.Cluster.Name }, "Cluster.Name"},
		{"short secret", func(c *NodeConfig) { c.Auth.Secret = "short" }, "Auth.Secret"},
		{"disk without dir", func(c *NodeConfig) { c.Storage.Dir = "" }, "Storage.Dir"},
		{"s3 without bucket", func(c *NodeConfig) { c.Storage.Backend = "s3"; c.Storage.S3.Region = "us-east-1" }, "Storage.S3.Bucket"},
		{"postgres without url", func(c *NodeConfig) { c.Accounts.Backend = "postgres" }, "Accounts.DatabaseURL"},
		{"failure below heartbeat", func(c *NodeConfig) { c.RPC.FailureTimeout = c.RPC.HeartbeatInterval }, "RPC.FailureTimeout"},
		{"bad log level", func(c *NodeConfig) { c.LogLevel = "loud" }, "LogLevel"},
		{"bad listen", func(c *NodeConfig) { c.HTTP.Listen = "nohost" }, "HTTP.Listen"},
		{"undo ttl below quorum", func(c *NodeConfig) { c.Timeouts.UndoTTL = c.Timeouts.Quorum / 2 }, "Timeouts.UndoTTL"},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadGatewayFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	data := "id: gw\nrpc:\n  bind: tcp://127.0.0.1:7300\n  seeds: [tcp://127.0.0.1:7102]\nhttp:\n  listen: 127.0.0.1:8080\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadGateway(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultGatewayAttempts, cfg.Attempts)
	assert.Equal(t, DefaultRPCGroup, cfg.RPC.Name)
	assert.Equal(t, []string{"tcp://127.0.0.1:7102"}, cfg.RPC.Seeds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadNode(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadConfig))
}
