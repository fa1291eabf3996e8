package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LookupFunc resolves an environment variable; os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// LoadNode reads a node configuration file, applies FILESTORE_* environment
// overrides and defaults, and validates the result. An empty path yields a
// configuration built from the environment and defaults alone.
func LoadNode(path string) (*NodeConfig, error) {
	cfg := &NodeConfig{}
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadGateway is LoadNode for the gateway.
func LoadGateway(path string) (*GatewayConfig, error) {
	cfg := &GatewayConfig{}
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadConfig, err)
	}
	return Decode(bytes.NewReader(data), out)
}

// Decode strictly decodes YAML into out; unknown keys are rejected.
func Decode(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrReadConfig, err)
	}
	return nil
}

// ApplyEnv overrides fields from FILESTORE_* variables.
func (c *NodeConfig) ApplyEnv(lookup LookupFunc) {
	setString(lookup, "FILESTORE_NODE_ID", &c.ID)
	setString(lookup, "FILESTORE_LOG_LEVEL", &c.LogLevel)
	setString(lookup, "FILESTORE_CLUSTER_BIND", &c.Cluster.Bind)
	setString(lookup, "FILESTORE_CLUSTER_STATE_BIND", &c.Cluster.StateBind)
	setList(lookup, "FILESTORE_CLUSTER_SEEDS", &c.Cluster.Seeds)
	setString(lookup, "FILESTORE_RPC_BIND", &c.RPC.Bind)
	setList(lookup, "FILESTORE_RPC_SEEDS", &c.RPC.Seeds)
	setString(lookup, "FILESTORE_HTTP_LISTEN", &c.HTTP.Listen)
	setString(lookup, "FILESTORE_ADVERTISE_URL", &c.HTTP.AdvertiseURL)
	setString(lookup, "FILESTORE_STORAGE_DIR", &c.Storage.Dir)
	setString(lookup, "FILESTORE_S3_ACCESS_KEY_ID", &c.Storage.S3.AccessKeyID)
	setString(lookup, "FILESTORE_S3_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey)
	setString(lookup, "FILESTORE_DATABASE_URL", &c.Accounts.DatabaseURL)
	setString(lookup, "FILESTORE_JWT_SECRET", &c.Auth.Secret)
}

// ApplyEnv overrides fields from FILESTORE_* variables.
func (c *GatewayConfig) ApplyEnv(lookup LookupFunc) {
	setString(lookup, "FILESTORE_GATEWAY_ID", &c.ID)
	setString(lookup, "FILESTORE_LOG_LEVEL", &c.LogLevel)
	setString(lookup, "FILESTORE_RPC_BIND", &c.RPC.Bind)
	setList(lookup, "FILESTORE_RPC_SEEDS", &c.RPC.Seeds)
	setString(lookup, "FILESTORE_HTTP_LISTEN", &c.HTTP.Listen)
}

func setString(lookup LookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func setList(lookup LookupFunc, key string, dst *[]string) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}
