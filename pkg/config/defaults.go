package config

import (
	"github.com/dd0wney/cluso-filestore/pkg/validation"
)

func (g *GroupConfig) applyDefaults(name string) {
	g.Name = validation.DefaultOr(g.Name, name)
	g.Transport = validation.DefaultOr(g.Transport, "nng")
	g.HeartbeatInterval = validation.DefaultOrDuration(g.HeartbeatInterval, DefaultHeartbeatInterval)
	g.FailureTimeout = validation.DefaultOrDuration(g.FailureTimeout, DefaultFailureTimeout)
	g.JoinTimeout = validation.DefaultOrDuration(g.JoinTimeout, DefaultJoinTimeout)
}

func (h *HTTPConfig) applyDefaults() {
	h.ShutdownTimeout = validation.DefaultOrDuration(h.ShutdownTimeout, DefaultShutdownTimeout)
	if h.AdvertiseURL == "" && h.Listen != "" {
		addr := h.Listen
		if addr[0] == ':' {
			addr = "127.0.0.1" + addr
		}
		h.AdvertiseURL = "http://" + addr
	}
}

// ApplyDefaults fills every zero value with its default.
func (c *NodeConfig) ApplyDefaults() {
	c.LogLevel = validation.DefaultOr(c.LogLevel, "info")
	c.Cluster.applyDefaults(DefaultClusterGroup)
	c.RPC.applyDefaults(DefaultRPCGroup)
	c.HTTP.applyDefaults()

	c.Timeouts.Lock = validation.DefaultOrDuration(c.Timeouts.Lock, DefaultLockTimeout)
	c.Timeouts.Quorum = validation.DefaultOrDuration(c.Timeouts.Quorum, DefaultQuorumTimeout)
	c.Timeouts.Transaction = validation.DefaultOrDuration(c.Timeouts.Transaction, DefaultTransactionTimeout)
	c.Timeouts.StateTransfer = validation.DefaultOrDuration(c.Timeouts.StateTransfer, DefaultStateTransferTimeout)
	c.Timeouts.UndoTTL = validation.DefaultOrDuration(c.Timeouts.UndoTTL, DefaultUndoTTL)

	c.Storage.Backend = validation.DefaultOr(c.Storage.Backend, "disk")
	c.Accounts.Backend = validation.DefaultOr(c.Accounts.Backend, "memory")
	c.Accounts.Scheme = validation.DefaultOr(c.Accounts.Scheme, "plaintext")
	c.Auth.TokenTTL = validation.DefaultOrDuration(c.Auth.TokenTTL, DefaultTokenTTL)
}

// ApplyDefaults fills every zero value with its default.
func (c *GatewayConfig) ApplyDefaults() {
	c.LogLevel = validation.DefaultOr(c.LogLevel, "info")
	c.RPC.applyDefaults(DefaultRPCGroup)
	c.HTTP.applyDefaults()
	c.Attempts = validation.DefaultOrInt(c.Attempts, DefaultGatewayAttempts)
	c.RequestTimeout = validation.DefaultOrDuration(c.RequestTimeout, DefaultGatewayRequestTimeout)
}
