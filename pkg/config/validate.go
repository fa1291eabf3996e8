package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/validation"
)

var transportSchemes = []string{"tcp", "ipc", "inproc"}

func validateGroup(cv *validation.ConfigValidator, field string, g GroupConfig) {
	cv.Required(field+".Name", g.Name).
		Endpoint(field+".Bind", g.Bind, transportSchemes...).
		When(g.StateBind != "", func(v *validation.ConfigValidator) {
			v.Endpoint(field+".StateBind", g.StateBind, transportSchemes...)
		}).
		MinDuration(field+".HeartbeatInterval", g.HeartbeatInterval, 10*time.Millisecond).
		Custom(field+".FailureTimeout", func() error {
			if g.FailureTimeout <= g.HeartbeatInterval {
				return errors.New("must exceed heartbeat interval")
			}
			return nil
		})
	for i, seed := range g.Seeds {
		cv.Endpoint(fmt.Sprintf("%s.Seeds[%d]", field, i), seed, transportSchemes...)
	}
}

func validateLevel(cv *validation.ConfigValidator, level string) {
	cv.OneOf("LogLevel", level, []string{"debug", "info", "warn", "error"})
}

// Validate checks struct tags first, then cross-field rules.
func (c *NodeConfig) Validate() error {
	if err := validation.Validator().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cv := validation.NewConfigValidator("NodeConfig")
	validateLevel(cv, c.LogLevel)
	validateGroup(cv, "Cluster", c.Cluster)
	validateGroup(cv, "RPC", c.RPC)
	cv.Required("Cluster.StateBind", c.Cluster.StateBind).
		HostPort("HTTP.Listen", c.HTTP.Listen).
		MinDuration("Timeouts.Lock", c.Timeouts.Lock, 100*time.Millisecond).
		MinDuration("Timeouts.Quorum", c.Timeouts.Quorum, 100*time.Millisecond).
		MinDuration("Timeouts.Transaction", c.Timeouts.Transaction, 100*time.Millisecond).
		MinDuration("Timeouts.StateTransfer", c.Timeouts.StateTransfer, 100*time.Millisecond).
		RangeDuration("Timeouts.UndoTTL", c.Timeouts.UndoTTL, c.Timeouts.Quorum, 24*time.Hour).
		Custom("Cluster.Name", func() error {
			if c.Cluster.Name == c.RPC.Name {
				return errors.New("cluster and rpc groups must have distinct names")
			}
			return nil
		}).
		When(c.Storage.Backend == "disk", func(v *validation.ConfigValidator) {
			v.Required("Storage.Dir", c.Storage.Dir)
		}).
		When(c.Storage.Backend == "s3", func(v *validation.ConfigValidator) {
			v.Required("Storage.S3.Bucket", c.Storage.S3.Bucket).
				Required("Storage.S3.Region", c.Storage.S3.Region)
		}).
		When(c.Accounts.Backend == "file", func(v *validation.ConfigValidator) {
			v.Required("Accounts.File", c.Accounts.File)
		}).
		When(c.Accounts.Backend == "postgres", func(v *validation.ConfigValidator) {
			v.Required("Accounts.DatabaseURL", c.Accounts.DatabaseURL)
		}).
		Custom("Auth.Secret", func() error {
			if len(c.Auth.Secret) < 32 {
				return errors.New("must be at least 32 bytes")
			}
			return nil
		})

	if err := cv.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks struct tags first, then cross-field rules.
func (c *GatewayConfig) Validate() error {
	if err := validation.Validator().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cv := validation.NewConfigValidator("GatewayConfig")
	validateLevel(cv, c.LogLevel)
	validateGroup(cv, "RPC", c.RPC)
	cv.HostPort("HTTP.Listen", c.HTTP.Listen).
		RangeInt("Attempts", c.Attempts, 1, 10).
		MinDuration("RequestTimeout", c.RequestTimeout, time.Second)

	if err := cv.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
