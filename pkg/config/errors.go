package config

import "errors"

var (
	// ErrInvalidConfig is returned when a configuration fails validation
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrReadConfig is returned when the configuration file cannot be read or decoded
	ErrReadConfig = errors.New("cannot read configuration")
)
