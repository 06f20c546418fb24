package vapor

import (
	"errors"
	"time"
)

// Config defines a public type used by vapor APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Guard    GuardConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
GUARD CONFIG
====================================
*/

// GuardConfig tunes guard-code generation. The platform scheme is fixed at
// five characters over a 30-second window; the defaults match it and only
// need changing against a non-standard platform.
type GuardConfig struct {
	Period time.Duration
	Digits int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by vapor APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// AuditConfig defines a public type used by vapor APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by vapor APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Guard: GuardConfig{
			Period: 30 * time.Second,
			Digits: 5,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
func (c *Config) Validate() error {
	if c.Guard.Period <= 0 {
		return errors.New("Guard.Period must be positive")
	}
	if c.Guard.Digits <= 0 || c.Guard.Digits > 10 {
		return errors.New("Guard.Digits out of range")
	}
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security.MaxLoginAttempts must be positive when throttling")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security.LoginCooldownDuration must be positive when throttling")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive when audit is enabled")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	// Value copy is a deep copy: no reference types in the tree.
	return cfg
}
