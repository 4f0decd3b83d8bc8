// Package config loads process configuration from the environment into an
// explicitly constructed value, per the teacher's design-note preference
// for constructed configuration over package-level singletons.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the orchestration core's process-level configuration.
type Config struct {
	// HeartbeatTimeout is the maximum age of a worker's last heartbeat
	// before it is considered offline.
	HeartbeatTimeout time.Duration
	// SweepInterval is the liveness sweep's polling interval.
	SweepInterval time.Duration
	// MaxIterations bounds a single execute_workflow call's phase
	// transitions.
	MaxIterations int
	// MaxRetries is the default workflow retry budget.
	MaxRetries int

	// MongoURI, when set, selects the Mongo-backed store.
	MongoURI string
	// MongoDatabase names the database within MongoURI.
	MongoDatabase string

	// RedisAddr, when set, enables the Redis-backed plan-status cache
	// and event-bus durability bridge.
	RedisAddr string

	// DualWriteEnabled toggles the legacy-schema dual-write mode.
	DualWriteEnabled bool

	// HTTPAddr is the boundary adapter's listen address.
	HTTPAddr string
}

// Default returns the configuration's zero-risk defaults, matching
// spec.md's stated defaults (heartbeat_timeout=60s, max_iterations=10,
// max_retries=3).
func Default() Config {
	return Config{
		HeartbeatTimeout: 60 * time.Second,
		SweepInterval:    15 * time.Second,
		MaxIterations:    10,
		MaxRetries:       3,
		HTTPAddr:         ":8080",
	}
}

// FromEnv loads configuration from environment variables, falling back to
// Default() for anything unset. No third-party config library is used: see
// DESIGN.md for the stdlib justification.
func FromEnv() (Config, error) {
	cfg := Default()

	if v, ok := os.LookupEnv("ORCH_HEARTBEAT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("ORCH_HEARTBEAT_TIMEOUT: %w", err)
		}
		cfg.HeartbeatTimeout = d
	}
	if v, ok := os.LookupEnv("ORCH_SWEEP_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("ORCH_SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = d
	}
	if v, ok := os.LookupEnv("ORCH_MAX_ITERATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("ORCH_MAX_ITERATIONS: %w", err)
		}
		cfg.MaxIterations = n
	}
	if v, ok := os.LookupEnv("ORCH_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("ORCH_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	cfg.MongoURI = os.Getenv("ORCH_MONGO_URI")
	if cfg.MongoDatabase = os.Getenv("ORCH_MONGO_DATABASE"); cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "orchestrator"
	}
	cfg.RedisAddr = os.Getenv("ORCH_REDIS_ADDR")
	if v, ok := os.LookupEnv("ORCH_DUAL_WRITE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("ORCH_DUAL_WRITE: %w", err)
		}
		cfg.DualWriteEnabled = b
	}
	if v := os.Getenv("ORCH_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	return cfg, nil
}
