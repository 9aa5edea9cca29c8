// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/campaignguard/config.yaml",
	"/etc/campaignguard/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Throttle: ThrottleConfig{
			LockoutThreshold: 3,
			BaseDelayMS:      1000,
			MaxDelayMS:       30000,
			EntryTTL:         24 * time.Hour,
			SweepInterval:    10 * time.Minute,
			Store:            "memory",
		},
		Session: SessionConfig{
			SessionTimeoutMS: 28_800_000, // 8h
			ActivityPollMS:   60_000,
			Signals:          []string{"pointer", "key", "scroll", "touch"},
			Retention:        time.Hour,
		},
		Consent: ConsentConfig{
			AuditTimeout: 5 * time.Second,
		},
		Detection: DetectionConfig{
			AnomalyWindowHours:     24,
			FailedLoginBurstMedium: 3,
			FailedLoginBurstHigh:   5,
			MultiDeviceThreshold:   3,
			SessionGrace:           5 * time.Minute,
			UserAgentMode:          "raw",
			PollInterval:           time.Minute,
			TriggerInterval:        2 * time.Second,
		},
		Audit: AuditConfig{
			BufferSize:      1024,
			MaxRetries:      5,
			RetryBaseDelay:  100 * time.Millisecond,
			RetryMaxDelay:   5 * time.Second,
			Retention:       0, // keep forever
			MemoryCapacity:  100_000,
			PubSubBuffer:    256,
			BreakerFailures: 5,
		},
		Storage: StorageConfig{
			Backend:    "badger",
			Path:       "/data/campaignguard",
			SyncWrites: true,
			GCInterval: 10 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			JWTIssuer:       "campaignguard",
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values
//  2. Config File: optional YAML config file (if exists)
//  3. Environment Variables: override any mapped setting
//
// The result is validated before it is returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// LOCKOUT_THRESHOLD -> throttle.lockout_threshold
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"session.signals",
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
// The nine tuning keys keep their documented names.
var envMappings = map[string]string{
	// Throttle
	"lockout_threshold":       "throttle.lockout_threshold",
	"base_delay_ms":           "throttle.base_delay_ms",
	"max_delay_ms":            "throttle.max_delay_ms",
	"throttle_entry_ttl":      "throttle.entry_ttl",
	"throttle_sweep_interval": "throttle.sweep_interval",
	"throttle_store":          "throttle.store",

	// Session
	"session_timeout_ms": "session.session_timeout_ms",
	"activity_poll_ms":   "session.activity_poll_ms",
	"activity_signals":   "session.signals",
	"session_retention":  "session.retention",

	// Consent
	"consent_audit_timeout": "consent.audit_timeout",

	// Detection
	"anomaly_window_hours":      "detection.anomaly_window_hours",
	"failed_login_burst_medium": "detection.failed_login_burst_medium",
	"failed_login_burst_high":   "detection.failed_login_burst_high",
	"multi_device_threshold":    "detection.multi_device_threshold",
	"session_anomaly_grace":     "detection.session_grace",
	"user_agent_mode":           "detection.user_agent_mode",
	"anomaly_poll_interval":     "detection.poll_interval",
	"anomaly_trigger_interval":  "detection.trigger_interval",

	// Audit
	"audit_buffer_size":      "audit.buffer_size",
	"audit_max_retries":      "audit.max_retries",
	"audit_retry_base_delay": "audit.retry_base_delay",
	"audit_retry_max_delay":  "audit.retry_max_delay",
	"audit_retention":        "audit.retention",
	"audit_memory_capacity":  "audit.memory_capacity",
	"audit_pubsub_buffer":    "audit.pubsub_buffer",
	"audit_breaker_failures": "audit.breaker_failures",

	// Storage
	"storage_backend":     "storage.backend",
	"storage_path":        "storage.path",
	"storage_sync_writes": "storage.sync_writes",
	"storage_gc_interval": "storage.gc_interval",

	// Redis
	"redis_addr":     "redis.addr",
	"redis_password": "redis.password",
	"redis_db":       "redis.db",

	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",

	// Security
	"auth_mode":           "security.auth_mode",
	"jwt_secret":          "security.jwt_secret",
	"jwt_issuer":          "security.jwt_issuer",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",
	"casbin_policy_path":  "security.casbin_policy_path",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - LOCKOUT_THRESHOLD -> throttle.lockout_threshold
//   - SESSION_TIMEOUT_MS -> session.session_timeout_ms
//   - HTTP_PORT -> server.port
//
// Unmapped variables return "" and are skipped, so unrelated environment
// variables never pollute the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
