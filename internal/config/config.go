// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values for every setting
//  2. Config File: optional YAML file (config.yaml)
//  3. Environment Variables: override any mapped setting
//
// Thread Safety:
// Config is immutable after LoadWithKoanf() and safe for concurrent reads.
type Config struct {
	Throttle  ThrottleConfig  `koanf:"throttle"`
	Session   SessionConfig   `koanf:"session"`
	Consent   ConsentConfig   `koanf:"consent"`
	Detection DetectionConfig `koanf:"detection"`
	Audit     AuditConfig     `koanf:"audit"`
	Storage   StorageConfig   `koanf:"storage"`
	Redis     RedisConfig     `koanf:"redis"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ThrottleConfig configures the login throttle guard. Delay settings keep
// their millisecond names so deployments can reuse existing values.
type ThrottleConfig struct {
	LockoutThreshold int           `koanf:"lockout_threshold"`
	BaseDelayMS      int64         `koanf:"base_delay_ms"`
	MaxDelayMS       int64         `koanf:"max_delay_ms"`
	EntryTTL         time.Duration `koanf:"entry_ttl"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`

	// Store is "memory" or "redis". Redis shares lockouts between replicas.
	Store string `koanf:"store"`
}

// BaseDelay returns base_delay_ms as a duration.
func (t ThrottleConfig) BaseDelay() time.Duration {
	return time.Duration(t.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns max_delay_ms as a duration.
func (t ThrottleConfig) MaxDelay() time.Duration {
	return time.Duration(t.MaxDelayMS) * time.Millisecond
}

// SessionConfig configures the session activity monitor.
type SessionConfig struct {
	SessionTimeoutMS int64         `koanf:"session_timeout_ms"`
	ActivityPollMS   int64         `koanf:"activity_poll_ms"`
	Signals          []string      `koanf:"signals"`
	Retention        time.Duration `koanf:"retention"`
}

// IdleTimeout returns session_timeout_ms as a duration.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutMS) * time.Millisecond
}

// PollInterval returns activity_poll_ms as a duration.
func (s SessionConfig) PollInterval() time.Duration {
	return time.Duration(s.ActivityPollMS) * time.Millisecond
}

// ConsentConfig configures the consent tracker.
type ConsentConfig struct {
	// AuditTimeout bounds the synchronous audit append behind every change.
	AuditTimeout time.Duration `koanf:"audit_timeout"`
}

// DetectionConfig configures the anomaly heuristics engine.
type DetectionConfig struct {
	AnomalyWindowHours     int           `koanf:"anomaly_window_hours"`
	FailedLoginBurstMedium int           `koanf:"failed_login_burst_medium"`
	FailedLoginBurstHigh   int           `koanf:"failed_login_burst_high"`
	MultiDeviceThreshold   int           `koanf:"multi_device_threshold"`
	SessionGrace           time.Duration `koanf:"session_grace"`
	UserAgentMode          string        `koanf:"user_agent_mode"`
	PollInterval           time.Duration `koanf:"poll_interval"`
	TriggerInterval        time.Duration `koanf:"trigger_interval"`
}

// Window returns anomaly_window_hours as a duration.
func (d DetectionConfig) Window() time.Duration {
	return time.Duration(d.AnomalyWindowHours) * time.Hour
}

// AuditConfig configures the audit log and its best-effort writer.
type AuditConfig struct {
	BufferSize      int           `koanf:"buffer_size"`
	MaxRetries      int           `koanf:"max_retries"`
	RetryBaseDelay  time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay   time.Duration `koanf:"retry_max_delay"`
	Retention       time.Duration `koanf:"retention"`
	MemoryCapacity  int           `koanf:"memory_capacity"`
	PubSubBuffer    int64         `koanf:"pubsub_buffer"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
}

// StorageConfig selects where audit, consent and alert data live.
type StorageConfig struct {
	// Backend is "memory" or "badger".
	Backend    string        `koanf:"backend"`
	Path       string        `koanf:"path"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// RedisConfig is used when Throttle.Store is "redis".
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds operator authentication and request limiting.
type SecurityConfig struct {
	// AuthMode is "jwt" or "none".
	AuthMode          string        `koanf:"auth_mode"`
	JWTSecret         string        `koanf:"jwt_secret"`
	JWTIssuer         string        `koanf:"jwt_issuer"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	// CasbinPolicyPath overrides the embedded role policy when set.
	CasbinPolicyPath string `koanf:"casbin_policy_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the service runs with production checks.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
