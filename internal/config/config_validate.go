// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const minJWTSecretLength = 32

var validSignals = []string{"pointer", "key", "scroll", "touch"}

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateThrottle(); err != nil {
		return err
	}

	if err := c.validateSession(); err != nil {
		return err
	}

	if err := c.validateDetection(); err != nil {
		return err
	}

	if err := c.validateAudit(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateThrottle() error {
	t := c.Throttle
	if t.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1, got %d", t.LockoutThreshold)
	}
	if t.BaseDelayMS < 1 {
		return fmt.Errorf("BASE_DELAY_MS must be positive, got %d", t.BaseDelayMS)
	}
	if t.MaxDelayMS < t.BaseDelayMS {
		return fmt.Errorf("MAX_DELAY_MS (%d) must not be below BASE_DELAY_MS (%d)", t.MaxDelayMS, t.BaseDelayMS)
	}
	if t.EntryTTL < t.MaxDelay() {
		return fmt.Errorf("THROTTLE_ENTRY_TTL (%s) must be at least MAX_DELAY_MS", t.EntryTTL)
	}
	switch t.Store {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when THROTTLE_STORE=redis")
		}
	default:
		return fmt.Errorf("THROTTLE_STORE must be memory or redis, got %q", t.Store)
	}
	return nil
}

func (c *Config) validateSession() error {
	s := c.Session
	if s.SessionTimeoutMS < 1000 {
		return fmt.Errorf("SESSION_TIMEOUT_MS must be at least 1000, got %d", s.SessionTimeoutMS)
	}
	if s.ActivityPollMS < 100 {
		return fmt.Errorf("ACTIVITY_POLL_MS must be at least 100, got %d", s.ActivityPollMS)
	}
	if s.ActivityPollMS > s.SessionTimeoutMS {
		return fmt.Errorf("ACTIVITY_POLL_MS (%d) must not exceed SESSION_TIMEOUT_MS (%d)", s.ActivityPollMS, s.SessionTimeoutMS)
	}
	if len(s.Signals) == 0 {
		return fmt.Errorf("ACTIVITY_SIGNALS must name at least one signal")
	}
	for _, sig := range s.Signals {
		if !slices.Contains(validSignals, sig) {
			return fmt.Errorf("ACTIVITY_SIGNALS contains unknown signal %q (valid: %s)", sig, strings.Join(validSignals, ", "))
		}
	}
	return nil
}

func (c *Config) validateDetection() error {
	d := c.Detection
	if d.AnomalyWindowHours < 1 || d.AnomalyWindowHours > 24*30 {
		return fmt.Errorf("ANOMALY_WINDOW_HOURS must be between 1 and 720, got %d", d.AnomalyWindowHours)
	}
	if d.FailedLoginBurstMedium < 1 {
		return fmt.Errorf("FAILED_LOGIN_BURST_MEDIUM must be at least 1, got %d", d.FailedLoginBurstMedium)
	}
	if d.FailedLoginBurstHigh < d.FailedLoginBurstMedium {
		return fmt.Errorf("FAILED_LOGIN_BURST_HIGH (%d) must not be below FAILED_LOGIN_BURST_MEDIUM (%d)",
			d.FailedLoginBurstHigh, d.FailedLoginBurstMedium)
	}
	if d.MultiDeviceThreshold < 1 {
		return fmt.Errorf("MULTI_DEVICE_THRESHOLD must be at least 1, got %d", d.MultiDeviceThreshold)
	}
	if d.UserAgentMode != "raw" && d.UserAgentMode != "family" {
		return fmt.Errorf("USER_AGENT_MODE must be raw or family, got %q", d.UserAgentMode)
	}
	if d.PollInterval < time.Second {
		return fmt.Errorf("ANOMALY_POLL_INTERVAL must be at least 1s, got %s", d.PollInterval)
	}
	if d.SessionGrace <= 0 {
		return fmt.Errorf("SESSION_ANOMALY_GRACE must be positive")
	}
	return nil
}

func (c *Config) validateAudit() error {
	a := c.Audit
	if a.BufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1, got %d", a.BufferSize)
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("AUDIT_MAX_RETRIES must not be negative, got %d", a.MaxRetries)
	}
	if a.RetryBaseDelay <= 0 || a.RetryMaxDelay < a.RetryBaseDelay {
		return fmt.Errorf("AUDIT_RETRY_BASE_DELAY must be positive and not exceed AUDIT_RETRY_MAX_DELAY")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "memory":
		return nil
	case "badger":
		if c.Storage.Path == "" {
			return fmt.Errorf("STORAGE_PATH is required when STORAGE_BACKEND=badger")
		}
		return nil
	default:
		return fmt.Errorf("STORAGE_BACKEND must be memory or badger, got %q", c.Storage.Backend)
	}
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "none":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=none is not allowed when ENVIRONMENT=production")
		}
	case "jwt":
		if c.Security.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is jwt")
		}
		if len(c.Security.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be jwt or none, got %q", c.Security.AuthMode)
	}

	// Wildcard CORS with authentication lets any site replay operator tokens.
	if c.Security.AuthMode != "none" && c.IsProduction() && slices.Contains(c.Security.CORSOrigins, "*") {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production with authentication enabled")
	}

	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow < time.Second {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s, got %s", c.Security.RateLimitWindow)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
