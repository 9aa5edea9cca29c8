// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

/*
Package config provides centralized configuration management for CampaignGuard.

# Configuration Sources

Configuration is layered with Koanf v2, later layers winning:
  - Built-in defaults
  - Optional YAML file (CONFIG_PATH, config.yaml, /etc/campaignguard/config.yaml)
  - Environment variables

# Tuning Keys

The access-control tuning keys are read from environment variables of the
same name, uppercased:

  - LOCKOUT_THRESHOLD: failures before lockout starts (default: 3)
  - BASE_DELAY_MS: backoff base (default: 1000)
  - MAX_DELAY_MS: backoff cap (default: 30000)
  - SESSION_TIMEOUT_MS: idle timeout (default: 28800000, 8h)
  - ACTIVITY_POLL_MS: idle check interval (default: 60000)
  - ANOMALY_WINDOW_HOURS: evaluation window (default: 24)
  - FAILED_LOGIN_BURST_MEDIUM: failures for a medium alert (default: 3)
  - FAILED_LOGIN_BURST_HIGH: failures for a high alert (default: 5)
  - MULTI_DEVICE_THRESHOLD: distinct agents that must be exceeded (default: 3)

In YAML they live under their section, e.g. throttle.lockout_threshold.

# Infrastructure

  - STORAGE_BACKEND: memory or badger (default: badger)
  - STORAGE_PATH: BadgerDB directory (default: /data/campaignguard)
  - THROTTLE_STORE: memory or redis (default: memory)
  - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: Redis for shared throttle state
  - HTTP_HOST, HTTP_PORT: listen address (default: 0.0.0.0:8080)
  - ENVIRONMENT: development or production

# Security

  - AUTH_MODE: jwt or none (none is refused in production)
  - JWT_SECRET: HMAC secret, at least 32 characters in jwt mode
  - CORS_ORIGINS: comma-separated origins; "*" is refused in production
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT

# Logging

  - LOG_LEVEL: trace, debug, info, warn, error (default: info)
  - LOG_FORMAT: json or console (default: json)
  - LOG_CALLER: include caller file:line
*/
package config
