// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package detection

import (
	"fmt"
	"strings"

	ua "github.com/mileusna/useragent"
)

// User-agent normalization modes for the multi-device heuristic.
const (
	// UserAgentRaw counts exact user-agent strings. Browser updates change
	// the string, so this mode over-reports devices.
	UserAgentRaw = "raw"

	// UserAgentFamily counts browser, OS and device class without versions.
	UserAgentFamily = "family"
)

// NormalizeRaw trims the user agent and nothing else.
func NormalizeRaw(userAgent string) string {
	return strings.TrimSpace(userAgent)
}

// NormalizeFamily reduces a user agent to "browser/os/device", dropping
// versions. Unparseable agents fall back to the lowercased raw string.
func NormalizeFamily(userAgent string) string {
	raw := strings.TrimSpace(userAgent)
	if raw == "" {
		return ""
	}

	parsed := ua.Parse(raw)
	if parsed.Name == "" && parsed.OS == "" {
		return strings.ToLower(raw)
	}

	device := "desktop"
	switch {
	case parsed.Bot:
		device = "bot"
	case parsed.Tablet:
		device = "tablet"
	case parsed.Mobile:
		device = "mobile"
	}
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", parsed.Name, parsed.OS, device))
}

// Normalizer returns the normalization function for mode.
func Normalizer(mode string) (func(string) string, error) {
	switch mode {
	case "", UserAgentRaw:
		return NormalizeRaw, nil
	case UserAgentFamily:
		return NormalizeFamily, nil
	default:
		return nil, fmt.Errorf("unknown user agent mode %q", mode)
	}
}
