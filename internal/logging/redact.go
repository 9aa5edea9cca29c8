// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package logging

import "strings"

// Log lines are shipped off-host, so login identifiers (usually e-mail
// addresses of campaign staff and volunteers) and session tokens are masked
// before they are written.

// MaskIdentifier masks a login identifier.
// Example: "jane.doe@example.org" -> "ja***@example.org", "volunteer42" -> "vo***"
func MaskIdentifier(identifier string) string {
	if identifier == "" {
		return ""
	}
	at := strings.Index(identifier, "@")
	if at > 0 {
		local, domain := identifier[:at], identifier[at:]
		if len(local) <= 2 {
			return "***" + domain
		}
		return local[:2] + "***" + domain
	}
	if len(identifier) <= 2 {
		return "***"
	}
	return identifier[:2] + "***"
}

// MaskSessionID keeps the first and last four characters of a session ID.
// Example: "3f1c9a7e55d04b2a" -> "3f1c...4b2a"
func MaskSessionID(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	if len(sessionID) <= 12 {
		return "***"
	}
	return sessionID[:4] + "..." + sessionID[len(sessionID)-4:]
}

// TruncateUserAgent bounds user-agent strings, which are attacker controlled.
func TruncateUserAgent(ua string) string {
	const maxLen = 160
	if len(ua) <= maxLen {
		return ua
	}
	return ua[:maxLen] + "..."
}
