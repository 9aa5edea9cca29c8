// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("component", "throttle").Msg("lockout applied")

	out := buf.String()
	if !strings.Contains(out, `"message":"lockout applied"`) {
		t.Errorf("missing message in output: %s", out)
	}
	if !strings.Contains(out, `"component":"throttle"`) {
		t.Errorf("missing field in output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCtxAddsRequestAndCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	Ctx(ctx).Info().Msg("handled")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Errorf("request_id missing: %s", out)
	}
	if !strings.Contains(out, `"correlation_id":"corr-1"`) {
		t.Errorf("correlation_id missing: %s", out)
	}
}

func TestSlogLoggerRoutesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	l := NewSlogLogger("supervisor")
	l.WithGroup("svc").Warn("service restarted", "name", "session-monitor", "failures", 2)

	out := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"component":"supervisor"`,
		`"svc.name":"session-monitor"`,
		`"svc.failures":2`,
		`"message":"service restarted"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestMasking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"email", MaskIdentifier, "jane.doe@example.org", "ja***@example.org"},
		{"short email", MaskIdentifier, "jo@example.org", "***@example.org"},
		{"handle", MaskIdentifier, "volunteer42", "vo***"},
		{"empty", MaskIdentifier, "", ""},
		{"session", MaskSessionID, "3f1c9a7e55d04b2a", "3f1c...4b2a"},
		{"short session", MaskSessionID, "abc", "***"},
	}
	for _, tt := range tests {
		if got := tt.fn(tt.in); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}

	long := strings.Repeat("x", 500)
	if got := TruncateUserAgent(long); len(got) != 163 {
		t.Errorf("TruncateUserAgent length = %d, want 163", len(got))
	}
}
