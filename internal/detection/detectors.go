// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package detection

import (
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/campaignguard/internal/audit"
)

// FailedLoginBurst counts login_failed events per subject.
type FailedLoginBurst struct {
	// Medium is the count that raises a medium alert.
	Medium int
	// High is the count that raises a high alert.
	High int
}

// Kind implements Detector.
func (d *FailedLoginBurst) Kind() Kind { return KindFailedLoginBurst }

// Detect implements Detector.
func (d *FailedLoginBurst) Detect(window []audit.Event, _ time.Time) []Finding {
	type burst struct {
		ids    []string
		latest time.Time
	}
	bySubject := make(map[string]*burst)

	for i := range window {
		ev := &window[i]
		if ev.Action != audit.ActionLoginFailed || ev.SubjectID == "" {
			continue
		}
		b, ok := bySubject[ev.SubjectID]
		if !ok {
			b = &burst{}
			bySubject[ev.SubjectID] = b
		}
		b.ids = append(b.ids, ev.ID)
		b.latest = ev.CreatedAt
	}

	var findings []Finding
	for subject, b := range bySubject {
		var severity Severity
		switch n := len(b.ids); {
		case n >= d.High:
			severity = SeverityHigh
		case n >= d.Medium:
			severity = SeverityMedium
		default:
			continue
		}
		findings = append(findings, Finding{
			Kind:      KindFailedLoginBurst,
			SubjectID: subject,
			Severity:  severity,
			Message:   fmt.Sprintf("%d failed logins in the evaluation window", len(b.ids)),
			Evidence:  b.ids,
			LatestAt:  b.latest,
		})
	}
	return sortFindings(findings)
}

// MultiDevice counts distinct user agents per subject.
type MultiDevice struct {
	// Threshold is the distinct user-agent count that must be exceeded.
	Threshold int
	// Normalize maps a raw user agent to the value that is counted.
	Normalize func(string) string
}

// Kind implements Detector.
func (d *MultiDevice) Kind() Kind { return KindMultiDevice }

// Detect implements Detector. Evidence is the first event seen for each
// distinct agent, so the alert only grows when a new agent shows up.
func (d *MultiDevice) Detect(window []audit.Event, _ time.Time) []Finding {
	normalize := d.Normalize
	if normalize == nil {
		normalize = NormalizeRaw
	}

	type devices struct {
		seen   map[string]struct{}
		ids    []string
		latest time.Time
	}
	bySubject := make(map[string]*devices)

	for i := range window {
		ev := &window[i]
		if ev.SubjectID == "" || ev.UserAgent == "" {
			continue
		}
		agent := normalize(ev.UserAgent)
		if agent == "" {
			continue
		}
		dv, ok := bySubject[ev.SubjectID]
		if !ok {
			dv = &devices{seen: make(map[string]struct{})}
			bySubject[ev.SubjectID] = dv
		}
		if _, dup := dv.seen[agent]; dup {
			continue
		}
		dv.seen[agent] = struct{}{}
		dv.ids = append(dv.ids, ev.ID)
		dv.latest = ev.CreatedAt
	}

	var findings []Finding
	for subject, dv := range bySubject {
		if len(dv.seen) <= d.Threshold {
			continue
		}
		findings = append(findings, Finding{
			Kind:      KindMultiDevice,
			SubjectID: subject,
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("%d distinct user agents in the evaluation window", len(dv.seen)),
			Evidence:  dv.ids,
			LatestAt:  dv.latest,
		})
	}
	return sortFindings(findings)
}

// SessionAnomaly flags session_timeout events that are not followed by a
// login_success for the same subject within Grace.
type SessionAnomaly struct {
	Grace time.Duration
}

// Kind implements Detector.
func (d *SessionAnomaly) Kind() Kind { return KindSessionAnomaly }

// Detect implements Detector. A timeout younger than Grace is undecided and
// produces nothing yet.
func (d *SessionAnomaly) Detect(window []audit.Event, now time.Time) []Finding {
	logins := make(map[string][]time.Time)
	for i := range window {
		ev := &window[i]
		if ev.Action == audit.ActionLoginSuccess && ev.SubjectID != "" {
			logins[ev.SubjectID] = append(logins[ev.SubjectID], ev.CreatedAt)
		}
	}

	byKey := make(map[NaturalKey]*Finding)
	var order []NaturalKey

	for i := range window {
		ev := &window[i]
		if ev.Action != audit.ActionSessionTimeout || ev.SubjectID == "" {
			continue
		}
		deadline := ev.CreatedAt.Add(d.Grace)
		if now.Before(deadline) {
			continue
		}
		if loggedInBetween(logins[ev.SubjectID], ev.CreatedAt, deadline) {
			continue
		}

		f := Finding{
			Kind:      KindSessionAnomaly,
			SubjectID: ev.SubjectID,
			Severity:  SeverityLow,
			LatestAt:  ev.CreatedAt,
		}
		key := f.Key()
		existing, ok := byKey[key]
		if !ok {
			f.Evidence = []string{ev.ID}
			byKey[key] = &f
			order = append(order, key)
			continue
		}
		existing.Evidence = append(existing.Evidence, ev.ID)
		existing.LatestAt = ev.CreatedAt
	}

	findings := make([]Finding, 0, len(order))
	for _, key := range order {
		f := byKey[key]
		f.Message = fmt.Sprintf("%d session timeouts without a new login within %s", len(f.Evidence), d.Grace)
		findings = append(findings, *f)
	}
	return sortFindings(findings)
}

// loggedInBetween reports whether any login lies in (from, to]. times is
// sorted ascending because the window is.
func loggedInBetween(times []time.Time, from, to time.Time) bool {
	i := sort.Search(len(times), func(i int) bool { return times[i].After(from) })
	return i < len(times) && !times[i].After(to)
}

// sortFindings orders findings by subject so evaluation is deterministic.
func sortFindings(findings []Finding) []Finding {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].SubjectID != findings[j].SubjectID {
			return findings[i].SubjectID < findings[j].SubjectID
		}
		return findings[i].LatestAt.Before(findings[j].LatestAt)
	})
	return findings
}
