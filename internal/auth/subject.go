// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package auth

import (
	"context"
	"errors"
	"slices"
)

// AuthMode represents the authentication strategy for operator endpoints.
type AuthMode string

const (
	// AuthModeNone disables authentication. Every request acts as the
	// anonymous operator; development only.
	AuthModeNone AuthMode = "none"

	// AuthModeJWT uses HS256 JWT Bearer tokens.
	AuthModeJWT AuthMode = "jwt"
)

// ParseAuthMode converts a string to AuthMode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "none", "":
		return AuthModeNone, nil
	case "jwt":
		return AuthModeJWT, nil
	default:
		return "", errors.New("invalid auth mode: " + s)
	}
}

// String returns the string representation of AuthMode.
func (m AuthMode) String() string {
	return string(m)
}

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// Roles understood by the authorization policy.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleService  = "service"
)

// AnonymousSubject is the identity used when authentication is disabled.
var AnonymousSubject = Subject{ID: "anonymous", Username: "anonymous", Roles: []string{RoleOperator, RoleService}}

// Subject is an authenticated operator or calling service.
type Subject struct {
	// ID is the token's sub claim.
	ID string `json:"id"`

	// Username is for display and audit metadata.
	Username string `json:"username"`

	// Roles are evaluated by the casbin policy.
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the subject has role.
func (s *Subject) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

type contextKey struct{}

// ContextWithSubject attaches subject to ctx.
func ContextWithSubject(ctx context.Context, subject *Subject) context.Context {
	return context.WithValue(ctx, contextKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, or nil.
func SubjectFromContext(ctx context.Context) *Subject {
	s, _ := ctx.Value(contextKey{}).(*Subject)
	return s
}
