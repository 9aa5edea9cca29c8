// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package throttle

import (
	"context"
	"fmt"
)

// Identity is an identity provider verdict.
type Identity struct {
	Success   bool
	SubjectID string
}

// IdentityProvider validates credentials. It is supplied by the host
// application; this package never sees how credentials are stored.
type IdentityProvider interface {
	Authenticate(ctx context.Context, identifier, credential string) (Identity, error)
}

// IdentityProviderFunc adapts a function to IdentityProvider.
type IdentityProviderFunc func(ctx context.Context, identifier, credential string) (Identity, error)

// Authenticate implements IdentityProvider.
func (f IdentityProviderFunc) Authenticate(ctx context.Context, identifier, credential string) (Identity, error) {
	return f(ctx, identifier, credential)
}

// Outcome is the result of a throttled authentication.
type Outcome struct {
	Identity Identity
	// Decision applies to the next attempt, or to this one when it was denied.
	Decision Decision
	// Attempted is false when the guard denied the attempt and the provider
	// was not called.
	Attempted bool
}

// Authenticate runs the throttled login flow: check, then the identity
// provider, then record the verdict. A provider error is returned without
// recording anything, so provider outages do not lock users out.
func (g *Guard) Authenticate(ctx context.Context, provider IdentityProvider, attempt Attempt, credential string) (Outcome, error) {
	decision, err := g.Check(ctx, attempt.Identifier)
	if err != nil {
		return Outcome{}, err
	}
	if !decision.Allowed {
		return Outcome{Decision: decision}, nil
	}

	identity, err := provider.Authenticate(ctx, attempt.Identifier, credential)
	if err != nil {
		return Outcome{Decision: decision}, fmt.Errorf("identity provider: %w", err)
	}

	attempt.Success = identity.Success
	if identity.Success {
		attempt.SubjectID = identity.SubjectID
	}

	next, err := g.RecordAttempt(ctx, attempt)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Identity: identity, Decision: next, Attempted: true}, nil
}
