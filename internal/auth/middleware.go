// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/campaignguard/internal/logging"
)

// Middleware authenticates operator requests.
type Middleware struct {
	mode AuthMode
	jwt  *JWTManager
}

// NewMiddleware creates the middleware. jwtManager may be nil in none mode.
func NewMiddleware(mode AuthMode, jwtManager *JWTManager) (*Middleware, error) {
	if mode == AuthModeJWT && jwtManager == nil {
		return nil, errors.New("jwt auth mode requires a JWT manager")
	}
	return &Middleware{mode: mode, jwt: jwtManager}, nil
}

// Authenticate resolves the request's Subject and stores it in the request
// context. Requests without a valid token get 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.mode == AuthModeNone {
			anon := AnonymousSubject
			next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), &anon)))
			return
		}

		token, err := extractToken(r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}

		subject, err := m.jwt.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected operator token")
			writeUnauthorized(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
	})
}

// extractToken reads a Bearer token. Browsers cannot set headers on
// websocket upgrades, so those may pass access_token as a query parameter.
func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", ErrInvalidCredentials
		}
		return strings.TrimSpace(token), nil
	}

	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
	}
	return "", ErrNoCredentials
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	body := errorBody{}
	body.Error.Code = "UNAUTHORIZED"
	switch {
	case errors.Is(err, ErrNoCredentials):
		body.Error.Message = "Authentication required"
	case errors.Is(err, ErrExpiredCredentials):
		body.Error.Message = "Token expired"
	default:
		body.Error.Message = "Invalid token"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="campaignguard"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}
