// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth validates JWT bearer tokens against a JWKS endpoint.
//
//	auth:
//	  jwks_url: https://auth.example.com/.well-known/jwks.json
//	  issuer: https://auth.example.com
//	  audience: quiz-api
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vymalo/quiz-backend/pkg/config"
)

var (
	// ErrUnauthorized is returned when no bearer token is provided.
	ErrUnauthorized = errors.New("authentication required")

	// ErrInvalidToken is returned when a token fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the identity claims of a validated token.
type Claims struct {
	Subject string         `json:"sub"`
	Email   string         `json:"email,omitempty"`
	Custom  map[string]any `json:"-"`
}

// Validator validates tokens against a cached JWKS.
type Validator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewValidator registers the JWKS URL for background refresh and fetches it
// once, so a bad URL fails at boot. Returns nil when auth is disabled.
func NewValidator(ctx context.Context, cfg config.AuthConfig) (*Validator, error) {
	if !cfg.IsEnabled() {
		return nil, nil
	}
	refresh := cfg.RefreshInterval
	if refresh == 0 {
		refresh = 15 * time.Minute
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(refresh)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
	}

	return &Validator{
		jwksURL:  cfg.JWKSURL,
		cache:    cache,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

var standardClaims = map[string]bool{
	"sub": true, "email": true, "iss": true, "aud": true, "exp": true, "iat": true, "nbf": true, "jti": true,
}

// Validate checks the signature, expiry, issuer and audience of token.
func (v *Validator) Validate(ctx context.Context, token string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	parsed, err := jwt.Parse(
		[]byte(token),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{Subject: parsed.Subject(), Custom: map[string]any{}}
	if email, ok := parsed.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	private, err := parsed.AsMap(ctx)
	if err == nil {
		for k, val := range private {
			if !standardClaims[k] {
				claims.Custom[k] = val
			}
		}
	}
	return claims, nil
}

type contextKey struct{}

// ContextWithClaims returns ctx carrying claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext returns the claims of an authenticated request, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}
