// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package auth issues and verifies display ownership tokens. A token is
// minted when a display is registered and proves that later destructive
// operations and hub sessions come from the owner.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
)

// DisplayClaims are the claims carried by a display ownership token.
type DisplayClaims struct {
	AdminID string `json:"admin_id"`
	Code    string `json:"code"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies display ownership tokens with
// HMAC-SHA256.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a token manager from the security config. The
// secret must be non-empty.
func NewTokenManager(cfg *config.SecurityConfig) (*TokenManager, error) {
	if cfg.JWTSecret == "" {
		return nil, apperr.New(apperr.KindFatal, "auth.NewTokenManager", "jwt_secret is required")
	}
	return &TokenManager{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
	}, nil
}

// IssueDisplayToken mints an ownership token binding the admin to the
// display code.
func (m *TokenManager) IssueDisplayToken(adminID, code string) (string, error) {
	now := time.Now()
	claims := &DisplayClaims{
		AdminID: adminID,
		Code:    code,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   code,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", apperr.Wrap(apperr.KindFatal, "auth.IssueDisplayToken", err)
	}
	return signed, nil
}

// Verify validates a token and returns its claims. Rejects expired
// tokens and any signing algorithm other than HMAC.
func (m *TokenManager) Verify(tokenString string) (*DisplayClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DisplayClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Newf(apperr.KindCredentials, "auth.Verify", "unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCredentials, "auth.Verify", err)
	}

	claims, ok := token.Claims.(*DisplayClaims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.KindCredentials, "auth.Verify", "invalid token claims")
	}
	if claims.Code == "" {
		return nil, apperr.New(apperr.KindCredentials, "auth.Verify", "token missing display code")
	}
	return claims, nil
}

// VerifyDisplay validates a token and returns the display code it was
// issued for. This is the shape hub sessions check against.
func (m *TokenManager) VerifyDisplay(tokenString string) (string, error) {
	claims, err := m.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Code, nil
}
