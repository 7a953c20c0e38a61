// Package token decodes bearer token claims for local expiry estimation.
// Signature verification is the issuer's responsibility; nothing in this
// package treats a decoded token as proof of anything.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed indicates the token is not a well-formed JWT or is missing
// the claims required for expiry estimation.
var ErrMalformed = errors.New("token: malformed")

// Claims carries the informational subset of a bearer token's payload.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

var parser = jwt.NewParser()

// Decode extracts claims from a bearer token without verifying its
// signature. It fails with ErrMalformed when the token does not have three
// dot-separated segments, the payload is not valid base64url JSON, or the
// subject/expiry claims are absent.
func Decode(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrMalformed
	}
	var rc jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(raw, &rc); err != nil {
		return Claims{}, ErrMalformed
	}
	if strings.TrimSpace(rc.Subject) == "" || rc.ExpiresAt == nil {
		return Claims{}, ErrMalformed
	}
	claims := Claims{
		Subject:   rc.Subject,
		ExpiresAt: rc.ExpiresAt.Time,
	}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time
	}
	return claims, nil
}

// Expired reports whether the token is expired at the given instant.
func (c Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Remaining returns the time left until expiry, clamped at zero.
func (c Claims) Remaining(now time.Time) time.Duration {
	left := c.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// ExpiringWithin reports whether less than threshold remains until expiry.
func (c Claims) ExpiringWithin(now time.Time, threshold time.Duration) bool {
	return c.Remaining(now) < threshold
}
