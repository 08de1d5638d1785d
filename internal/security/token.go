package security

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo holds the claims the chat client reads from its bearer token.
// The signature is never checked on the client; the server remains the authority.
type TokenInfo struct {
	UserID    int64
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Expired reports whether the token's exp claim lies at or before now.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// InspectToken decodes a JWT without verifying its signature.
func InspectToken(tokenStr string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parse token: %w", err)
	}

	var info TokenInfo
	switch v := claims["user_id"].(type) {
	case float64:
		info.UserID = int64(v)
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.UserID = id
		}
	}
	info.Subject, _ = claims["sub"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return TokenInfo{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// Usable reports whether tokenStr is non-empty and, if it is a JWT with an exp
// claim, not yet expired. Opaque tokens are treated as usable.
func Usable(tokenStr string, now time.Time) bool {
	if tokenStr == "" {
		return false
	}
	info, err := InspectToken(tokenStr)
	if err != nil {
		return true
	}
	return !info.Expired(now)
}
