package main

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errTokenExpired = errors.New("auth token has expired")

// checkTokenExpiry inspects a bearer token without verifying its signature.
// Opaque tokens are accepted as is; a JWT whose exp claim is in the past
// returns errTokenExpired.
func checkTokenExpiry(token string, now time.Time) (time.Time, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if strings.Count(token, ".") != 2 {
		return time.Time{}, nil
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, nil
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	expires := claims.ExpiresAt.Time
	if !now.Before(expires) {
		return expires, errTokenExpired
	}
	return expires, nil
}
