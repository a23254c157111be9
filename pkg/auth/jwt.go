package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNotJWT = errors.New("token is not a JWT")

// Claims are the registered claims of a fleet API access token.
type Claims struct {
	jwt.RegisteredClaims
}

// Inspect decodes the claims of an access token without verifying its
// signature. Only the expiry is read.
func Inspect(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, ErrNotJWT
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of a JWT access token, or the zero time
// when the token is opaque or carries no expiry.
func ExpiresAt(tokenStr string) time.Time {
	claims, err := Inspect(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
