package fleet

import (
	"time"

	"batch-delete/pkg/auth"
)

// expirySkew is subtracted from the reported lifetime so a token is
// refreshed before the API starts rejecting it.
const expirySkew = 30 * time.Second

// Token is an access token for the fleet API.
type Token struct {
	AccessToken string
	IssuedAt    time.Time
	ExpiresAt   time.Time // zero when unknown
}

func newToken(access string, expiresIn int64, now time.Time) Token {
	t := Token{AccessToken: access, IssuedAt: now}
	if expiresIn > 0 {
		t.ExpiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	} else {
		t.ExpiresAt = auth.ExpiresAt(access)
	}
	return t
}

// Valid reports whether the token is present and not about to expire.
func (t Token) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(t.ExpiresAt.Add(-expirySkew))
}
