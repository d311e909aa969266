package domain

import "time"

// TokenSafetyMargin is how long before expiry a cached token stops being used.
const TokenSafetyMargin = 60 * time.Second

// CachedToken is a bearer token with its absolute expiry.
type CachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// ValidAt reports whether the token can still be used at now.
// A token is valid only while its expiry is strictly more than TokenSafetyMargin away.
func (t *CachedToken) ValidAt(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt.After(now.Add(TokenSafetyMargin))
}
