package domain

import "time"

// Token represents metadata of an issued access token.
type Token struct {
	ID        string
	UserID    string
	Role      Role
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Remaining is how long the token stays valid after now.
func (t Token) Remaining(now time.Time) time.Duration {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	left := t.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
