package entities

import "time"

// DrawLock is the short-lived token granting exclusive draw execution
type DrawLock struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the lock's TTL has elapsed at the given time
func (l *DrawLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
