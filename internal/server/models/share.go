package models

import "time"

// ShareCapability grants public read access to one file or folder via an
// unguessable token, optionally password-gated and time-limited.
type ShareCapability struct {
	ID      string
	FileID  string
	OwnerID string

	// Token is the URL-safe capability token. Cryptographically random,
	// globally unique.
	Token string

	// PasswordHash is the bcrypt hash of the share password, nil when the
	// share is not password protected. The plaintext is never stored.
	PasswordHash *string

	// ExpiresAt is nil for shares that never expire.
	ExpiresAt *time.Time

	CreatedAt time.Time
}

// PasswordProtected reports whether a password gate is set.
func (s *ShareCapability) PasswordProtected() bool { return s.PasswordHash != nil }

// ExpiredAt reports whether the capability is past its expiry at now.
// Capabilities without an expiry never expire.
func (s *ShareCapability) ExpiredAt(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
