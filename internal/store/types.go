package store

import (
	"time"

	"github.com/authgate/authgate/internal/security/secretbox"
)

// User is one identity record. Soft deleted, never hard deleted.
type User struct {
	ID                string
	Email             string
	FirstName         string
	LastName          string
	AvatarURL         string
	ProviderAccountID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// SessionStatus is the session state machine. Transitions are
// one-directional: active -> revoked or active -> expired, both terminal.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionRevoked SessionStatus = "revoked"
	SessionExpired SessionStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionRevoked || s == SessionExpired
}

// Session is one authenticated login. The provider tokens live here and
// only here, encrypted, each with its own iv/tag pair.
type Session struct {
	ID       string
	UserID   string
	Status   SessionStatus
	Provider string

	AccessToken          secretbox.EncryptedValue
	AccessTokenExpiresAt time.Time

	RefreshToken          secretbox.EncryptedValue
	RefreshTokenExpiresAt time.Time
	// RefreshTokenHash is the SHA-256 digest of the plaintext refresh
	// token; the unique constraint keys on it because the ciphertext is
	// nonce-salted and never repeats.
	RefreshTokenHash string

	Scope             string
	ProviderAccountID string

	LastAccessedAt time.Time
	RevokedAt      *time.Time
	ExpiresAt      time.Time
	Metadata       map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}
