package auth

import "errors"

// The auth error surface is a closed set: callers dispatch on these
// sentinels (plus the oauth, secretbox and store sentinels that pass
// through wrapped) with errors.Is, never on message text.
var (
	// ErrMissingRefreshToken means the provider granted an access token but
	// no refresh token, so the session could never be renewed. The login is
	// rejected rather than creating a session that dies in an hour.
	ErrMissingRefreshToken = errors.New("auth: provider returned no refresh token")

	// ErrIncompleteUserInfo means the provider profile lacks the subject id
	// or email needed to key the user record.
	ErrIncompleteUserInfo = errors.New("auth: provider user info incomplete")

	// ErrSessionNotFound means no session row exists for the given id.
	ErrSessionNotFound = errors.New("auth: session not found")

	// ErrSessionNotActive means the session reached a terminal state
	// (revoked or expired) and can no longer serve tokens.
	ErrSessionNotActive = errors.New("auth: session not active")

	// ErrRefreshTokenExpired means the stored provider refresh token is
	// past its lifetime; the user must authenticate again.
	ErrRefreshTokenExpired = errors.New("auth: refresh token expired")
)
