// Package signer issues and verifies this service's signed tokens: the
// CSRF state embedded in the OAuth redirect and the access/refresh bearer
// credentials handed to clients. One mechanism, three purposes, with a
// distinct HKDF-derived key per purpose so a token can never be replayed
// across uses.
package signer

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Purpose selects the signing key and is enforced as the token audience.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
	PurposeState   Purpose = "state"
)

var purposes = []Purpose{PurposeAccess, PurposeRefresh, PurposeState}

// Verification errors. Both are recoverable by the caller (re-authenticate
// or retry the flow); anything else from this package is a programming or
// configuration error.
var (
	ErrTokenExpired = errors.New("signer: token expired")
	ErrTokenInvalid = errors.New("signer: token invalid")
)

// Signer signs and verifies HS256 tokens.
type Signer struct {
	issuer string
	keys   map[Purpose][]byte
}

// New derives the per-purpose keys from the master secret.
func New(masterSecret, issuer string) (*Signer, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("signer: master secret is required")
	}
	s := &Signer{issuer: issuer, keys: make(map[Purpose][]byte, len(purposes))}
	for _, p := range purposes {
		key := make([]byte, 32)
		r := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte("authgate/"+string(p)))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("signer: derive %s key: %w", p, err)
		}
		s.keys[p] = key
	}
	return s, nil
}

// Sign issues a token for the given purpose. Registered claims (iss, aud,
// iat, nbf, exp, jti) are set here; extra claims are merged on top.
func (s *Signer) Sign(p Purpose, claims map[string]any, ttl time.Duration) (string, error) {
	key, ok := s.keys[p]
	if !ok {
		return "", fmt.Errorf("signer: unknown purpose %q", p)
	}

	now := time.Now().UTC()
	mc := jwtv5.MapClaims{
		"iss": s.issuer,
		"aud": string(p),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}
	for k, v := range claims {
		mc[k] = v
	}

	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, mc).SignedString(key)
}

// Verify parses and validates a token for the given purpose. Returns
// ErrTokenExpired for an expired token and ErrTokenInvalid for everything
// else (bad signature, wrong purpose, malformed).
func (s *Signer) Verify(p Purpose, token string) (jwtv5.MapClaims, error) {
	key, ok := s.keys[p]
	if !ok {
		return nil, ErrTokenInvalid
	}

	tk, err := jwtv5.Parse(token,
		func(*jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithAudience(string(p)),
		jwtv5.WithIssuer(s.issuer),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	mc, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return mc, nil
}

// StringClaim extracts a string claim, empty if absent or not a string.
func StringClaim(m jwtv5.MapClaims, key string) string {
	v, _ := m[key].(string)
	return v
}
