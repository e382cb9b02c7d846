// Package secretbox wraps AES-256-GCM for encrypting provider tokens at
// rest. Ciphertext, nonce and authentication tag are kept as three separate
// base64 values so they map onto three database columns.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeyLen is the required key size in bytes (AES-256).
	KeyLen = 32
	// nonce and tag sizes follow the GCM recommendation: 96-bit nonce,
	// 128-bit tag.
	nonceLen = 12
	tagLen   = 16
)

// ErrIntegrity is returned when the authentication tag does not verify:
// the ciphertext was tampered with or the key is wrong. Callers must treat
// it as a hard failure, never as recoverable input.
var ErrIntegrity = errors.New("secretbox: integrity check failed")

// EncryptedValue is one encrypted secret at rest. Each field is standard
// base64.
type EncryptedValue struct {
	Ciphertext string
	IV         string
	Tag        string
}

// Codec encrypts and decrypts with a fixed externally supplied key.
type Codec struct {
	aead cipher.AEAD
}

// New builds a Codec from a 64-character hex key (32 bytes). The codec
// never generates or persists keys itself.
func New(hexKey string) (*Codec, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("secretbox: key is not hex: %w", err)
	}
	if len(key) != KeyLen {
		return nil, fmt.Errorf("secretbox: key must be %d bytes, got %d", KeyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: cipher.NewGCM: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. Every call draws a
// new nonce; reuse under the same key would break GCM entirely.
func (c *Codec) Encrypt(plaintext string) (EncryptedValue, error) {
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedValue{}, fmt.Errorf("secretbox: nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	return EncryptedValue{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Fingerprint returns the hex SHA-256 digest of a plaintext secret.
// Encrypt draws a fresh nonce every call, so two encryptions of the same
// token never compare equal; uniqueness constraints on stored tokens must
// key on this digest instead of the ciphertext.
func Fingerprint(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Decrypt opens an EncryptedValue. Returns ErrIntegrity when the tag does
// not verify.
func (c *Codec) Decrypt(v EncryptedValue) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(v.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(v.IV)
	if err != nil {
		return "", fmt.Errorf("secretbox: decode iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(v.Tag)
	if err != nil {
		return "", fmt.Errorf("secretbox: decode tag: %w", err)
	}
	if len(nonce) != nonceLen {
		return "", fmt.Errorf("secretbox: iv must be %d bytes, got %d", nonceLen, len(nonce))
	}
	if len(tag) != tagLen {
		return "", fmt.Errorf("secretbox: tag must be %d bytes, got %d", tagLen, len(tag))
	}

	pt, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(pt), nil
}
