package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	raw := make([]byte, KeyLen)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return hex.EncodeToString(raw)
}

func TestNew_RejectsBadKeys(t *testing.T) {
	t.Parallel()

	_, err := New("not-hex")
	require.Error(t, err)

	// 16 bytes instead of 32
	_, err = New(hex.EncodeToString(make([]byte, 16)))
	require.Error(t, err)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()

	c, err := New(testKey(t))
	require.NoError(t, err)

	for _, msg := range []string{"", "a", "ya29.access-token-value ✓"} {
		v, err := c.Encrypt(msg)
		require.NoError(t, err)
		require.NotEmpty(t, v.IV)
		require.NotEmpty(t, v.Tag)

		pt, err := c.Decrypt(v)
		require.NoError(t, err)
		require.Equal(t, msg, pt)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	t.Parallel()

	c, err := New(testKey(t))
	require.NoError(t, err)

	a, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	require.NotEqual(t, a.IV, b.IV)
	require.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestFingerprint_StableAcrossEncryptions(t *testing.T) {
	t.Parallel()

	c, err := New(testKey(t))
	require.NoError(t, err)

	// Two encryptions of one token never compare equal, so the digest is
	// the only deterministic handle on the stored value.
	a, err := c.Encrypt("rt-same-token")
	require.NoError(t, err)
	b, err := c.Encrypt("rt-same-token")
	require.NoError(t, err)
	require.NotEqual(t, a.Ciphertext, b.Ciphertext)

	require.Equal(t, Fingerprint("rt-same-token"), Fingerprint("rt-same-token"))
	require.Len(t, Fingerprint("rt-same-token"), 64)
	require.NotEqual(t, Fingerprint("rt-same-token"), Fingerprint("rt-other-token"))
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	t.Parallel()

	c, err := New(testKey(t))
	require.NoError(t, err)

	v, err := c.Encrypt("top secret refresh token")
	require.NoError(t, err)

	flip := func(b64 string) string {
		raw, err := base64.StdEncoding.DecodeString(b64)
		require.NoError(t, err)
		require.NotEmpty(t, raw)
		raw[0] ^= 0x01
		return base64.StdEncoding.EncodeToString(raw)
	}

	tampered := v
	tampered.Ciphertext = flip(v.Ciphertext)
	_, err = c.Decrypt(tampered)
	require.True(t, errors.Is(err, ErrIntegrity), "tampered ciphertext: got %v", err)

	tampered = v
	tampered.Tag = flip(v.Tag)
	_, err = c.Decrypt(tampered)
	require.True(t, errors.Is(err, ErrIntegrity), "tampered tag: got %v", err)

	tampered = v
	tampered.IV = flip(v.IV)
	_, err = c.Decrypt(tampered)
	require.True(t, errors.Is(err, ErrIntegrity), "tampered iv: got %v", err)
}

func TestDecrypt_WrongKey(t *testing.T) {
	t.Parallel()

	c1, err := New(testKey(t))
	require.NoError(t, err)

	other := make([]byte, KeyLen)
	for i := range other {
		other[i] = byte(255 - i)
	}
	c2, err := New(hex.EncodeToString(other))
	require.NoError(t, err)

	v, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(v)
	require.True(t, errors.Is(err, ErrIntegrity))
}
