package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// shortCodeAlphabet excludes visually ambiguous characters (0, O, I).
const shortCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ123456789"

const shortCodeLength = 8

// NewShortCode returns a human-typeable activation code. Uniqueness is not
// guaranteed; callers must collision-check against their store.
func NewShortCode() (string, error) {
	return randomFromAlphabet(shortCodeAlphabet, shortCodeLength)
}

// NewSecret returns 32 bytes of cryptographically secure randomness,
// hex-encoded. The plaintext is handed out exactly once; only its digest is
// ever persisted.
func NewSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cannot generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Hash returns the SHA-256 hex digest of value.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// NewPickupCode returns a short display code like "A23". Not a security
// artifact.
func NewPickupCode() (string, error) {
	letter, err := randomFromAlphabet("ABCDEFGHJKMNPQRSTUVWXYZ", 1)
	if err != nil {
		return "", err
	}
	digits, err := randomFromAlphabet("0123456789", 2)
	if err != nil {
		return "", err
	}
	return letter + digits, nil
}

// NewSessionToken returns a URL-safe token for QR/table sessions. Callers
// must collision-check against currently active sessions.
func NewSessionToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cannot generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomFromAlphabet(alphabet string, length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("cannot generate random code: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
