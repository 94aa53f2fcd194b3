// Package crypto implements password hashing, token generation, and
// symmetric content encryption for snippets.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2-HMAC-SHA256 parameters. The iteration count is part of the
// stored-hash contract and must not change without a migration.
const (
	pbkdf2Iterations = 100000
	pbkdf2KeyLen     = 32
	saltLen          = 16
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// RandToken returns a URL-safe bearer token with n bytes of entropy
// (base64url, unpadded).
func RandToken(n int) (string, error) {
	b, err := RandBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewSalt returns a fresh random password salt.
func NewSalt() ([]byte, error) {
	return RandBytes(saltLen)
}

// HashPassword returns the PBKDF2-HMAC-SHA256 hash of password using
// the provided salt.
func HashPassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
}

// VerifyPassword verifies password against the expected hash and salt
// in constant time.
func VerifyPassword(password string, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// HashIP returns a salted, hex-encoded hash of an IP string so raw
// addresses are never stored.
func HashIP(ip string, salt []byte) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil))
}
