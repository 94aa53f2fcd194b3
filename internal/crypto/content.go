package crypto

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ContentCipher encrypts and decrypts snippet content with the
// application-wide key using XChaCha20-Poly1305. Password-derived
// content keys are superseded: once a snippet has a password, content
// is always sealed with this key, and the password hash alone gates
// access.
type ContentCipher struct {
	key []byte
}

// NewContentCipher constructs a cipher from a 32-byte application key.
func NewContentCipher(key []byte) (*ContentCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("crypto: content key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &ContentCipher{key: key}, nil
}

// Encrypt seals plaintext with a random nonce and returns base64
// ciphertext suitable for a text column.
func (c *ContentCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, []byte(plaintext), nil)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens base64 ciphertext. A tampered or malformed blob yields
// ok=false rather than an error so callers can answer with a generic
// wrong-password response instead of failing.
func (c *ContentCipher) Decrypt(ciphertext string) (plaintext string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < chacha20poly1305.NonceSizeX {
		return "", false
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", false
	}
	nonce := raw[:chacha20poly1305.NonceSizeX]
	ct := raw[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", false
	}
	return string(pt), true
}
