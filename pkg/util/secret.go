package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SecretCodec encrypts and decrypts mail account app codes at rest.
// Unlike user passwords these must be recoverable: the connector needs the
// plaintext to authenticate against the IMAP server.
type SecretCodec struct {
	key []byte
}

// NewSecretCodec takes a hex-encoded 32-byte key. An empty key returns a
// nil codec; callers then treat stored values as plaintext.
func NewSecretCodec(hexKey string) (*SecretCodec, error) {
	if hexKey == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("secret key must be 32 bytes")
	}

	return &SecretCodec{key: key}, nil
}

// Encrypt seals the plaintext and returns base64(nonce || ciphertext).
func (c *SecretCodec) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *SecretCodec) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid sealed secret: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	if len(sealed) < aead.NonceSize() {
		return "", errors.New("sealed secret too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}
