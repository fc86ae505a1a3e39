package shim

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

const sealedPrefix = "enc:"

// tokenCipher seals token material at rest. Without a key values pass through unchanged.
type tokenCipher struct {
	gcm cipher.AEAD
}

func newTokenCipher(key string) (*tokenCipher, error) {
	if key == "" {
		return &tokenCipher{}, nil
	}
	raw := []byte(key)
	switch len(raw) {
	case 16, 24, 32:
	default:
		return nil, errors.New("token encryption key must be 16, 24, or 32 bytes")
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &tokenCipher{gcm: gcm}, nil
}

func (c *tokenCipher) enabled() bool {
	return c != nil && c.gcm != nil
}

func (c *tokenCipher) seal(plaintext string) (string, error) {
	if plaintext == "" || !c.enabled() {
		return plaintext, nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := c.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	payload := append(nonce, ciphertext...)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(payload), nil
}

// open decrypts sealed values; values stored before a key was configured are returned as is.
func (c *tokenCipher) open(encoded string) (string, error) {
	if !strings.HasPrefix(encoded, sealedPrefix) {
		return encoded, nil
	}
	if !c.enabled() {
		return "", errors.New("sealed token found but no encryption key configured")
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(encoded, sealedPrefix))
	if err != nil {
		return "", err
	}
	nonceSize := c.gcm.NonceSize()
	if len(payload) < nonceSize {
		return "", errors.New("invalid token payload")
	}
	nonce, ciphertext := payload[:nonceSize], payload[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *tokenCipher) sealAccess(a AccessParameters) (AccessParameters, error) {
	var err error
	if a.AccessToken, err = c.seal(a.AccessToken); err != nil {
		return AccessParameters{}, err
	}
	if a.TokenSecret, err = c.seal(a.TokenSecret); err != nil {
		return AccessParameters{}, err
	}
	if a.RefreshToken, err = c.seal(a.RefreshToken); err != nil {
		return AccessParameters{}, err
	}
	return a, nil
}

func (c *tokenCipher) openAccess(a AccessParameters) (AccessParameters, error) {
	var err error
	if a.AccessToken, err = c.open(a.AccessToken); err != nil {
		return AccessParameters{}, err
	}
	if a.TokenSecret, err = c.open(a.TokenSecret); err != nil {
		return AccessParameters{}, err
	}
	if a.RefreshToken, err = c.open(a.RefreshToken); err != nil {
		return AccessParameters{}, err
	}
	return a, nil
}
