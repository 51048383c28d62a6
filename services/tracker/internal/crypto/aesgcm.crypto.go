package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
)

// aeadCipher is the private implementation shared by both algorithms.
// Only the constructor differs.
type aeadCipher struct {
	aead      cipher.AEAD
	algorithm string
}

// NewAESGCM is the Constructor (Factory) for AES-256-GCM.
// It returns the interface, keeping the implementation details private.
func NewAESGCM(key []byte) (Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: aes key must be %d bytes, got %d", domainErr.ErrConfiguration, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErr.ErrConfiguration, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErr.ErrConfiguration, err)
	}
	return &aeadCipher{aead: aead, algorithm: AlgorithmAESGCM}, nil
}

func (c *aeadCipher) Algorithm() string { return c.algorithm }

// Seal implements the Cipher interface.
func (c *aeadCipher) Seal(plaintext []byte) (Envelope, error) {
	// Fresh random nonce EVERY call so identical plaintexts never share ciphertext.
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("crypto/rand failed: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	return Envelope{
		IV:      hex.EncodeToString(nonce),
		Content: base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Open implements the Cipher interface.
// Every failure is reported as ErrDecryptionFailure.
func (c *aeadCipher) Open(env Envelope) ([]byte, error) {
	nonce, err := hex.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid iv: %v", domainErr.ErrDecryptionFailure, err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", domainErr.ErrDecryptionFailure, c.aead.NonceSize(), len(nonce))
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid content: %v", domainErr.ErrDecryptionFailure, err)
	}
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErr.ErrDecryptionFailure, err)
	}
	return plaintext, nil
}
