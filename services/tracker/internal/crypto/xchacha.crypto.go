package crypto

import (
	"fmt"

	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// NewXChaCha builds an XChaCha20-Poly1305 cipher. Its 24-byte nonce makes
// random nonces safe for a very large number of messages under one key.
func NewXChaCha(key []byte) (Cipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: xchacha key must be %d bytes, got %d", domainErr.ErrConfiguration, chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErr.ErrConfiguration, err)
	}
	return &aeadCipher{aead: aead, algorithm: AlgorithmXChaCha}, nil
}
