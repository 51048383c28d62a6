// services/tracker/internal/crypto/cipher.crypto.go

package crypto

import (
	"fmt"
	"strings"

	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
)

// Envelope is the sealed form of a plaintext: a per-call random nonce (IV)
// and the authenticated ciphertext. Both are text-encoded so the envelope
// can be stored as JSON.
type Envelope struct {
	IV      string `json:"iv"`      // hex
	Content string `json:"content"` // base64
}

// Cipher defines the contract for opaque-at-rest data.
// The codec and the telemetry recorder depend only on this interface,
// never on a concrete algorithm.
type Cipher interface {
	// Seal encrypts plaintext with a fresh nonce. A nonce is never reused.
	Seal(plaintext []byte) (Envelope, error)
	// Open authenticates and decrypts an envelope produced by Seal.
	Open(env Envelope) ([]byte, error)
	// Algorithm names the AEAD in use.
	Algorithm() string
}

const (
	AlgorithmAESGCM  = "aes-256-gcm"
	AlgorithmXChaCha = "xchacha20-poly1305"
	DefaultAlgorithm = AlgorithmAESGCM
)

// New builds a Cipher for the named algorithm. An empty name selects the default.
func New(algorithm string, key []byte) (Cipher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", AlgorithmAESGCM, "aes-gcm", "aes":
		return NewAESGCM(key)
	case AlgorithmXChaCha, "xchacha":
		return NewXChaCha(key)
	default:
		return nil, fmt.Errorf("%w: unsupported cipher %q", domainErr.ErrConfiguration, algorithm)
	}
}
