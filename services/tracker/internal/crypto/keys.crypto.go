package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of every symmetric key in bytes (256 bits).
const KeySize = 32

// ParseKey decodes a 64 hex-character secret into a 256-bit key.
// A missing or malformed secret is a ConfigurationError.
func ParseKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: encryption secret missing", domainErr.ErrConfiguration)
	}
	if len(secret) != KeySize*2 {
		return nil, fmt.Errorf("%w: encryption secret must be %d hex characters, got %d", domainErr.ErrConfiguration, KeySize*2, len(secret))
	}
	key, err := hex.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption secret is not hex: %v", domainErr.ErrConfiguration, err)
	}
	return key, nil
}

// DeriveKey derives an independent subkey for one purpose from the master key
// (HKDF-SHA256). The persistence and telemetry keys never share bytes.
func DeriveKey(master []byte, purpose string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes", domainErr.ErrConfiguration, KeySize)
	}
	out := make([]byte, KeySize)
	r := hkdf.New(sha256.New, master, nil, []byte("logisynapse/tracker/"+purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hkdf failed: %w", err)
	}
	return out, nil
}
