// Package persist moves the shipments slice to and from durable storage,
// always encrypted, versioned, and size-limited.
package persist

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
)

const (
	// CurrentPersistVersion is the schema version written into every envelope.
	// Envelopes carrying any other version are discarded on load.
	CurrentPersistVersion = 2

	// DefaultMaxStateSize caps the serialized slice at 1024 KB.
	DefaultMaxStateSize = 1024 * 1024
)

// Envelope is the stored form: the cipher envelope plus the schema version.
type Envelope struct {
	crypto.Envelope
	Version int `json:"version"`
}

// Decision is the outcome of Migrate.
type Decision int

const (
	Discard Decision = iota
	Keep
)

func (d Decision) String() string {
	if d == Keep {
		return "keep"
	}
	return "discard"
}

// Codec serializes and encrypts the slice. It depends only on the Cipher
// capability, never on a concrete algorithm.
type Codec struct {
	cipher  crypto.Cipher
	maxSize int
	version int
	logger  *slog.Logger
}

type CodecOption func(*Codec)

// WithMaxSize overrides the serialized size limit in bytes.
func WithMaxSize(n int) CodecOption { return func(c *Codec) { c.maxSize = n } }

// WithVersion overrides the schema version. Used to test migrations.
func WithVersion(v int) CodecOption { return func(c *Codec) { c.version = v } }

func WithCodecLogger(l *slog.Logger) CodecOption { return func(c *Codec) { c.logger = l } }

// NewCodec accepts a nil cipher so that a misconfigured process fails on the
// first write instead of silently persisting plaintext.
func NewCodec(cipher crypto.Cipher, opts ...CodecOption) *Codec {
	c := &Codec{
		cipher:  cipher,
		maxSize: DefaultMaxStateSize,
		version: CurrentPersistVersion,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Version() int { return c.version }

// Encode serializes state and seals it with a fresh nonce. Nothing is
// produced when the cipher is missing or the state is over the size limit.
func (c *Codec) Encode(state shipments.State) (Envelope, error) {
	if c.cipher == nil {
		return Envelope{}, fmt.Errorf("%w: no persistence key configured", domainErr.ErrConfiguration)
	}
	plain, err := json.Marshal(state)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode state: %w", err)
	}
	if len(plain) > c.maxSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes > %d", domainErr.ErrSizeLimitExceeded, len(plain), c.maxSize)
	}
	sealed, err := c.cipher.Seal(plain)
	if err != nil {
		return Envelope{}, fmt.Errorf("seal state: %w", err)
	}
	return Envelope{Envelope: sealed, Version: c.version}, nil
}

// Decode reverses Encode. Every failure is absorbed: it logs a warning and
// reports false, which callers treat as "no stored state".
func (c *Codec) Decode(env Envelope) (shipments.State, bool) {
	if c.cipher == nil {
		c.logger.Warn("persisted state ignored", slog.String("reason", "no persistence key configured"))
		return shipments.State{}, false
	}
	plain, err := c.cipher.Open(env.Envelope)
	if err != nil {
		c.logger.Warn("persisted state ignored", slog.Any("error", err))
		return shipments.State{}, false
	}
	var state shipments.State
	if err := json.Unmarshal(plain, &state); err != nil {
		c.logger.Warn("persisted state ignored",
			slog.Any("error", fmt.Errorf("%w: %v", domainErr.ErrDecryptionFailure, err)))
		return shipments.State{}, false
	}
	return state, true
}

// Migrate keeps only envelopes written with the current schema version.
// There is no field-level upgrade path.
func (c *Codec) Migrate(storedVersion int) Decision {
	if storedVersion == c.version {
		return Keep
	}
	return Discard
}

func (c *Codec) Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Unmarshal parses a stored value; malformed input reports false.
func (c *Codec) Unmarshal(b []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		c.logger.Warn("persisted envelope is malformed", slog.Any("error", err))
		return Envelope{}, false
	}
	if env.IV == "" || env.Content == "" {
		c.logger.Warn("persisted envelope is incomplete")
		return Envelope{}, false
	}
	return env, true
}
