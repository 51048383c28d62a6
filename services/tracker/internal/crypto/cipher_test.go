package crypto

import (
	"errors"
	"strings"
	"testing"

	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func mustKey(t *testing.T) []byte {
	t.Helper()
	key, err := ParseKey(testSecret)
	require.NoError(t, err)
	return key
}

func TestCipher_RoundTrip(t *testing.T) {
	for _, alg := range []string{AlgorithmAESGCM, AlgorithmXChaCha} {
		t.Run(alg, func(t *testing.T) {
			c, err := New(alg, mustKey(t))
			require.NoError(t, err)
			assert.Equal(t, alg, c.Algorithm())

			env, err := c.Seal([]byte(`{"shipments":[]}`))
			require.NoError(t, err)
			assert.NotEmpty(t, env.IV)
			assert.NotContains(t, env.Content, "shipments")

			plain, err := c.Open(env)
			require.NoError(t, err)
			assert.Equal(t, `{"shipments":[]}`, string(plain))
		})
	}
}

func TestCipher_FreshNoncePerSeal(t *testing.T) {
	c, err := NewAESGCM(mustKey(t))
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		env, err := c.Seal([]byte("same plaintext"))
		require.NoError(t, err)
		if seen[env.IV] {
			t.Fatalf("nonce reused on iteration %d", i)
		}
		seen[env.IV] = true
	}
}

func TestCipher_WrongKeyFails(t *testing.T) {
	c, err := NewAESGCM(mustKey(t))
	require.NoError(t, err)
	env, err := c.Seal([]byte("secret"))
	require.NoError(t, err)

	other, err := DeriveKey(mustKey(t), "other")
	require.NoError(t, err)
	wrong, err := NewAESGCM(other)
	require.NoError(t, err)

	_, err = wrong.Open(env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainErr.ErrDecryptionFailure))
}

func TestCipher_CorruptEnvelope(t *testing.T) {
	c, err := NewXChaCha(mustKey(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		env  Envelope
	}{
		{name: "bad iv hex", env: Envelope{IV: "zz", Content: "AAAA"}},
		{name: "short iv", env: Envelope{IV: "0011", Content: "AAAA"}},
		{name: "bad base64", env: Envelope{IV: strings.Repeat("00", 24), Content: "%%%"}},
		{name: "garbage ciphertext", env: Envelope{IV: strings.Repeat("00", 24), Content: "AAAAAAAAAAAAAAAAAAAAAAAAAAAA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Open(tt.env)
			assert.ErrorIs(t, err, domainErr.ErrDecryptionFailure)
		})
	}
}

func TestNew_UnsupportedAlgorithm(t *testing.T) {
	_, err := New("rot13", mustKey(t))
	assert.ErrorIs(t, err, domainErr.ErrConfiguration)
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{name: "valid", secret: testSecret},
		{name: "missing", secret: "", wantErr: true},
		{name: "too short", secret: "abcd", wantErr: true},
		{name: "not hex", secret: strings.Repeat("zz", 32), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.secret)
			if tt.wantErr {
				assert.ErrorIs(t, err, domainErr.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, KeySize)
		})
	}
}

func TestDeriveKey_PurposeSeparation(t *testing.T) {
	master := mustKey(t)
	a, err := DeriveKey(master, "persist")
	require.NoError(t, err)
	b, err := DeriveKey(master, "telemetry")
	require.NoError(t, err)
	again, err := DeriveKey(master, "persist")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)
	assert.NotEqual(t, master, a)
}

func TestHash_Deterministic(t *testing.T) {
	h1, err := Hash(map[string]any{"b": 1, "a": []int{1, 2}})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"a": []int{1, 2}, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, HashString("filteredShipments"), HashString("shipmentStats"))
}
