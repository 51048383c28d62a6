package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/store"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newCipher(t *testing.T, purpose string) crypto.Cipher {
	t.Helper()
	master, err := crypto.ParseKey(testSecret)
	require.NoError(t, err)
	key, err := crypto.DeriveKey(master, purpose)
	require.NoError(t, err)
	c, err := crypto.New(crypto.DefaultAlgorithm, key)
	require.NoError(t, err)
	return c
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func loadedState() shipments.State {
	eta := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 5, 30, 9, 15, 0, 0, time.UTC)
	errMsg := "previous failure"
	filter := "Delayed"
	return shipments.State{
		Shipments: []contracts.ShipmentRecord{
			{
				ID: "a", ShipmentID: "S-1", ContainerID: "C-1", CurrentLocation: "Rotterdam",
				CurrentEta: &eta, AverageSpeed: 17.5, Status: contracts.StatusInTransit,
				Route: []contracts.RoutePoint{{Coordinates: [2]float64{51.9, 4.4}, Timestamp: updated}},
			},
			{ID: "b", Status: contracts.StatusDelayed},
		},
		Status:      shipments.StatusFailed,
		Error:       &errMsg,
		Filter:      &filter,
		LastUpdated: &updated,
		Version:     3,
		Persist:     &shipments.PersistMeta{Version: CurrentPersistVersion, Rehydrated: true},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(newCipher(t, "persist"), WithCodecLogger(quietLogger()))

	for _, state := range []shipments.State{shipments.InitialState(), loadedState()} {
		env, err := codec.Encode(state)
		require.NoError(t, err)
		assert.Equal(t, CurrentPersistVersion, env.Version)
		assert.NotContains(t, env.Content, "Rotterdam")

		b, err := codec.Marshal(env)
		require.NoError(t, err)
		parsed, ok := codec.Unmarshal(b)
		require.True(t, ok)

		got, ok := codec.Decode(parsed)
		require.True(t, ok)
		assert.Equal(t, state, got)
	}
}

func TestCodec_EnvelopeShape(t *testing.T) {
	codec := NewCodec(newCipher(t, "persist"))
	env, err := codec.Encode(shipments.InitialState())
	require.NoError(t, err)
	b, err := codec.Marshal(env)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, raw, "iv")
	assert.Contains(t, raw, "content")
	assert.EqualValues(t, CurrentPersistVersion, raw["version"])
}

func TestCodec_FreshIVPerEncode(t *testing.T) {
	codec := NewCodec(newCipher(t, "persist"))
	a, err := codec.Encode(loadedState())
	require.NoError(t, err)
	b, err := codec.Encode(loadedState())
	require.NoError(t, err)
	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Content, b.Content)
}

func TestCodec_SizeLimit(t *testing.T) {
	codec := NewCodec(newCipher(t, "persist"))
	state := shipments.InitialState()
	state.Shipments = []contracts.ShipmentRecord{{ID: "big", CurrentLocation: strings.Repeat("x", DefaultMaxStateSize)}}

	env, err := codec.Encode(state)
	assert.ErrorIs(t, err, domainErr.ErrSizeLimitExceeded)
	assert.Equal(t, Envelope{}, env)

	small := NewCodec(newCipher(t, "persist"), WithMaxSize(16))
	_, err = small.Encode(shipments.InitialState())
	assert.ErrorIs(t, err, domainErr.ErrSizeLimitExceeded)
}

func TestCodec_NoCipherFailsWrite(t *testing.T) {
	codec := NewCodec(nil, WithCodecLogger(quietLogger()))
	_, err := codec.Encode(shipments.InitialState())
	assert.ErrorIs(t, err, domainErr.ErrConfiguration)

	_, ok := codec.Decode(Envelope{})
	assert.False(t, ok)
}

func TestCodec_WrongKeyYieldsNoState(t *testing.T) {
	writer := NewCodec(newCipher(t, "persist"))
	reader := NewCodec(newCipher(t, "some-other-purpose"), WithCodecLogger(quietLogger()))

	env, err := writer.Encode(loadedState())
	require.NoError(t, err)
	state, ok := reader.Decode(env)
	assert.False(t, ok)
	assert.Equal(t, shipments.State{}, state)
}

func TestCodec_Migrate(t *testing.T) {
	codec := NewCodec(newCipher(t, "persist"))
	assert.Equal(t, Keep, codec.Migrate(CurrentPersistVersion))
	assert.Equal(t, Discard, codec.Migrate(1))
	assert.Equal(t, Discard, codec.Migrate(CurrentPersistVersion+1))
	assert.Equal(t, "discard", Discard.String())
}

func TestPersistor_OldVersionLoadsInitialState(t *testing.T) {
	st := store.NewMemoryStore()
	c := newCipher(t, "persist")
	ctx := context.Background()

	old := NewPersistor(NewCodec(c, WithVersion(1)), st, quietLogger())
	require.NoError(t, old.Flush(ctx, loadedState()))

	current := NewPersistor(NewCodec(c, WithCodecLogger(quietLogger())), st, quietLogger())
	assert.Equal(t, shipments.InitialState(), current.Load(ctx))
}

func TestPersistor_LoadColdStarts(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		value []byte
	}{
		{name: "not json", value: []byte("{{{")},
		{name: "missing fields", value: []byte(`{"version":2}`)},
		{name: "corrupt ciphertext", value: []byte(`{"iv":"000102030405060708090a0b","content":"AAAA","version":2}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			require.NoError(t, st.Put(ctx, StorageKey, tt.value))
			p := NewPersistor(NewCodec(newCipher(t, "persist"), WithCodecLogger(quietLogger())), st, quietLogger())
			assert.Equal(t, shipments.InitialState(), p.Load(ctx))
		})
	}

	empty := NewPersistor(NewCodec(newCipher(t, "persist")), store.NewMemoryStore(), quietLogger())
	assert.Equal(t, shipments.InitialState(), empty.Load(ctx))
}

func TestPersistor_RehydrateAttachesMetadata(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := NewPersistor(NewCodec(newCipher(t, "persist")), st, quietLogger())

	saved := loadedState()
	saved.Persist = nil
	require.NoError(t, p.Flush(ctx, saved))

	s := shipments.NewStore(shipments.WithReducer(p.Reducer(shipments.NewReducer(time.Now))))
	assert.Nil(t, s.GetState().Persist)

	require.NoError(t, p.Rehydrate(ctx, s))
	state := s.GetState()
	require.NotNil(t, state.Persist)
	assert.Equal(t, CurrentPersistVersion, state.Persist.Version)
	assert.True(t, state.Persist.Rehydrated)
	assert.Len(t, state.Shipments, 2)

	// metadata survives ordinary actions and resets
	require.NoError(t, s.Dispatch(ctx, shipments.SetFilter("x")))
	require.NoError(t, s.Dispatch(ctx, shipments.Reset()))
	assert.NotNil(t, s.GetState().Persist)
}

func TestPersistor_BackgroundWriterStoresLatest(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	codec := NewCodec(newCipher(t, "persist"))
	p := NewPersistor(codec, st, quietLogger())

	s := shipments.NewStore(shipments.WithReducer(p.Reducer(shipments.NewReducer(time.Now))))
	unsubscribe := s.Subscribe(p.Listener())
	defer unsubscribe()
	p.Start()

	for _, f := range []string{"a", "b", "c", "Delivered"} {
		require.NoError(t, s.Dispatch(ctx, shipments.SetFilter(f)))
	}
	p.Stop()

	reloaded := NewPersistor(codec, st, quietLogger()).Load(ctx)
	require.NotNil(t, reloaded.Filter)
	assert.Equal(t, "Delivered", *reloaded.Filter)
}

func TestPersistor_UnchangedStateIsNotQueued(t *testing.T) {
	p := NewPersistor(NewCodec(newCipher(t, "persist")), store.NewMemoryStore(), quietLogger())
	state := loadedState()
	p.Listener()(state, state)
	assert.Len(t, p.pending, 0)

	next := state
	next.Version++
	p.Listener()(state, next)
	assert.Len(t, p.pending, 1)
}

func TestPersistor_OversizedWriteDropped(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	st := store.NewMemoryStore()
	p := NewPersistor(NewCodec(newCipher(t, "persist"), WithMaxSize(32)), st, slog.New(slog.NewTextHandler(&logs, nil)))

	err := p.Flush(ctx, loadedState())
	assert.ErrorIs(t, err, domainErr.ErrSizeLimitExceeded)
	assert.Contains(t, logs.String(), "state too large")
	_, err = st.Get(ctx, StorageKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPersistor_Purge(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := NewPersistor(NewCodec(newCipher(t, "persist")), st, quietLogger())
	require.NoError(t, p.Flush(ctx, loadedState()))
	require.NoError(t, p.Purge(ctx))
	_, err := st.Get(ctx, StorageKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
