package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/Tanmoy095/LogiSynapse/shared/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// fakeSource replays messages through the handler, then returns.
type fakeSource struct {
	messages [][]byte
	results  []error
	closed   bool
}

func (f *fakeSource) Start(ctx context.Context, handler kafka.Handler) {
	for _, m := range f.messages {
		f.results = append(f.results, handler(ctx, nil, m))
	}
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func event(t *testing.T, name string, rec contracts.ShipmentRecord) []byte {
	t.Helper()
	b, err := json.Marshal(contracts.ShipmentEvent{Event: name, Payload: rec})
	require.NoError(t, err)
	return b
}

func TestBridge_AppliesCreatedEvents(t *testing.T) {
	store := shipments.NewStore(shipments.WithLogger(quietLogger()))
	rec := contracts.ShipmentRecord{ID: "1", ShipmentID: "SHP-1", ContainerID: "C-1", Status: contracts.StatusInTransit}
	src := &fakeSource{messages: [][]byte{
		event(t, contracts.EventShipmentCreated, rec),
		event(t, contracts.EventShipmentCreated, rec),
		event(t, "shipment.updated", contracts.ShipmentRecord{ID: "2"}),
		[]byte("{not json"),
		event(t, contracts.EventShipmentCreated, contracts.ShipmentRecord{}),
	}}

	require.NoError(t, NewBridge(src, store, quietLogger()).Run(context.Background()))

	assert.True(t, src.closed)
	for _, err := range src.results {
		assert.NoError(t, err)
	}
	got := store.GetState().Shipments
	require.Len(t, got, 1)
	assert.Equal(t, "SHP-1", got[0].ShipmentID)
}

type failingTarget struct{ shipments.State }

func (f failingTarget) Dispatch(ctx context.Context, action shipments.Action) error {
	return errors.New("store unavailable")
}

func (f failingTarget) GetState() shipments.State { return f.State }

func TestBridge_DispatchFailureAsksForRedelivery(t *testing.T) {
	b := NewBridge(&fakeSource{}, failingTarget{shipments.InitialState()}, quietLogger())
	err := b.Handle(context.Background(), nil, event(t, contracts.EventShipmentCreated, contracts.ShipmentRecord{ID: "9"}))
	assert.Error(t, err)
}

// staleTarget hides the cached list from the bridge, as if a fetch landed
// between the duplicate check and the dispatch.
type staleTarget struct{ *shipments.Store }

func (s staleTarget) GetState() shipments.State { return shipments.InitialState() }

func TestBridge_RacingDuplicateIsNotAppended(t *testing.T) {
	store := shipments.NewStore(shipments.WithLogger(quietLogger()))
	rec := contracts.ShipmentRecord{ID: "1", ShipmentID: "SHP-1"}
	require.NoError(t, store.Dispatch(context.Background(), shipments.FetchSucceeded([]contracts.ShipmentRecord{rec})))

	b := NewBridge(&fakeSource{}, staleTarget{store}, quietLogger())
	require.NoError(t, b.Handle(context.Background(), nil, event(t, contracts.EventShipmentCreated, rec)))

	assert.Len(t, store.GetState().Shipments, 1)
}
