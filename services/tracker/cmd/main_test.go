package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/realtime"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/selector"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoute(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	points, err := parseRoute("40.7,-74.0; 41.1,-73.2;", at)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, [2]float64{41.1, -73.2}, points[1].Coordinates)
	assert.Equal(t, at, points[0].Timestamp)

	for _, bad := range []string{"", ";", "40.7", "a,b", "1,2,3"} {
		_, err := parseRoute(bad, at)
		assert.Error(t, err, bad)
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, shipments.Stats{"total": 3, "Delayed": 1, "In Transit": 2})
	assert.Equal(t, "total        3\nDelayed      1\nIn Transit   2\n", buf.String())
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "fetch", "create", "track", "stats"} {
		assert.True(t, names[want], want)
	}
}

// blockingServer serves until ctx ends.
type blockingServer struct{ stopped chan struct{} }

func (b *blockingServer) Serve(ctx context.Context) error {
	<-ctx.Done()
	close(b.stopped)
	return nil
}

func TestServeAndFollow_TrackerFailureKeepsServing(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	key, err := crypto.ParseKey("1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100")
	require.NoError(t, err)
	c, err := crypto.NewAESGCM(key)
	require.NoError(t, err)
	tr, err := realtime.NewTracker("ws"+strings.TrimPrefix(dead.URL, "http"), "SHP-1", c,
		realtime.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		realtime.WithRetry(time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := &blockingServer{stopped: make(chan struct{})}
	result := make(chan error, 1)
	go func() { result <- serveAndFollow(ctx, srv, tr) }()

	require.Eventually(t, func() bool { return tr.Status() == realtime.StatusError }, time.Second, time.Millisecond)
	// several failed dials later the server is still up
	time.Sleep(30 * time.Millisecond)
	select {
	case <-srv.stopped:
		t.Fatal("tracker failure stopped the server")
	default:
	}

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeAndFollow_WithoutTracker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &blockingServer{stopped: make(chan struct{})}
	result := make(chan error, 1)
	go func() { result <- serveAndFollow(ctx, srv, nil) }()
	cancel()
	assert.NoError(t, <-result)
}

func TestShipmentsToShow_StatusFlagIsOneOff(t *testing.T) {
	views, err := shipments.NewSelectors(selector.NewRegistry(nil))
	require.NoError(t, err)

	saved := "Delayed"
	state := shipments.InitialState()
	state.Shipments = []contracts.ShipmentRecord{
		{ID: "a", Status: contracts.StatusInTransit},
		{ID: "b", Status: contracts.StatusDelayed},
	}
	state.Filter = &saved

	list, err := shipmentsToShow(views, state, string(contracts.StatusInTransit))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	list, err = shipmentsToShow(views, state, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "Delayed", *state.Filter)
}
