package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100"

func testCipher(t *testing.T) crypto.Cipher {
	t.Helper()
	key, err := crypto.ParseKey(testSecret)
	require.NoError(t, err)
	c, err := crypto.NewAESGCM(key)
	require.NoError(t, err)
	return c
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func sealedFrame(t *testing.T, c crypto.Cipher, lat, lng float64) []byte {
	t.Helper()
	plain, err := json.Marshal(contracts.RoutePoint{Coordinates: [2]float64{lat, lng}, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	env, err := c.Seal(plain)
	require.NoError(t, err)
	frame, err := json.Marshal(env)
	require.NoError(t, err)
	return frame
}

// wsServer upgrades every request, records its path and hands the
// connection to serve.
func wsServer(t *testing.T, serve func(conn *websocket.Conn)) (*httptest.Server, *string) {
	t.Helper()
	var path string
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, &path
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTracker_AppendsDecryptedFixes(t *testing.T) {
	c := testCipher(t)
	frames := [][]byte{
		sealedFrame(t, c, 40.7, -74.0),
		[]byte("not an envelope"),
		sealedFrame(t, c, 41.0, -73.5),
	}
	srv, path := wsServer(t, func(conn *websocket.Conn) {
		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, f)
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		time.Sleep(50 * time.Millisecond)
	})

	var mu sync.Mutex
	var updates []contracts.RoutePoint
	tr, err := NewTracker(wsURL(srv)+"/ws", "SHP-1", c,
		WithLogger(quietLogger()),
		WithOnUpdate(func(p contracts.RoutePoint) {
			mu.Lock()
			updates = append(updates, p)
			mu.Unlock()
		}))
	require.NoError(t, err)
	assert.Equal(t, StatusConnecting, tr.Status())

	require.NoError(t, tr.Run(context.Background()))
	assert.Equal(t, "/ws/SHP-1", *path)
	assert.Equal(t, StatusDisconnected, tr.Status())

	trail := tr.Trail()
	require.Len(t, trail.Route, 2)
	assert.Equal(t, [2]float64{40.7, -74.0}, trail.Route[0])
	require.NotNil(t, trail.Current)
	assert.Equal(t, [2]float64{41.0, -73.5}, *trail.Current)
	assert.Len(t, updates, 2)
}

func TestTracker_WrongKeyMarksError(t *testing.T) {
	other, err := crypto.NewXChaCha(make([]byte, 32))
	require.NoError(t, err)
	frame := sealedFrame(t, other, 1, 2)
	release := make(chan struct{})
	srv, _ := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		<-release
	})
	defer close(release)

	tr, err := NewTracker(wsURL(srv), "SHP-2", testCipher(t), WithLogger(quietLogger()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()

	require.Eventually(t, func() bool { return tr.Status() == StatusError }, time.Second, 5*time.Millisecond)
	assert.Empty(t, tr.Trail().Route)

	require.NoError(t, tr.Close())
	require.NoError(t, <-done)
	assert.Equal(t, StatusDisconnected, tr.Status())
	assert.NoError(t, tr.Close())
}

func TestTracker_ContextCancelDisconnects(t *testing.T) {
	release := make(chan struct{})
	srv, _ := wsServer(t, func(conn *websocket.Conn) { <-release })
	defer close(release)

	tr, err := NewTracker(wsURL(srv), "SHP-3", testCipher(t), WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	require.Eventually(t, func() bool { return tr.Status() == StatusConnected }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StatusDisconnected, tr.Status())
}

func TestTracker_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	tr, err := NewTracker(wsURL(srv), "SHP-4", testCipher(t), WithLogger(quietLogger()))
	require.NoError(t, err)
	err = tr.Run(context.Background())
	assert.ErrorIs(t, err, domainErr.ErrNetwork)
	assert.Equal(t, StatusError, tr.Status())
}

func TestNewTracker_Disabled(t *testing.T) {
	tr, err := NewTracker("ws://unused", "", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, tr.Status())
	assert.NoError(t, tr.Run(context.Background()))
	assert.Equal(t, StatusDisabled, tr.Status())
}

func TestNewTracker_Validation(t *testing.T) {
	_, err := NewTracker("ws://host", "SHP", nil)
	assert.ErrorIs(t, err, domainErr.ErrConfiguration)

	_, err = NewTracker("http://host", "SHP", testCipher(t))
	assert.ErrorIs(t, err, domainErr.ErrConfiguration)
}

func TestTracker_FollowReconnectsAfterFailures(t *testing.T) {
	c := testCipher(t)
	frame := sealedFrame(t, c, 52.5, 13.4)
	var mu sync.Mutex
	attempts := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		time.Sleep(50 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	tr, err := NewTracker(wsURL(srv), "SHP-5", c,
		WithLogger(quietLogger()),
		WithRetry(time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		tr.Follow(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not settle after a normal close")
	}

	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()
	assert.Equal(t, StatusDisconnected, tr.Status())
	assert.Len(t, tr.Trail().Route, 1)
}

func TestTracker_FollowStopsOnCancelAndClose(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	for _, stop := range []string{"cancel", "close"} {
		t.Run(stop, func(t *testing.T) {
			tr, err := NewTracker(wsURL(srv), "SHP-6", testCipher(t),
				WithLogger(quietLogger()),
				WithRetry(10*time.Millisecond, 20*time.Millisecond))
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan struct{})
			go func() {
				tr.Follow(ctx)
				close(done)
			}()
			require.Eventually(t, func() bool { return tr.Status() == StatusError }, time.Second, time.Millisecond)

			if stop == "cancel" {
				cancel()
			} else {
				require.NoError(t, tr.Close())
			}
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("follow kept retrying")
			}
		})
	}
}
