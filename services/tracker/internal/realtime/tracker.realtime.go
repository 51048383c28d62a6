// Package realtime follows one shipment's position over a websocket. Every
// frame is an encrypted envelope of {coordinates, timestamp}.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

type Status string

const (
	StatusDisabled     Status = "disabled"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

const (
	DefaultMinRetry = time.Second
	DefaultMaxRetry = 30 * time.Second
)

// Trail is the live position and every fix received so far.
type Trail struct {
	Current *[2]float64  `json:"currentLocation"`
	Route   [][2]float64 `json:"route"`
}

type Tracker struct {
	url        string
	shipmentID string
	cipher     crypto.Cipher
	dialer     *websocket.Dialer
	header     http.Header
	logger     *slog.Logger
	onUpdate   func(contracts.RoutePoint)
	minRetry   time.Duration
	maxRetry   time.Duration

	mu     sync.Mutex
	status Status
	trail  Trail
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

type Option func(*Tracker)

func WithDialer(d *websocket.Dialer) Option { return func(t *Tracker) { t.dialer = d } }

func WithHeader(h http.Header) Option { return func(t *Tracker) { t.header = h } }

func WithLogger(l *slog.Logger) Option { return func(t *Tracker) { t.logger = l } }

// WithRetry bounds the reconnect delay used by Follow.
func WithRetry(initial, limit time.Duration) Option {
	return func(t *Tracker) { t.minRetry, t.maxRetry = initial, limit }
}

// WithOnUpdate is called, outside the tracker lock, for every decrypted fix.
func WithOnUpdate(fn func(contracts.RoutePoint)) Option { return func(t *Tracker) { t.onUpdate = fn } }

// NewTracker prepares a tracker for <baseURL>/<shipmentID>. An empty
// shipment id yields a disabled tracker whose Run returns immediately.
func NewTracker(baseURL, shipmentID string, cipher crypto.Cipher, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		url:        strings.TrimRight(baseURL, "/") + "/" + shipmentID,
		shipmentID: shipmentID,
		cipher:     cipher,
		dialer:     websocket.DefaultDialer,
		logger:     slog.Default(),
		minRetry:   DefaultMinRetry,
		maxRetry:   DefaultMaxRetry,
		status:     StatusConnecting,
		trail:      Trail{Route: [][2]float64{}},
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if shipmentID == "" {
		t.status = StatusDisabled
		return t, nil
	}
	if cipher == nil {
		return nil, fmt.Errorf("%w: websocket secret is required for live tracking", domainErr.ErrConfiguration)
	}
	if !strings.HasPrefix(t.url, "ws://") && !strings.HasPrefix(t.url, "wss://") {
		return nil, fmt.Errorf("%w: invalid websocket url %q", domainErr.ErrConfiguration, baseURL)
	}
	return t, nil
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Trail returns a copy of the received positions.
func (t *Tracker) Trail() Trail {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := Trail{Route: append([][2]float64(nil), t.trail.Route...)}
	if t.trail.Current != nil {
		cur := *t.trail.Current
		out.Current = &cur
	}
	if out.Route == nil {
		out.Route = [][2]float64{}
	}
	return out
}

func (t *Tracker) setStatus(s Status) {
	t.mu.Lock()
	prev := t.status
	t.status = s
	t.mu.Unlock()
	if prev != s {
		t.logger.Info("tracking socket status", slog.String("shipment_id", t.shipmentID), slog.String("status", string(s)))
	}
}

// Run dials and reads frames until the socket closes, Close is called or
// ctx is cancelled. A frame that fails to decrypt marks the status as error
// and is skipped.
func (t *Tracker) Run(ctx context.Context) error {
	if t.shipmentID == "" {
		return nil
	}
	t.setStatus(StatusConnecting)
	conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		t.setStatus(StatusError)
		return fmt.Errorf("%w: dial %s: %v", domainErr.ErrNetwork, t.url, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		t.setStatus(StatusDisconnected)
		return nil
	}
	t.conn = conn
	t.mu.Unlock()
	t.setStatus(StatusConnected)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || t.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.setStatus(StatusDisconnected)
				return nil
			}
			t.setStatus(StatusError)
			t.logger.Error("websocket error", slog.String("shipment_id", t.shipmentID), slog.Any("error", err))
			return fmt.Errorf("%w: read %s: %v", domainErr.ErrNetwork, t.url, err)
		}
		point, err := t.decode(frame)
		if err != nil {
			t.setStatus(StatusError)
			t.logger.Error("secure message decryption failed", slog.String("shipment_id", t.shipmentID), slog.Any("error", err))
			continue
		}
		t.append(point)
	}
}

// Follow runs the socket and reconnects with exponential backoff after a
// network failure. It returns once ctx is cancelled, Close is called or the
// server closes the socket normally. Failures only show up in Status.
func (t *Tracker) Follow(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.minRetry
	b.MaxInterval = t.maxRetry
	for {
		connected := time.Now()
		err := t.Run(ctx)
		if err == nil || ctx.Err() != nil || t.isClosed() {
			return
		}
		// a socket that stayed up for a while starts a fresh backoff
		if time.Since(connected) > t.maxRetry {
			b.Reset()
		}
		delay := b.NextBackOff()
		t.logger.Warn("tracking socket lost, reconnecting",
			slog.String("shipment_id", t.shipmentID),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-t.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *Tracker) decode(frame []byte) (contracts.RoutePoint, error) {
	var env crypto.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return contracts.RoutePoint{}, fmt.Errorf("%w: %v", domainErr.ErrDecryptionFailure, err)
	}
	plain, err := t.cipher.Open(env)
	if err != nil {
		return contracts.RoutePoint{}, err
	}
	var point contracts.RoutePoint
	if err := json.Unmarshal(plain, &point); err != nil {
		return contracts.RoutePoint{}, fmt.Errorf("%w: %v", domainErr.ErrDecryptionFailure, err)
	}
	return point, nil
}

func (t *Tracker) append(point contracts.RoutePoint) {
	t.mu.Lock()
	cur := point.Coordinates
	t.trail.Current = &cur
	t.trail.Route = append(t.trail.Route, point.Coordinates)
	t.mu.Unlock()
	if t.onUpdate != nil {
		t.onUpdate(point)
	}
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close sends a close frame and tears the socket down. Safe to call more
// than once and before Run.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		t.logger.Debug("close frame not sent", slog.Any("error", err))
	}
	return conn.Close()
}
