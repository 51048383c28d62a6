package shipments

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Dispatch sends an action through the middleware chain to the reducer.
type Dispatch func(ctx context.Context, action Action) error

// MiddlewareAPI is what a middleware may see of the store.
type MiddlewareAPI interface {
	GetState() State
}

// Middleware wraps dispatch. It runs inside the store's dispatch lock, so it
// must not dispatch itself.
type Middleware func(store MiddlewareAPI) func(next Dispatch) Dispatch

// Listener is called after every state change, in dispatch order.
type Listener func(prev, next State)

// Store holds the single source of truth for the shipments slice.
// Reducer runs are serialized: actions are applied strictly in the order
// Dispatch acquired the lock. Network I/O of the thunks happens outside it.
type Store struct {
	dispatchMu sync.Mutex
	dispatch   Dispatch

	stateMu sync.RWMutex
	state   State

	subsMu      sync.Mutex
	subscribers map[int]Listener
	nextSubID   int

	reducer    Reducer
	middleware []Middleware
	client     ShipmentAPI
	sf         singleflight.Group
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Store)

// WithAPI sets the REST client used by the thunks.
func WithAPI(client ShipmentAPI) Option { return func(s *Store) { s.client = client } }

func WithReducer(r Reducer) Option { return func(s *Store) { s.reducer = r } }

// WithMiddleware appends middleware. The first one given is the outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Store) { s.middleware = append(s.middleware, mw...) }
}

func WithInitialState(state State) Option { return func(s *Store) { s.state = state } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

func NewStore(opts ...Option) *Store {
	s := &Store{
		state:       InitialState(),
		subscribers: make(map[int]Listener),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reducer == nil {
		s.reducer = NewReducer(s.now)
	}

	dispatch := Dispatch(s.reduce)
	for i := len(s.middleware) - 1; i >= 0; i-- {
		dispatch = s.middleware[i](s)(dispatch)
	}
	s.dispatch = dispatch
	return s
}

// GetState returns the current state. Safe from any goroutine.
func (s *Store) GetState() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Dispatch applies one action. A reducer failure is returned unchanged
// (after every middleware had a chance to record it) and leaves state as it was.
func (s *Store) Dispatch(ctx context.Context, action Action) error {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	return s.dispatch(ctx, action)
}

// Subscribe registers a listener and returns its unsubscribe func.
// Listeners run under the dispatch lock and must not dispatch.
func (s *Store) Subscribe(l Listener) func() {
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = l
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subscribers, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) reduce(_ context.Context, action Action) error {
	prev := s.GetState()
	next, err := s.reducer(prev, action)
	if err != nil {
		return err
	}
	s.stateMu.Lock()
	s.state = next
	s.stateMu.Unlock()

	s.subsMu.Lock()
	listeners := make([]Listener, 0, len(s.subscribers))
	for _, l := range s.subscribers {
		listeners = append(listeners, l)
	}
	s.subsMu.Unlock()
	for _, l := range listeners {
		l(prev, next)
	}
	return nil
}
