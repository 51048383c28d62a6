package persist

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/store"
)

// StorageKey is the single key the slice is stored under.
const StorageKey = "root"

const defaultWriteTimeout = 5 * time.Second

// Dispatcher is the part of the store the persistence layer dispatches into.
type Dispatcher interface {
	Dispatch(ctx context.Context, action shipments.Action) error
}

// Persistor owns the durable copy of the slice. Writes triggered by state
// changes are coalesced: a background writer only ever stores the newest
// state, and intermediate ones are skipped.
type Persistor struct {
	codec        *Codec
	store        store.EnvelopeStore
	key          string
	logger       *slog.Logger
	writeTimeout time.Duration

	pending  chan shipments.State // cap 1, latest wins
	quitChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewPersistor(codec *Codec, st store.EnvelopeStore, logger *slog.Logger) *Persistor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persistor{
		codec:        codec,
		store:        st,
		key:          StorageKey,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		pending:      make(chan shipments.State, 1),
		quitChan:     make(chan struct{}),
	}
}

// Load reads and decodes the stored slice. It never fails: a missing,
// corrupt, undecryptable or outdated envelope yields the initial state.
func (p *Persistor) Load(ctx context.Context) shipments.State {
	raw, err := p.store.Get(ctx, p.key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("cannot read persisted state, starting cold", slog.Any("error", err))
		}
		return shipments.InitialState()
	}
	env, ok := p.codec.Unmarshal(raw)
	if !ok {
		return shipments.InitialState()
	}
	if p.codec.Migrate(env.Version) == Discard {
		p.logger.Info("discarding persisted state from another schema version",
			slog.Int("stored_version", env.Version),
			slog.Int("current_version", p.codec.Version()),
		)
		return shipments.InitialState()
	}
	state, ok := p.codec.Decode(env)
	if !ok {
		return shipments.InitialState()
	}
	return state
}

// Rehydrate loads the stored slice and dispatches it into the store.
func (p *Persistor) Rehydrate(ctx context.Context, d Dispatcher) error {
	return d.Dispatch(ctx, shipments.Rehydrate(p.Load(ctx)))
}

// Flush encodes and writes state now. An oversized state is dropped with a
// warning and the error is returned; the process keeps running.
func (p *Persistor) Flush(ctx context.Context, state shipments.State) error {
	env, err := p.codec.Encode(state)
	if err != nil {
		if errors.Is(err, domainErr.ErrSizeLimitExceeded) {
			p.logger.Warn("state too large, write dropped", slog.Any("error", err))
		}
		return err
	}
	b, err := p.codec.Marshal(env)
	if err != nil {
		return err
	}
	return p.store.Put(ctx, p.key, b)
}

// Purge removes the stored copy.
func (p *Persistor) Purge(ctx context.Context) error {
	return p.store.Delete(ctx, p.key)
}

// Reducer wraps base so the persistence metadata is maintained: a rehydrate
// or a hard reset attaches fresh metadata, every other action carries the
// previous metadata forward.
func (p *Persistor) Reducer(base shipments.Reducer) shipments.Reducer {
	return func(state shipments.State, action shipments.Action) (shipments.State, error) {
		next, err := base(state, action)
		if err != nil {
			return state, err
		}
		switch action.Type {
		case shipments.ActionRehydrate, shipments.ActionStoreReset:
			next.Persist = &shipments.PersistMeta{Version: p.codec.Version(), Rehydrated: true}
		default:
			if next.Persist == nil {
				next.Persist = state.Persist
			}
		}
		return next, nil
	}
}

// Listener queues a write whenever the slice changed. Subscribe it to the store.
func (p *Persistor) Listener() shipments.Listener {
	return func(prev, next shipments.State) {
		if sameState(prev, next) {
			return
		}
		p.enqueue(next)
	}
}

func (p *Persistor) enqueue(state shipments.State) {
	select {
	case p.pending <- state:
		return
	default:
	}
	// replace the queued state with the newer one
	select {
	case <-p.pending:
	default:
	}
	select {
	case p.pending <- state:
	default:
		// unreachable while listeners run under the dispatch lock
		p.logger.Debug("persist write skipped")
	}
}

// Start launches the background writer.
func (p *Persistor) Start() {
	p.wg.Add(1)
	go p.writer()
}

func (p *Persistor) writer() {
	defer p.wg.Done()
	for {
		select {
		case state := <-p.pending:
			p.write(state)
		case <-p.quitChan:
			return
		}
	}
}

func (p *Persistor) write(state shipments.State) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	if err := p.Flush(ctx, state); err != nil && !errors.Is(err, domainErr.ErrSizeLimitExceeded) {
		p.logger.Error("persist write failed", slog.Any("error", err))
	}
}

// Stop stops the writer and writes the last queued state, if any.
func (p *Persistor) Stop() {
	p.stopOnce.Do(func() {
		close(p.quitChan)
		p.wg.Wait()
		select {
		case state := <-p.pending:
			p.write(state)
		default:
		}
	})
}

// sameState is an identity check: reducers copy on change, so unchanged
// fields keep their pointers and slice headers.
func sameState(a, b shipments.State) bool {
	return a.Status == b.Status &&
		a.Version == b.Version &&
		a.Error == b.Error &&
		a.Filter == b.Filter &&
		a.LastUpdated == b.LastUpdated &&
		a.Persist == b.Persist &&
		len(a.Shipments) == len(b.Shipments) &&
		reflect.ValueOf(a.Shipments).Pointer() == reflect.ValueOf(b.Shipments).Pointer()
}
