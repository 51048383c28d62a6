// Package selector wraps pure state-derivation functions with memoization
// and call-count/duration instrumentation.
package selector

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
)

const (
	DefaultMaxArgs       = 3
	DefaultSlowThreshold = 50 * time.Millisecond
)

// Metric is the accumulated instrumentation of one selector.
type Metric struct {
	Name          string    `json:"name"`
	Calls         int64     `json:"calls"`
	TotalDuration float64   `json:"totalDuration"` // milliseconds
	LastCall      time.Time `json:"lastCall"`
}

// Registry owns the metrics of every selector created through it.
// The map is only touched under mu.
type Registry struct {
	mu            sync.Mutex
	metrics       map[string]Metric // key: sha256(name)
	names         map[string]string // key -> name, rejects collisions
	logger        *slog.Logger
	maxArgs       int
	slowThreshold time.Duration
	now           func() time.Time
}

type Option func(*Registry)

func WithMaxArgs(n int) Option { return func(r *Registry) { r.maxArgs = n } }

func WithSlowThreshold(d time.Duration) Option {
	return func(r *Registry) { r.slowThreshold = d }
}

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		metrics:       make(map[string]Metric),
		names:         make(map[string]string),
		logger:        logger,
		maxArgs:       DefaultMaxArgs,
		slowThreshold: DefaultSlowThreshold,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns a copy of the metrics keyed by the selector key.
func (r *Registry) Snapshot() map[string]Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Metric, len(r.metrics))
	for k, v := range r.metrics {
		out[k] = v
	}
	return out
}

// Reset clears accumulated metrics. Registered names are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = make(map[string]Metric)
}

// Key is the stable metrics key of a selector name.
func Key(name string) string { return crypto.HashString(name) }

func (r *Registry) register(name string) (string, error) {
	key := Key(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.names[key]; ok {
		return "", fmt.Errorf("%w: selector %q already registered (key of %q)", domainErr.ErrInvalidInput, name, existing)
	}
	r.names[key] = name
	return key, nil
}

func (r *Registry) record(key, name string, d time.Duration, at time.Time) {
	r.mu.Lock()
	m := r.metrics[key]
	m.Name = name
	m.Calls++
	m.TotalDuration += float64(d) / float64(time.Millisecond)
	m.LastCall = at
	r.metrics[key] = m
	r.mu.Unlock()
}

// Input extracts one argument of the combine function from the state and
// the caller-supplied params.
type Input[S any] func(state S, params []any) any

// Selector is a memoized, instrumented derivation over state S.
type Selector[S, R any] struct {
	name    string
	key     string
	inputs  []Input[S]
	combine func(args ...any) R
	reg     *Registry

	mu       sync.Mutex
	primed   bool
	lastArgs []any
	last     R
}

// New wraps combine. The combine body runs only when at least one input
// differs from the previous call; otherwise the cached result is returned.
// Inputs are compared by identity (slice/map header, pointer, or value for
// comparable types), the same way reference equality works for memoized views.
func New[S, R any](reg *Registry, name string, inputs []Input[S], combine func(args ...any) R) (*Selector[S, R], error) {
	if combine == nil {
		return nil, fmt.Errorf("%w: selector %s must have a combine function", domainErr.ErrInvalidInput, name)
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: selector %s needs a registry", domainErr.ErrInvalidInput, name)
	}
	key, err := reg.register(name)
	if err != nil {
		return nil, err
	}
	return &Selector[S, R]{name: name, key: key, inputs: inputs, combine: combine, reg: reg}, nil
}

func (s *Selector[S, R]) Name() string { return s.name }
func (s *Selector[S, R]) Key() string  { return s.key }

// Select derives the view. More than the registry's argument limit fails
// fast with ErrArgumentLimitExceeded.
func (s *Selector[S, R]) Select(state S, params ...any) (R, error) {
	// state counts as the first argument of the call
	if n := 1 + len(params); n > s.reg.maxArgs {
		var zero R
		return zero, fmt.Errorf("%w: selector %s called with %d arguments (max %d)", domainErr.ErrArgumentLimitExceeded, s.name, n, s.reg.maxArgs)
	}
	args := make([]any, len(s.inputs))
	for i, in := range s.inputs {
		args[i] = in(state, params)
	}
	if len(args) > s.reg.maxArgs {
		var zero R
		return zero, fmt.Errorf("%w: selector %s derives %d inputs (max %d)", domainErr.ErrArgumentLimitExceeded, s.name, len(args), s.reg.maxArgs)
	}

	start := s.reg.now()
	s.mu.Lock()
	if !s.primed || !sameArgs(s.lastArgs, args) {
		s.last = s.combine(args...)
		s.lastArgs = args
		s.primed = true
	}
	result := s.last
	s.mu.Unlock()
	end := s.reg.now()
	duration := end.Sub(start)

	s.reg.record(s.key, s.name, duration, end)
	if duration > s.reg.slowThreshold {
		s.reg.logger.Warn("slow selector",
			slog.String("selector", s.name),
			slog.Float64("duration_ms", float64(duration)/float64(time.Millisecond)),
		)
	}
	return result, nil
}

func sameArgs(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameInput(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameInput(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Slice:
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if va.Type().Comparable() {
		return a == b
	}
	return false
}
