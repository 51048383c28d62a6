// Package telemetry records every dispatched action: timing, outcome, a hash
// of the resulting state and, when a snapshot key is configured, an
// encrypted snapshot of {state, action}.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultHistoryCapacity = 1000
	DefaultSlowThreshold   = 200 * time.Millisecond

	UnknownErrorCode  = "UNKNOWN_ERROR"
	unknownActionType = "UNKNOWN_ACTION"
	tracerName        = "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/telemetry"
)

// ErrorInfo describes a failed action.
type ErrorInfo struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Code    string `json:"code"`
}

// ActionMetadata is the record of one dispatched action. It is immutable
// once completed.
type ActionMetadata struct {
	ID                string           `json:"id"`
	Type              string           `json:"type"`
	StartTime         time.Time        `json:"startTime"`
	DurationMs        float64          `json:"durationMs"`
	Success           bool             `json:"success"`
	Error             *ErrorInfo       `json:"error"`
	StateHash         string           `json:"stateHash,omitempty"`
	EncryptedSnapshot *crypto.Envelope `json:"encryptedSnapshot,omitempty"`
}

// ActionMetric aggregates the successful runs of one action type.
type ActionMetric struct {
	Count         int64     `json:"count"`
	TotalDuration float64   `json:"totalDuration"` // milliseconds
	LastInvoked   time.Time `json:"lastInvoked"`
}

// ErrorMetric aggregates failures, keyed "<type>_ERROR".
type ErrorMetric struct {
	Count     int64     `json:"count"`
	LastError time.Time `json:"lastError"`
}

// Snapshot is a read-only copy of everything recorded so far.
type Snapshot struct {
	SessionID     string                  `json:"sessionId"`
	Metrics       map[string]ActionMetric `json:"metrics"`
	Errors        map[string]ErrorMetric  `json:"errors"`
	RecentActions []ActionMetadata        `json:"recentActions"`
}

// Sink receives completed action records. Implementations must not block.
type Sink interface {
	Emit(meta ActionMetadata)
}

// Recorder is the telemetry middleware and its storage. All maps and the
// history ring are only touched under mu.
type Recorder struct {
	mu        sync.Mutex
	sessionID string
	metrics   map[string]ActionMetric
	errors    map[string]ErrorMetric
	history   []ActionMetadata // ring buffer
	head      int              // index of the oldest entry
	size      int

	capacity       int
	slowThreshold  time.Duration
	snapshotCipher crypto.Cipher
	sinks          []Sink
	alerts         []Sink
	tracer         trace.Tracer
	logger         *slog.Logger
	now            func() time.Time
}

type Option func(*Recorder)

func WithHistoryCapacity(n int) Option { return func(r *Recorder) { r.capacity = n } }

func WithSlowThreshold(d time.Duration) Option { return func(r *Recorder) { r.slowThreshold = d } }

// WithSnapshotCipher enables encrypted {state, action} snapshots.
func WithSnapshotCipher(c crypto.Cipher) Option { return func(r *Recorder) { r.snapshotCipher = c } }

// WithSink forwards every completed action to s.
func WithSink(s Sink) Option { return func(r *Recorder) { r.sinks = append(r.sinks, s) } }

// WithAlertSink forwards slow and failed actions to s.
func WithAlertSink(s Sink) Option { return func(r *Recorder) { r.alerts = append(r.alerts, s) } }

// WithSessionID fixes the session id, e.g. to share it with a sink.
func WithSessionID(id string) Option { return func(r *Recorder) { r.sessionID = id } }

func WithTracer(t trace.Tracer) Option { return func(r *Recorder) { r.tracer = t } }

func WithLogger(l *slog.Logger) Option { return func(r *Recorder) { r.logger = l } }

func WithClock(now func() time.Time) Option { return func(r *Recorder) { r.now = now } }

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		sessionID:     uuid.NewString(),
		metrics:       make(map[string]ActionMetric),
		errors:        make(map[string]ErrorMetric),
		capacity:      DefaultHistoryCapacity,
		slowThreshold: DefaultSlowThreshold,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.capacity <= 0 {
		r.capacity = DefaultHistoryCapacity
	}
	if r.sessionID == "" {
		r.sessionID = uuid.NewString()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	r.history = make([]ActionMetadata, r.capacity)
	return r
}

func (r *Recorder) SessionID() string { return r.sessionID }

// Middleware plugs the recorder into a store's dispatch chain.
func (r *Recorder) Middleware() shipments.Middleware {
	return func(store shipments.MiddlewareAPI) func(next shipments.Dispatch) shipments.Dispatch {
		return func(next shipments.Dispatch) shipments.Dispatch {
			return func(ctx context.Context, action shipments.Action) error {
				return r.observe(ctx, store, action, next)
			}
		}
	}
}

// observe runs one action. Failures, returned or panicked, are recorded and
// then handed back to the caller unchanged.
func (r *Recorder) observe(ctx context.Context, store shipments.MiddlewareAPI, action shipments.Action, next shipments.Dispatch) error {
	actionType := action.Type
	if actionType == "" {
		actionType = unknownActionType
	}
	meta := ActionMetadata{
		ID:   uuid.NewString(),
		Type: actionType,
	}
	ctx, span := r.tracer.Start(ctx, actionType,
		trace.WithAttributes(
			attribute.String("action.id", meta.ID),
			attribute.String("telemetry.session_id", r.sessionID),
		))
	defer span.End()

	start := r.now()
	meta.StartTime = start.UTC()

	defer func() {
		if p := recover(); p != nil {
			err, ok := p.(error)
			if !ok {
				err = fmt.Errorf("%v", p)
			}
			r.fail(meta, start, err, string(debug.Stack()), span)
			panic(p)
		}
	}()

	if err := next(ctx, action); err != nil {
		r.fail(meta, start, err, "", span)
		return err
	}
	r.succeed(meta, start, store.GetState(), action, span)
	return nil
}

func (r *Recorder) succeed(meta ActionMetadata, start time.Time, state shipments.State, action shipments.Action, span trace.Span) {
	end := r.now()
	meta.DurationMs = millis(end.Sub(start))
	meta.Success = true

	// state capture is best effort; the action itself already succeeded
	if hash, err := crypto.Hash(state); err != nil {
		r.logger.Error("state capture failed", slog.String("action", meta.Type), slog.Any("error", err))
	} else {
		meta.StateHash = hash
		span.SetAttributes(attribute.String("state.hash", hash))
	}
	if r.snapshotCipher != nil {
		meta.EncryptedSnapshot = r.seal(state, action)
	}

	slow := end.Sub(start) > r.slowThreshold
	if slow {
		r.logger.Warn("slow action detected",
			slog.String("action", meta.Type),
			slog.Float64("duration_ms", meta.DurationMs),
		)
	}

	r.mu.Lock()
	m := r.metrics[meta.Type]
	m.Count++
	m.TotalDuration += meta.DurationMs
	m.LastInvoked = end.UTC()
	r.metrics[meta.Type] = m
	r.pushLocked(meta)
	r.mu.Unlock()

	r.emit(meta, slow)
}

func (r *Recorder) fail(meta ActionMetadata, start time.Time, err error, stack string, span trace.Span) {
	end := r.now()
	meta.DurationMs = millis(end.Sub(start))
	meta.Error = &ErrorInfo{
		Message: err.Error(),
		Stack:   stack,
		Code:    errorCode(err),
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	r.logger.Error("action error",
		slog.String("action", meta.Type),
		slog.Float64("duration_ms", meta.DurationMs),
		slog.String("code", meta.Error.Code),
		slog.String("error", meta.Error.Message),
	)

	key := meta.Type + "_ERROR"
	r.mu.Lock()
	e := r.errors[key]
	e.Count++
	e.LastError = end.UTC()
	r.errors[key] = e
	r.pushLocked(meta)
	r.mu.Unlock()

	r.emit(meta, true)
}

func (r *Recorder) emit(meta ActionMetadata, alert bool) {
	for _, s := range r.sinks {
		s.Emit(meta)
	}
	if alert {
		for _, s := range r.alerts {
			s.Emit(meta)
		}
	}
}

func (r *Recorder) seal(state shipments.State, action shipments.Action) *crypto.Envelope {
	plain, err := json.Marshal(struct {
		State  shipments.State  `json:"state"`
		Action shipments.Action `json:"action"`
	}{state, action})
	if err != nil {
		r.logger.Error("telemetry snapshot failed", slog.String("action", action.Type), slog.Any("error", err))
		return nil
	}
	env, err := r.snapshotCipher.Seal(plain)
	if err != nil {
		r.logger.Error("telemetry encryption failed", slog.Any("error", err))
		return nil
	}
	return &env
}

// pushLocked appends to the ring, evicting the oldest entry when full.
func (r *Recorder) pushLocked(meta ActionMetadata) {
	if r.size < r.capacity {
		r.history[(r.head+r.size)%r.capacity] = meta
		r.size++
		return
	}
	r.history[r.head] = meta
	r.head = (r.head + 1) % r.capacity
}

// Snapshot returns copies of the metrics and the history, oldest first.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		SessionID:     r.sessionID,
		Metrics:       make(map[string]ActionMetric, len(r.metrics)),
		Errors:        make(map[string]ErrorMetric, len(r.errors)),
		RecentActions: make([]ActionMetadata, 0, r.size),
	}
	for k, v := range r.metrics {
		snap.Metrics[k] = v
	}
	for k, v := range r.errors {
		snap.Errors[k] = v
	}
	for i := 0; i < r.size; i++ {
		snap.RecentActions = append(snap.RecentActions, r.history[(r.head+i)%r.capacity])
	}
	return snap
}

// Reset clears metrics, error counters and history. The session id is kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = make(map[string]ActionMetric)
	r.errors = make(map[string]ErrorMetric)
	r.history = make([]ActionMetadata, r.capacity)
	r.head, r.size = 0, 0
}

// errorCode uses the error's own code when it has one.
func errorCode(err error) string {
	var coder interface{ ErrorCode() string }
	if errors.As(err, &coder) {
		if code := coder.ErrorCode(); code != "" {
			return code
		}
	}
	return UnknownErrorCode
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
