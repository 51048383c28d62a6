// Package app wires the tracker components together from a TrackerConfig.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/api"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/config"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/crypto"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/events"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/httpserver"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/persist"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/realtime"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/selector"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/telemetry"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/store"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/Tanmoy095/LogiSynapse/shared/kafka"
	"github.com/Tanmoy095/LogiSynapse/shared/rabbitmq"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName        = "shipment-tracker"
	actionsTopic       = "tracker.actions"
	shutdownTimeout    = 10 * time.Second
	defaultSinkBuffer  = 1000
	defaultSinkWorkers = 2
)

// App holds every long-lived component. Build creates it, Start brings the
// state online, Close releases everything in reverse order.
type App struct {
	Config    *config.TrackerConfig
	Logger    *slog.Logger
	Store     *shipments.Store
	Client    *api.ShipmentClient
	Recorder  *telemetry.Recorder
	Selectors *selector.Registry
	Views     *shipments.Selectors
	Persistor *persist.Persistor
	Validator *persist.Validator
	Metrics   *prometheus.Registry

	envelopes store.EnvelopeStore
	sinks     []*telemetry.AsyncSink
	consumer  *kafka.Consumer
	closers   []func() error
	shutdown  func(context.Context) error
	started   bool
}

// Build constructs the components. Nothing is read or started yet.
func Build(ctx context.Context, cfg *config.TrackerConfig, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.shutdown, err = telemetry.InitTracing(ctx, telemetry.TracingConfig{ServiceName: serviceName, UseStdout: cfg.TraceStdout})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	persistKey, err := cfg.PersistKey()
	if err != nil {
		return nil, err
	}
	persistCipher, err := crypto.New(cfg.Cipher, persistKey)
	if err != nil {
		return nil, err
	}

	if a.envelopes, err = openEnvelopeStore(ctx, cfg); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.envelopes.Close)

	codec := persist.NewCodec(persistCipher, persist.WithMaxSize(cfg.MaxStateBytes), persist.WithCodecLogger(logger))
	a.Persistor = persist.NewPersistor(codec, a.envelopes, logger)

	sessionID := uuid.NewString()
	recorderOpts := []telemetry.Option{
		telemetry.WithSessionID(sessionID),
		telemetry.WithLogger(logger),
		telemetry.WithHistoryCapacity(cfg.HistoryCapacity),
		telemetry.WithSlowThreshold(cfg.SlowActionThreshold()),
	}
	if cfg.EncryptSnapshots {
		snapKey, err := cfg.SnapshotKey()
		if err != nil {
			return nil, err
		}
		snapCipher, err := crypto.New(cfg.Cipher, snapKey)
		if err != nil {
			return nil, err
		}
		recorderOpts = append(recorderOpts, telemetry.WithSnapshotCipher(snapCipher))
	}
	sinkOpts, err := a.buildSinks(cfg, sessionID, logger)
	if err != nil {
		return nil, err
	}
	a.Recorder = telemetry.NewRecorder(append(recorderOpts, sinkOpts...)...)

	a.Selectors = selector.NewRegistry(logger, selector.WithSlowThreshold(cfg.SlowSelectorThreshold()))
	if a.Views, err = shipments.NewSelectors(a.Selectors); err != nil {
		return nil, err
	}

	a.Client, err = api.NewShipmentClient(cfg.APIURL, api.WithToken(cfg.APIToken), api.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	a.Store = shipments.NewStore(
		shipments.WithAPI(a.Client),
		shipments.WithLogger(logger),
		shipments.WithReducer(a.Persistor.Reducer(shipments.NewReducer(time.Now))),
		shipments.WithMiddleware(a.Recorder.Middleware()),
	)
	a.Store.Subscribe(a.Persistor.Listener())
	a.Validator = persist.NewValidator(a.Store, logger, cfg.ValidationSchedule)

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		telemetry.NewCollector(a.Recorder, a.Selectors),
	)
	return a, nil
}

func openEnvelopeStore(ctx context.Context, cfg *config.TrackerConfig) (store.EnvelopeStore, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendFile:
		return store.NewFileStore(cfg.StoragePath)
	case config.BackendPostgres:
		return store.NewPostgresStore(ctx, cfg.CommonConfig.GetDBURL())
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// buildSinks connects the optional brokers. Kafka receives every action
// record, RabbitMQ only slow and failed ones.
func (a *App) buildSinks(cfg *config.TrackerConfig, sessionID string, logger *slog.Logger) ([]telemetry.Option, error) {
	var opts []telemetry.Option
	common := cfg.CommonConfig
	if common == nil {
		return nil, nil
	}

	if brokers := common.GetKafkaBrokers(); len(brokers) > 0 {
		producer := kafka.NewKafkaProducer(brokers, actionsTopic, logger)
		a.closers = append(a.closers, producer.Close)
		sink := telemetry.NewKafkaSink(producer, defaultSinkBuffer, logger)
		a.sinks = append(a.sinks, sink)
		opts = append(opts, telemetry.WithSink(sink))

		a.consumer = kafka.NewConsumer(brokers, common.GetKafkaTopic(), common.GetKafkaGroup("tracker"), logger)
	}

	if common.HasRabbitMQ() {
		client, err := rabbitmq.NewClient(common.GetRabbitMQURL(), logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		if err := client.CreateQueue(cfg.AlertQueue); err != nil {
			return nil, err
		}
		sink := telemetry.NewAlertSink(client, cfg.AlertQueue, sessionID, defaultSinkBuffer, logger)
		a.sinks = append(a.sinks, sink)
		opts = append(opts, telemetry.WithAlertSink(sink))
	}
	return opts, nil
}

// Start rehydrates the store and starts the background workers. It runs
// the validator once immediately after rehydration.
func (a *App) Start(ctx context.Context) error {
	for _, s := range a.sinks {
		s.Start(defaultSinkWorkers)
	}
	if err := a.Persistor.Rehydrate(ctx, a.Store); err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	a.Persistor.Start()
	a.Validator.Check(ctx)
	if err := a.Validator.Start(); err != nil {
		return err
	}
	a.started = true
	a.Logger.Info("tracker started",
		slog.String("session_id", a.Recorder.SessionID()),
		slog.Int("shipments", len(a.Store.GetState().Shipments)),
		slog.String("storage", a.Config.StorageBackend),
	)
	return nil
}

// Serve runs the diagnostics server and, when kafka is configured, the
// shipment event bridge until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	srv := httpserver.NewServer(a.Config.MetricsAddr, &httpserver.Handler{
		Store:     a.Store,
		Views:     a.Views,
		Actions:   a.Recorder,
		Selectors: a.Selectors,
		Gatherer:  a.Metrics,
		Logger:    a.Logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("diagnostics server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if a.consumer != nil {
		bridge := events.NewBridge(a.consumer, a.Store, a.Logger)
		a.consumer = nil
		g.Go(func() error { return bridge.Run(gctx) })
	}
	return g.Wait()
}

// Track prepares a websocket tracker for one shipment; call Run or Follow on it.
func (a *App) Track(shipmentID string, onUpdate func(contracts.RoutePoint)) (*realtime.Tracker, error) {
	key, err := a.Config.WSKey()
	if err != nil {
		return nil, err
	}
	var c crypto.Cipher
	if key != nil {
		if c, err = crypto.New(a.Config.Cipher, key); err != nil {
			return nil, err
		}
	}
	return realtime.NewTracker(a.Config.WSURL, shipmentID, c,
		realtime.WithLogger(a.Logger),
		realtime.WithOnUpdate(onUpdate),
	)
}

// Close stops the workers, flushes the latest state and closes connections.
func (a *App) Close() {
	if a.started {
		a.Validator.Stop()
		a.Persistor.Stop()
	}
	for _, s := range a.sinks {
		s.Stop()
	}
	a.release()
}

func (a *App) release() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.Logger.Warn("close kafka consumer", slog.Any("error", err))
		}
		a.consumer = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			a.Logger.Warn("tracer shutdown", slog.Any("error", err))
		}
		a.shutdown = nil
	}
}
