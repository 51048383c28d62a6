// Package events feeds platform shipment events into the tracker store, so
// shipments created by other clients appear without a refetch.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
	"github.com/Tanmoy095/LogiSynapse/shared/kafka"
)

// Target is the part of the store the bridge needs.
type Target interface {
	Dispatch(ctx context.Context, action shipments.Action) error
	GetState() shipments.State
}

// Source runs a handler over incoming messages; *kafka.Consumer implements it.
type Source interface {
	Start(ctx context.Context, handler kafka.Handler)
	Close() error
}

type Bridge struct {
	source Source
	target Target
	logger *slog.Logger
}

func NewBridge(source Source, target Target, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{source: source, target: target, logger: logger}
}

// Run blocks until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.source.Start(ctx, b.Handle)
	return b.source.Close()
}

// Handle applies one message. Malformed and unrelated messages are skipped
// (and therefore committed); only a failed dispatch asks for redelivery.
func (b *Bridge) Handle(ctx context.Context, key, value []byte) error {
	var evt contracts.ShipmentEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		b.logger.Warn("skipping malformed shipment event", slog.String("key", string(key)), slog.Any("error", err))
		return nil
	}
	if evt.Event != contracts.EventShipmentCreated {
		return nil
	}
	if evt.Payload.ID == "" {
		b.logger.Warn("skipping shipment event without id", slog.String("key", string(key)))
		return nil
	}
	// fast path; the reducer replaces by id if a fetch wins the race
	if b.known(evt.Payload.ID) {
		b.logger.Debug("shipment already cached", slog.String("id", evt.Payload.ID))
		return nil
	}
	if err := b.target.Dispatch(ctx, shipments.CreateSucceeded(evt.Payload)); err != nil {
		return err
	}
	b.logger.Info("shipment added from event",
		slog.String("id", evt.Payload.ID),
		slog.String("shipment_id", evt.Payload.ShipmentID),
	)
	return nil
}

func (b *Bridge) known(id string) bool {
	for _, s := range b.target.GetState().Shipments {
		if s.ID == id {
			return true
		}
	}
	return false
}
