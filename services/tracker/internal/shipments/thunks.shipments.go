package shipments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/api"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
)

// ShipmentAPI is the REST collaborator of the thunks. *api.ShipmentClient implements it.
type ShipmentAPI interface {
	ListShipments(ctx context.Context) ([]contracts.ShipmentRecord, error)
	CreateShipment(ctx context.Context, input contracts.CreateShipmentInput) (contracts.ShipmentRecord, error)
}

// FetchShipments loads the list: pending, then fulfilled or rejected.
// Concurrent calls share one request and one pending/settled pair of actions.
// A rejection is returned as *api.Error after it has been dispatched.
//
// The shared request is detached from the caller that started it: a caller
// whose ctx ends gets ctx.Err() back while the fetch settles for the others.
func (s *Store) FetchShipments(ctx context.Context) error {
	ch := s.sf.DoChan("fetchShipments", func() (interface{}, error) {
		return nil, s.fetchShipments(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("fetchShipments joined an in-flight request")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) fetchShipments(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("%w: store has no shipments api", domainErr.ErrConfiguration)
	}
	if err := s.Dispatch(ctx, FetchStart()); err != nil {
		return err
	}

	records, err := s.client.ListShipments(ctx)
	if err != nil {
		rejection := api.Wrap(err)
		s.logger.Error("fetchShipments rejected",
			slog.Int("code", rejection.Code),
			slog.String("message", rejection.Message),
		)
		if dispatchErr := s.Dispatch(ctx, FetchFailed(rejection)); dispatchErr != nil {
			return dispatchErr
		}
		return rejection
	}
	return s.Dispatch(ctx, FetchSucceeded(records))
}

// CreateShipment validates input locally, posts it, and appends the created
// record. Input without a container id or a route never reaches the network.
func (s *Store) CreateShipment(ctx context.Context, input contracts.CreateShipmentInput) (contracts.ShipmentRecord, error) {
	if err := s.Dispatch(ctx, CreateStart()); err != nil {
		return contracts.ShipmentRecord{}, err
	}

	var missing []string
	if strings.TrimSpace(input.ContainerID) == "" {
		missing = append(missing, "containerId")
	}
	if input.Route == nil {
		missing = append(missing, "route")
	}
	if len(missing) > 0 {
		rejection := api.ValidationError("missing required shipment fields: " + strings.Join(missing, ", "))
		return contracts.ShipmentRecord{}, s.reject(ctx, rejection)
	}

	if s.client == nil {
		return contracts.ShipmentRecord{}, fmt.Errorf("%w: store has no shipments api", domainErr.ErrConfiguration)
	}
	record, err := s.client.CreateShipment(ctx, input)
	if err != nil {
		return contracts.ShipmentRecord{}, s.reject(ctx, api.Wrap(err))
	}
	if err := s.Dispatch(ctx, CreateSucceeded(record)); err != nil {
		return contracts.ShipmentRecord{}, err
	}
	return record, nil
}

func (s *Store) reject(ctx context.Context, rejection *api.Error) error {
	s.logger.Error("createShipment rejected",
		slog.Int("code", rejection.Code),
		slog.String("message", rejection.Message),
	)
	if err := s.Dispatch(ctx, CreateFailed(rejection)); err != nil {
		return err
	}
	return rejection
}
