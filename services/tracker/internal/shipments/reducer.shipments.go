package shipments

import (
	"fmt"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/api"
	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
)

const (
	defaultFetchError  = "Failed to fetch shipments"
	defaultCreateError = "Failed to create shipment"
)

// Reducer computes the next state. It must be synchronous and deterministic.
type Reducer func(state State, action Action) (State, error)

// NewReducer binds Reduce to a clock.
func NewReducer(now func() time.Time) Reducer {
	if now == nil {
		now = time.Now
	}
	return func(state State, action Action) (State, error) {
		return Reduce(state, action, now())
	}
}

// Reduce applies one action. Unknown action types leave the state untouched.
// A known action with a payload of the wrong type fails with ErrInvalidAction
// and the state is not changed.
func Reduce(state State, action Action, now time.Time) (State, error) {
	switch action.Type {
	case ActionFetchPending:
		state.Status = StatusLoading
		state.Error = nil
		return state, nil

	case ActionFetchFulfilled:
		records, ok := action.Payload.([]contracts.ShipmentRecord)
		if !ok && action.Payload != nil {
			return state, invalidPayload(action)
		}
		if records == nil {
			records = []contracts.ShipmentRecord{}
		}
		ts := now.UTC()
		state.Status = StatusSucceeded
		state.Error = nil
		state.Shipments = records
		state.LastUpdated = &ts
		return state, nil

	case ActionFetchRejected:
		msg, err := rejectionMessage(action, defaultFetchError)
		if err != nil {
			return state, err
		}
		state.Status = StatusFailed
		state.Error = &msg
		return state, nil

	case ActionCreatePending:
		return state, nil

	case ActionCreateFulfilled:
		record, ok := action.Payload.(contracts.ShipmentRecord)
		if !ok {
			return state, invalidPayload(action)
		}
		// a cleared or never-loaded list is not appended to
		if state.Shipments == nil {
			return state, nil
		}
		next := make([]contracts.ShipmentRecord, len(state.Shipments), len(state.Shipments)+1)
		copy(next, state.Shipments)
		// a record already in the list (e.g. delivered by both a fetch and
		// an event) is replaced, never duplicated
		if i := indexOf(next, record.ID); i >= 0 {
			next[i] = record
		} else {
			next = append(next, record)
		}
		state.Shipments = next
		ts := now.UTC()
		state.LastUpdated = &ts
		return state, nil

	case ActionCreateRejected:
		msg, err := rejectionMessage(action, defaultCreateError)
		if err != nil {
			return state, err
		}
		state.Error = &msg
		return state, nil

	case ActionReset:
		if state.Status == StatusLoading {
			return state, nil
		}
		next := InitialState()
		// stale persisted copies carry an older version
		next.Version = state.Version + 1
		next.Persist = state.Persist
		return next, nil

	case ActionSetFilter:
		switch v := action.Payload.(type) {
		case nil:
			state.Filter = nil
		case string:
			state.Filter = stringPtr(v)
		case *string:
			if v == nil {
				state.Filter = nil
			} else {
				state.Filter = stringPtr(*v)
			}
		}
		return state, nil

	case ActionStoreReset:
		return InitialState(), nil

	case ActionRehydrate:
		restored, ok := action.Payload.(State)
		if !ok {
			return state, invalidPayload(action)
		}
		return restored, nil
	}
	return state, nil
}

func invalidPayload(action Action) error {
	return fmt.Errorf("%w: %s got %T", domainErr.ErrInvalidAction, action.Type, action.Payload)
}

func rejectionMessage(action Action, fallback string) (string, error) {
	if action.Payload == nil {
		return fallback, nil
	}
	err, ok := action.Payload.(error)
	if !ok {
		return "", invalidPayload(action)
	}
	if apiErr, ok := api.AsError(err); ok {
		if apiErr.Message == "" {
			return fallback, nil
		}
		return apiErr.Message, nil
	}
	if msg := err.Error(); msg != "" {
		return msg, nil
	}
	return fallback, nil
}

func indexOf(records []contracts.ShipmentRecord, id string) int {
	if id == "" {
		return -1
	}
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
