package shipments

import (
	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
)

// Action types. The names are part of the telemetry record, so they stay stable.
const (
	ActionFetchPending    = "shipments/fetchShipments/pending"
	ActionFetchFulfilled  = "shipments/fetchShipments/fulfilled"
	ActionFetchRejected   = "shipments/fetchShipments/rejected"
	ActionCreatePending   = "shipments/createShipment/pending"
	ActionCreateFulfilled = "shipments/createShipment/fulfilled"
	ActionCreateRejected  = "shipments/createShipment/rejected"
	ActionReset           = "shipments/resetShipments"
	ActionSetFilter       = "shipments/setFilter"

	// ActionStoreReset is the unconditional hard reset issued by the validator.
	ActionStoreReset = "STORE/RESET"
	// ActionRehydrate replaces the slice with the state loaded from storage.
	ActionRehydrate = "persist/REHYDRATE"
)

// Action is a dispatched state transition request.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func FetchStart() Action { return Action{Type: ActionFetchPending} }

func FetchSucceeded(records []contracts.ShipmentRecord) Action {
	return Action{Type: ActionFetchFulfilled, Payload: records}
}

// FetchFailed carries the rejection. A nil or message-less error falls back
// to the default failure message in the reducer.
func FetchFailed(err error) Action { return Action{Type: ActionFetchRejected, Payload: err} }

func CreateStart() Action { return Action{Type: ActionCreatePending} }

func CreateSucceeded(record contracts.ShipmentRecord) Action {
	return Action{Type: ActionCreateFulfilled, Payload: record}
}

func CreateFailed(err error) Action { return Action{Type: ActionCreateRejected, Payload: err} }

func Reset() Action { return Action{Type: ActionReset} }

// SetFilter takes a status string, a *string, or nil for "no filter".
// Anything else is ignored by the reducer.
func SetFilter(value any) Action { return Action{Type: ActionSetFilter, Payload: value} }

func StoreReset() Action { return Action{Type: ActionStoreReset} }

func Rehydrate(state State) Action { return Action{Type: ActionRehydrate, Payload: state} }
