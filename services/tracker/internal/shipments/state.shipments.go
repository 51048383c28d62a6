// Package shipments is the client-side state container for the shipments
// slice: its state, actions, reducer, store and derived views.
package shipments

import (
	"time"

	"github.com/Tanmoy095/LogiSynapse/shared/contracts"
)

// LoadStatus drives the idle -> loading -> succeeded/failed state machine.
type LoadStatus string

const (
	StatusIdle      LoadStatus = "idle"
	StatusLoading   LoadStatus = "loading"
	StatusSucceeded LoadStatus = "succeeded"
	StatusFailed    LoadStatus = "failed"
)

// InitialVersion is the schema version of a freshly created slice.
const InitialVersion = 1

// PersistMeta is the persistence metadata attached to a rehydrated slice.
// The periodic validator hard-resets a live state that has none.
type PersistMeta struct {
	Version    int  `json:"version"`
	Rehydrated bool `json:"rehydrated"`
}

// State is the shipments slice.
// Invariants: StatusFailed implies Error != nil; StatusSucceeded implies Error == nil.
// Values are treated as immutable once published by the store; the reducer
// always copies before changing a slice.
type State struct {
	Shipments   []contracts.ShipmentRecord `json:"shipments"`
	Status      LoadStatus                 `json:"status"`
	Error       *string                    `json:"error"`
	Filter      *string                    `json:"filter"`
	LastUpdated *time.Time                 `json:"lastUpdated"`
	Version     int                        `json:"version"`
	Persist     *PersistMeta               `json:"_persist,omitempty"`
}

func InitialState() State {
	return State{
		Shipments: []contracts.ShipmentRecord{},
		Status:    StatusIdle,
		Version:   InitialVersion,
	}
}

func stringPtr(s string) *string { return &s }
