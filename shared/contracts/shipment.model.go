package contracts // <-- Note the package name

import "time"

// ShipmentStatus is the server-owned lifecycle status of a shipment.
// Unknown values sent by the API are carried through unchanged.
type ShipmentStatus string

const (
	StatusInTransit ShipmentStatus = "In Transit"
	StatusDelayed   ShipmentStatus = "Delayed"
	StatusDelivered ShipmentStatus = "Delivered"
)

// RoutePoint is one position fix on a shipment's route.
type RoutePoint struct {
	Coordinates [2]float64 `json:"coordinates"` // [lat, lng]
	Timestamp   time.Time  `json:"timestamp"`
}

// ShipmentRecord is the client's cached copy of a shipment.
// All tracker components (state container, API client, event bridge) use this struct.
type ShipmentRecord struct {
	ID              string         `json:"id"`
	ShipmentID      string         `json:"shipmentId"`
	ContainerID     string         `json:"containerId"`
	CurrentLocation string         `json:"currentLocation"`
	CurrentEta      *time.Time     `json:"currentEta,omitempty"`
	AverageSpeed    float64        `json:"averageSpeed"`
	Route           []RoutePoint   `json:"route,omitempty"`
	Status          ShipmentStatus `json:"status"`
}

// CreateShipmentInput is the payload of POST /shipments.
type CreateShipmentInput struct {
	ShipmentID      string       `json:"shipmentId"`
	ContainerID     string       `json:"containerId"`
	CurrentLocation string       `json:"currentLocation"`
	CurrentEta      *time.Time   `json:"currentEta,omitempty"`
	AverageSpeed    float64      `json:"averageSpeed"`
	Route           []RoutePoint `json:"route"`
}

// ShipmentEvent is the platform event published on the shipments Kafka topic
// ({"event":"shipment.created","payload":{...}}).
type ShipmentEvent struct {
	Event   string         `json:"event"`
	Payload ShipmentRecord `json:"payload"`
}

const EventShipmentCreated = "shipment.created"
