package model

import "encoding/json"

// Envelope is the wire frame for every socket message, both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound events.
const (
	EventDriverOnline   = "driver:online"
	EventDriverLocation = "driver:location"
	EventRideJoin       = "ride:join"
	EventRideBroadcast  = "ride:broadcast"
	EventRideAccept     = "ride:accept"
	EventRideReject     = "ride:reject"
)

// Outbound events.
const (
	EventRideNew      = "ride:new"
	EventRideAccepted = "ride:accepted"
	EventRideTaken    = "ride:taken"
	// driver:location is also emitted server-side into ride topics.
)

// TopicAvailableDrivers is the room every online driver belongs to.
const TopicAvailableDrivers = "drivers:online"

// RideTopic names the per-ride room joined by the rider (and the assigned
// driver) for acceptance and live-location events.
func RideTopic(rideID string) string {
	return "ride:" + rideID
}

type DriverOnlinePayload struct {
	Token    string    `json:"token"`
	Location *Location `json:"location,omitempty"`
}

type DriverLocationPayload struct {
	Token  string  `json:"token"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	RideID string  `json:"rideId,omitempty"`
}

type RideJoinPayload struct {
	RideID string `json:"rideId"`
}

type RideBroadcastPayload struct {
	RideID  string  `json:"rideId"`
	Pickup  Point   `json:"pickup"`
	Dropoff Point   `json:"dropoff"`
	Rider   Rider   `json:"rider"`
	Fare    float64 `json:"fare"`
}

type RideAcceptPayload struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
	Token    string `json:"token"`
}

type RideRejectPayload struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
	Token    string `json:"token"`
}

type RideNewPayload struct {
	RideID    string  `json:"rideId"`
	Pickup    Point   `json:"pickup"`
	Dropoff   Point   `json:"dropoff"`
	Rider     Rider   `json:"rider"`
	Fare      float64 `json:"fare"`
	Timestamp int64   `json:"timestamp"`
}

type RideAcceptedPayload struct {
	RideID    string        `json:"rideId"`
	Driver    DriverProfile `json:"driver"`
	Message   string        `json:"message"`
	Timestamp int64         `json:"timestamp"`
}

type RideTakenPayload struct {
	RideID string `json:"rideId"`
}

type DriverLocationEvent struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	RideID string  `json:"rideId"`
}
