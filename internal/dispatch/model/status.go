package model

// PresenceStatus is a driver's availability state. Only online drivers are
// members of the available-drivers topic.
type PresenceStatus string

const (
	StatusOffline PresenceStatus = "offline"
	StatusOnline  PresenceStatus = "online"
	StatusOnTrip  PresenceStatus = "on-trip"
)

// RideStatus is the dispatch-side lifecycle of a ride request. Once assigned,
// further lifecycle (in progress, completed) belongs to the ride store.
type RideStatus string

const (
	RideBroadcasting RideStatus = "broadcasting"
	RideAssigned     RideStatus = "assigned"
	RideClosed       RideStatus = "closed"
)
