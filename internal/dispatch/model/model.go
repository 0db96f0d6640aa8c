package model

// Location is a raw coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point is a location optionally annotated with a street address, used for
// pickup and dropoff.
type Point struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Rider is the summary of the requesting party attached to a broadcast.
type Rider struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Vehicle struct {
	Color       string `json:"color"`
	Plate       string `json:"plate"`
	Capacity    int    `json:"capacity"`
	VehicleType string `json:"vehicleType"`
}

// DriverProfile is the public slice of a driver record sent to the rider on
// acceptance.
type DriverProfile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Vehicle  Vehicle   `json:"vehicle"`
	Location *Location `json:"location,omitempty"`
}
