package fare

import "math"

const earthRadiusKM = 6371

// Estimator computes fare estimates from great-circle distance. Pure and
// stateless; not part of the concurrent dispatch core.
type Estimator struct {
	BaseFare  float64
	RatePerKM float64
}

func NewEstimator(baseFare, ratePerKM float64) *Estimator {
	return &Estimator{BaseFare: baseFare, RatePerKM: ratePerKM}
}

type Estimate struct {
	BaseFare      float64 `json:"baseFare"`
	RatePerKM     float64 `json:"ratePerKm"`
	Distance      float64 `json:"distance"`
	EstimatedFare float64 `json:"estimatedFare"`
}

// Estimate returns the fare for a trip between the two points: base fare plus
// per-kilometer rate over the haversine distance. Distance is reported in km
// rounded to two decimals, the fare to the nearest whole unit.
func (e *Estimator) Estimate(pickupLat, pickupLng, dropoffLat, dropoffLng float64) Estimate {
	distance := haversineKM(pickupLat, pickupLng, dropoffLat, dropoffLng)
	return Estimate{
		BaseFare:      e.BaseFare,
		RatePerKM:     e.RatePerKM,
		Distance:      math.Round(distance*100) / 100,
		EstimatedFare: math.Round(e.BaseFare + distance*e.RatePerKM),
	}
}

func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}
