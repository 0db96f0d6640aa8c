package fare

import (
	"math"
	"net/http"

	"github.com/go-chi/render"
	"github.com/rs/zerolog"
)

type estimateRequest struct {
	// Pointers distinguish a missing coordinate from a legitimate zero.
	PickupLat  *float64 `json:"pickupLat"`
	PickupLng  *float64 `json:"pickupLng"`
	DropoffLat *float64 `json:"dropoffLat"`
	DropoffLng *float64 `json:"dropoffLng"`
}

func (r *estimateRequest) valid() bool {
	for _, v := range []*float64{r.PickupLat, r.PickupLng, r.DropoffLat, r.DropoffLng} {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return false
		}
	}
	return true
}

// EstimateHandler serves POST /fares/estimate.
func EstimateHandler(e *Estimator, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req estimateRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil || !req.valid() {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"message": "Invalid or missing coordinates"})
			return
		}

		est := e.Estimate(*req.PickupLat, *req.PickupLng, *req.DropoffLat, *req.DropoffLng)
		log.Debug().Float64("distance_km", est.Distance).Float64("fare", est.EstimatedFare).Msg("fare estimated")
		render.Status(r, http.StatusOK)
		render.JSON(w, r, est)
	}
}
