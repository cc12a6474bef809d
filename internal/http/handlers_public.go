package httpapi

import (
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/example/campus-fleet/internal/geo"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/store"
)

type activeBus struct {
	TripID         uuid.UUID        `json:"trip_id"`
	VehicleID      uuid.UUID        `json:"vehicle_id"`
	VehicleNumber  string           `json:"vehicle_number"`
	DriverName     string           `json:"driver_name"`
	Location       *models.Location `json:"location"`
	IsOutOfStation bool             `json:"is_out_of_station"`
}

func (s *Server) handleActiveBuses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	active := true
	trips, err := s.store.ListTrips(ctx, store.TripFilter{IsActive: &active, VehicleType: models.VehicleBus})
	if err != nil {
		s.writeError(w, err)
		return
	}

	if len(trips) > 0 {
		buses := make([]activeBus, 0, len(trips))
		for _, t := range trips {
			if t.VehicleID == nil {
				continue
			}
			v, err := s.store.VehicleByID(ctx, *t.VehicleID)
			if err != nil {
				continue
			}
			// A bus on an active trip is on campus; heal a stale flag.
			if v.IsOutOfStation && t.DriverID != nil {
				if err := s.registry.SetOutOfStation(ctx, v.ID, *t.DriverID, false); err != nil {
					s.logger.Warn("out-of-station reset failed", "vehicle_id", v.ID, "error", err)
				}
			}
			buses = append(buses, activeBus{
				TripID:        t.ID,
				VehicleID:     v.ID,
				VehicleNumber: v.VehicleNumber,
				DriverName:    t.DriverName,
				Location:      v.CurrentLocation,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"buses": buses, "all_out_of_station": false})
		return
	}

	allBuses, err := s.store.ListVehicles(ctx, store.VehicleFilter{Type: models.VehicleBus})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(allBuses) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"message": "No buses registered", "buses": []activeBus{}, "all_out_of_station": false})
		return
	}
	allOut := true
	for _, v := range allBuses {
		if !v.IsOutOfStation {
			allOut = false
			break
		}
	}
	if allOut {
		writeJSON(w, http.StatusOK, map[string]any{"message": "All buses are out of station", "buses": []activeBus{}, "all_out_of_station": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "No active bus trips at the moment", "buses": []activeBus{}, "all_out_of_station": false})
}

func (s *Server) handleBusETA(w http.ResponseWriter, r *http.Request) {
	busID, err := uuid.Parse(mux.Vars(r)["bus_id"])
	if err != nil {
		badRequest(w, "invalid bus id")
		return
	}
	latRaw := r.URL.Query().Get("user_lat")
	lngRaw := r.URL.Query().Get("user_lng")
	if latRaw == "" || lngRaw == "" {
		badRequest(w, "user_lat and user_lng required")
		return
	}
	userLat, errLat := strconv.ParseFloat(latRaw, 64)
	userLng, errLng := strconv.ParseFloat(lngRaw, 64)
	if errLat != nil || errLng != nil {
		badRequest(w, "user_lat and user_lng must be numbers")
		return
	}

	v, err := s.store.VehicleByID(r.Context(), busID)
	if err != nil || v.Type != models.VehicleBus {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "bus not found"})
		return
	}

	loc, err := s.registry.LastLocation(r.Context(), busID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if loc == nil {
		writeJSON(w, http.StatusOK, map[string]any{"eta_minutes": nil, "message": "Bus location not available"})
		return
	}

	distance := geo.Distance(loc.Lat, loc.Lng, userLat, userLng)
	eta := geo.ETAMinutes(distance, models.CampusSpeedLimitKmh)
	writeJSON(w, http.StatusOK, map[string]any{
		"bus_location":      loc,
		"user_location":     models.Location{Lat: userLat, Lng: userLng},
		"distance_km":       round2(distance),
		"eta_minutes":       round1(eta),
		"speed_assumed_kmh": models.CampusSpeedLimitKmh,
	})
}

func (s *Server) handleAvailableAmbulances(w http.ResponseWriter, r *http.Request) {
	ambulances, err := s.registry.ListAvailable(r.Context(), models.VehicleAmbulance)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ambulances": ambulances})
}

func (s *Server) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	u, err := s.store.UserByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	bookings, err := s.bookings.ByPhone(r.Context(), u.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

type bookAmbulanceRequest struct {
	StudentRegistrationID string           `json:"student_registration_id"`
	Phone                 string           `json:"phone"`
	Place                 string           `json:"place"`
	PlaceDetails          string           `json:"place_details"`
	UserLocation          *models.Location `json:"user_location"`
}

func (s *Server) handleBookAmbulance(w http.ResponseWriter, r *http.Request) {
	var req bookAmbulanceRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.StudentRegistrationID == "" || req.Place == "" {
		badRequest(w, "student_registration_id and place required")
		return
	}
	if req.Phone == "" {
		claims := claimsFromContext(r.Context())
		if u, err := s.store.UserByID(r.Context(), claims.UserID); err == nil {
			req.Phone = u.Phone
		}
	}
	if req.Phone == "" {
		badRequest(w, "phone required")
		return
	}

	b, err := s.bookings.Create(r.Context(), req.StudentRegistrationID, req.Phone, req.Place, req.PlaceDetails, req.UserLocation)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
