package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/store"
)

func pathUUID(r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[key])
	return id, err == nil
}

func (s *Server) handleAvailableVehicles(w http.ResponseWriter, r *http.Request) {
	vt := models.VehicleType(mux.Vars(r)["vehicle_type"])
	if !vt.Valid() {
		badRequest(w, "invalid vehicle type")
		return
	}
	vehicles, err := s.registry.ListAvailable(r.Context(), vt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

func (s *Server) handleAssignVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := pathUUID(r, "vehicle_id")
	if !ok {
		badRequest(w, "invalid vehicle id")
		return
	}
	claims := claimsFromContext(r.Context())
	driver, err := s.store.UserByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.registry.Assign(r.Context(), vehicleID, driver.ID, driver.Name); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vehicle assigned"})
}

func (s *Server) handleReleaseVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := pathUUID(r, "vehicle_id")
	if !ok {
		badRequest(w, "invalid vehicle id")
		return
	}
	claims := claimsFromContext(r.Context())
	if err := s.registry.Release(r.Context(), vehicleID, claims.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vehicle released"})
}

func (s *Server) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleID uuid.UUID `json:"vehicle_id"`
	}
	if err := decodeBody(r, &req); err != nil || req.VehicleID == uuid.Nil {
		badRequest(w, "vehicle_id required")
		return
	}
	claims := claimsFromContext(r.Context())
	trip, err := s.trips.Start(r.Context(), claims.UserID, req.VehicleID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

func (s *Server) handleEndTrip(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(r, "trip_id")
	if !ok {
		badRequest(w, "invalid trip id")
		return
	}
	claims := claimsFromContext(r.Context())
	if _, err := s.trips.End(r.Context(), tripID, claims.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Trip ended successfully"})
}

func (s *Server) handleMarkOutOfStation(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := pathUUID(r, "vehicle_id")
	if !ok {
		badRequest(w, "invalid vehicle id")
		return
	}
	var req struct {
		IsOutOfStation *bool `json:"is_out_of_station"`
	}
	if err := decodeBody(r, &req); err != nil || req.IsOutOfStation == nil {
		badRequest(w, "is_out_of_station (bool) required")
		return
	}
	claims := claimsFromContext(r.Context())
	if err := s.trips.MarkOutOfStation(r.Context(), vehicleID, claims.UserID, *req.IsOutOfStation); err != nil {
		s.writeError(w, err)
		return
	}
	msg := "Vehicle marked as in station"
	if *req.IsOutOfStation {
		msg = "Vehicle marked as out of station"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handlePendingBookings(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookings.Pending(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"bookings": []models.Booking{}})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": []models.Booking{*b}})
}

func (s *Server) handleAcceptBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathUUID(r, "booking_id")
	if !ok {
		badRequest(w, "invalid booking id")
		return
	}
	claims := claimsFromContext(r.Context())
	b, err := s.bookings.Accept(r.Context(), bookingID, claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Booking accepted", "booking": b})
}

func (s *Server) handleAbortBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathUUID(r, "booking_id")
	if !ok {
		badRequest(w, "invalid booking id")
		return
	}
	claims := claimsFromContext(r.Context())
	if err := s.bookings.Abort(r.Context(), bookingID, claims.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Booking cancelled"})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookingID uuid.UUID `json:"booking_id"`
		OTP       string    `json:"otp"`
	}
	if err := decodeBody(r, &req); err != nil || req.BookingID == uuid.Nil || req.OTP == "" {
		badRequest(w, "booking_id and otp required")
		return
	}
	claims := claimsFromContext(r.Context())
	if err := s.bookings.VerifyOTP(r.Context(), req.BookingID, claims.UserID, req.OTP); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP verified, ride started"})
}

func (s *Server) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathUUID(r, "booking_id")
	if !ok {
		badRequest(w, "invalid booking id")
		return
	}
	claims := claimsFromContext(r.Context())
	if err := s.bookings.Complete(r.Context(), bookingID, claims.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Booking completed"})
}

func (s *Server) handleMyTrips(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	list, err := s.trips.MyTrips(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trips": list})
}

func (s *Server) handleActiveTrip(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	trip, err := s.trips.ActiveTrip(r.Context(), claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"trip": nil})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trip": trip})
}
