package httpapi

import (
	"net/http"
	"strings"

	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/store"
)

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type addVehicleRequest struct {
	VehicleNumber string             `json:"vehicle_number"`
	GPSIMEI       string             `json:"gps_imei"`
	Barcode       string             `json:"barcode"`
	VehicleType   models.VehicleType `json:"vehicle_type"`
}

func (s *Server) handleAddVehicle(w http.ResponseWriter, r *http.Request) {
	var req addVehicleRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.VehicleNumber == "" || req.GPSIMEI == "" || !req.VehicleType.Valid() {
		badRequest(w, "vehicle_number, gps_imei and a valid vehicle_type required")
		return
	}
	v := &models.Vehicle{
		VehicleNumber: req.VehicleNumber,
		GPSIMEI:       req.GPSIMEI,
		Barcode:       req.Barcode,
		Type:          req.VehicleType,
	}
	if err := s.store.CreateVehicle(r.Context(), v); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleVehicleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vehicles, err := s.store.ListVehicles(r.Context(), store.VehicleFilter{
		Type:   models.VehicleType(q.Get("vehicle_type")),
		Search: q.Get("search"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

func (s *Server) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "vehicle_id")
	if !ok {
		badRequest(w, "invalid vehicle id")
		return
	}
	if err := s.store.DeleteVehicle(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vehicle deleted"})
}

func (s *Server) handleStudentList(w http.ResponseWriter, r *http.Request) {
	students, err := s.store.ListUsers(r.Context(), store.UserFilter{
		Role:   models.RoleStudent,
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": students})
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "student_id")
	if !ok {
		badRequest(w, "invalid student id")
		return
	}
	if err := s.store.DeleteUser(r.Context(), id, models.RoleStudent); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Student deleted"})
}

func (s *Server) handleDriverList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	drivers, err := s.store.ListUsers(r.Context(), store.UserFilter{
		Role:       models.RoleDriver,
		DriverType: models.VehicleType(q.Get("driver_type")),
		Search:     q.Get("search"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": drivers})
}

func (s *Server) handleDeleteDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "driver_id")
	if !ok {
		badRequest(w, "invalid driver id")
		return
	}
	// Release held vehicles first so they become assignable again.
	if err := s.store.ReleaseVehiclesOfDriver(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.DeleteUser(r.Context(), id, models.RoleDriver); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Driver deleted"})
}

func (s *Server) handleOffenceList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.OffenceFilter{
		Type:   models.OffenceType(q.Get("offence_type")),
		Search: q.Get("search"),
	}
	if raw := q.Get("is_paid"); raw != "" {
		paid := strings.EqualFold(raw, "true")
		f.IsPaid = &paid
	}
	offences, err := s.store.ListOffences(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offences": offences})
}

func (s *Server) handleDeleteOffence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "offence_id")
	if !ok {
		badRequest(w, "invalid offence id")
		return
	}
	if err := s.store.DeleteOffence(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Offence deleted"})
}

func (s *Server) handleMarkOffencePaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "offence_id")
	if !ok {
		badRequest(w, "invalid offence id")
		return
	}
	if err := s.store.MarkOffencePaid(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Offence marked as paid"})
}

func (s *Server) handleAddRFIDDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RFIDID       string `json:"rfid_id"`
		LocationName string `json:"location_name"`
	}
	if err := decodeBody(r, &req); err != nil || req.RFIDID == "" || req.LocationName == "" {
		badRequest(w, "rfid_id and location_name required")
		return
	}
	d := &models.RFIDDevice{RFIDID: req.RFIDID, LocationName: req.LocationName}
	if err := s.store.CreateDevice(r.Context(), d); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleRFIDDeviceList(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleDeleteRFIDDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "device_id")
	if !ok {
		badRequest(w, "invalid device id")
		return
	}
	if err := s.store.DeleteDevice(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Device deleted"})
}

func (s *Server) handleTripList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TripFilter{VehicleType: models.VehicleType(q.Get("vehicle_type"))}
	if raw := q.Get("is_active"); raw != "" {
		active := strings.EqualFold(raw, "true")
		f.IsActive = &active
	}
	list, err := s.store.ListTrips(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trips": list})
}

func (s *Server) handleBookingList(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListBookings(r.Context(), store.BookingFilter{
		Status: models.BookingStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}
