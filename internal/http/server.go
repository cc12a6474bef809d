// Package httpapi exposes the fleet system over HTTP: public bus and
// ambulance lookups, authenticated student booking, driver duty and
// pickup flows, the admin surface, and the device ingest endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/campus-fleet/internal/auth"
	"github.com/example/campus-fleet/internal/booking"
	"github.com/example/campus-fleet/internal/fleet"
	"github.com/example/campus-fleet/internal/ingest"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/otp"
	"github.com/example/campus-fleet/internal/store"
	"github.com/example/campus-fleet/internal/telemetry"
	"github.com/example/campus-fleet/internal/trips"
)

type Server struct {
	store    store.Store
	auth     *auth.Service
	registry *fleet.Registry
	bookings *booking.Service
	trips    *trips.Service
	ingestor *telemetry.Ingestor
	otps     *otp.Ledger
	notify   booking.Notifier
	kafka    *ingest.KafkaProducer
	logger   *slog.Logger
	mux      *mux.Router
}

// Deps carries everything the server needs; Kafka and Notify may be nil.
type Deps struct {
	Store    store.Store
	Auth     *auth.Service
	Registry *fleet.Registry
	Bookings *booking.Service
	Trips    *trips.Service
	Ingestor *telemetry.Ingestor
	OTPs     *otp.Ledger
	Notify   booking.Notifier
	Kafka    *ingest.KafkaProducer
	Logger   *slog.Logger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    d.Store,
		auth:     d.Auth,
		registry: d.Registry,
		bookings: d.Bookings,
		trips:    d.Trips,
		ingestor: d.Ingestor,
		otps:     d.OTPs,
		notify:   d.Notify,
		kafka:    d.Kafka,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup).Methods("POST")
	s.mux.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	s.mux.HandleFunc("/auth/me", s.requireAuth(s.handleMe)).Methods("GET")
	s.mux.HandleFunc("/auth/forgot-password", s.handleForgotPassword).Methods("POST")
	s.mux.HandleFunc("/auth/reset-password", s.handleResetPassword).Methods("POST")

	// public / student
	s.mux.HandleFunc("/public/buses", s.handleActiveBuses).Methods("GET")
	s.mux.HandleFunc("/public/bus/{bus_id}/eta", s.handleBusETA).Methods("GET")
	s.mux.HandleFunc("/public/ambulances", s.handleAvailableAmbulances).Methods("GET")
	s.mux.HandleFunc("/public/my-bookings", s.requireAuth(s.handleMyBookings)).Methods("GET")
	s.mux.HandleFunc("/public/ambulance/book", s.requireAuth(s.handleBookAmbulance)).Methods("POST")
	s.mux.HandleFunc("/public/check-user", s.handleCheckUser).Methods("POST")

	// driver
	s.mux.HandleFunc("/driver/available-vehicles/{vehicle_type}", s.requireRole(models.RoleDriver, s.handleAvailableVehicles)).Methods("GET")
	s.mux.HandleFunc("/driver/assign-vehicle/{vehicle_id}", s.requireRole(models.RoleDriver, s.handleAssignVehicle)).Methods("POST")
	s.mux.HandleFunc("/driver/release-vehicle/{vehicle_id}", s.requireRole(models.RoleDriver, s.handleReleaseVehicle)).Methods("POST")
	s.mux.HandleFunc("/driver/start-trip", s.requireRole(models.RoleDriver, s.handleStartTrip)).Methods("POST")
	s.mux.HandleFunc("/driver/end-trip/{trip_id}", s.requireRole(models.RoleDriver, s.handleEndTrip)).Methods("POST")
	s.mux.HandleFunc("/driver/mark-out-of-station/{vehicle_id}", s.requireRole(models.RoleDriver, s.handleMarkOutOfStation)).Methods("POST")
	s.mux.HandleFunc("/driver/pending-bookings", s.requireRole(models.RoleDriver, s.handlePendingBookings)).Methods("GET")
	s.mux.HandleFunc("/driver/accept-booking/{booking_id}", s.requireRole(models.RoleDriver, s.handleAcceptBooking)).Methods("POST")
	s.mux.HandleFunc("/driver/abort-booking/{booking_id}", s.requireRole(models.RoleDriver, s.handleAbortBooking)).Methods("POST")
	s.mux.HandleFunc("/driver/verify-otp", s.requireRole(models.RoleDriver, s.handleVerifyOTP)).Methods("POST")
	s.mux.HandleFunc("/driver/complete-booking/{booking_id}", s.requireRole(models.RoleDriver, s.handleCompleteBooking)).Methods("POST")
	s.mux.HandleFunc("/driver/my-trips", s.requireRole(models.RoleDriver, s.handleMyTrips)).Methods("GET")
	s.mux.HandleFunc("/driver/active-trip", s.requireRole(models.RoleDriver, s.handleActiveTrip)).Methods("GET")

	// admin
	s.mux.HandleFunc("/admin/stats", s.requireRole(models.RoleAdmin, s.handleAdminStats)).Methods("GET")
	s.mux.HandleFunc("/admin/vehicles", s.requireRole(models.RoleAdmin, s.handleAddVehicle)).Methods("POST")
	s.mux.HandleFunc("/admin/vehicles/list", s.requireRole(models.RoleAdmin, s.handleVehicleList)).Methods("GET")
	s.mux.HandleFunc("/admin/vehicles/{vehicle_id}", s.requireRole(models.RoleAdmin, s.handleDeleteVehicle)).Methods("DELETE")
	s.mux.HandleFunc("/admin/students", s.requireRole(models.RoleAdmin, s.handleStudentList)).Methods("GET")
	s.mux.HandleFunc("/admin/students/{student_id}", s.requireRole(models.RoleAdmin, s.handleDeleteStudent)).Methods("DELETE")
	s.mux.HandleFunc("/admin/drivers", s.requireRole(models.RoleAdmin, s.handleDriverList)).Methods("GET")
	s.mux.HandleFunc("/admin/drivers/{driver_id}", s.requireRole(models.RoleAdmin, s.handleDeleteDriver)).Methods("DELETE")
	s.mux.HandleFunc("/admin/offences", s.requireRole(models.RoleAdmin, s.handleOffenceList)).Methods("GET")
	s.mux.HandleFunc("/admin/offences/{offence_id}", s.requireRole(models.RoleAdmin, s.handleDeleteOffence)).Methods("DELETE")
	s.mux.HandleFunc("/admin/offences/{offence_id}/mark-paid", s.requireRole(models.RoleAdmin, s.handleMarkOffencePaid)).Methods("PATCH")
	s.mux.HandleFunc("/admin/rfid-devices", s.requireRole(models.RoleAdmin, s.handleAddRFIDDevice)).Methods("POST")
	s.mux.HandleFunc("/admin/rfid-devices/list", s.requireRole(models.RoleAdmin, s.handleRFIDDeviceList)).Methods("GET")
	s.mux.HandleFunc("/admin/rfid-devices/{device_id}", s.requireRole(models.RoleAdmin, s.handleDeleteRFIDDevice)).Methods("DELETE")
	s.mux.HandleFunc("/admin/trips", s.requireRole(models.RoleAdmin, s.handleTripList)).Methods("GET")
	s.mux.HandleFunc("/admin/bookings", s.requireRole(models.RoleAdmin, s.handleBookingList)).Methods("GET")

	// device ingest
	s.mux.HandleFunc("/gps/receive", s.handleReceiveGPS).Methods("POST")
	s.mux.HandleFunc("/rfid/scan", s.handleReceiveRFIDScan).Methods("POST")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"detail": detail})
}

// writeError maps domain errors onto HTTP statuses, one place for the
// whole API.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
	case errors.Is(err, store.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "not yours"})
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		writeJSON(w, http.StatusConflict, map[string]string{"detail": err.Error()})
	case errors.Is(err, booking.ErrNoAmbulance), errors.Is(err, booking.ErrInvalidOTP):
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal error"})
	}
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
