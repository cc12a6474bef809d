package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campus-fleet/internal/auth"
	"github.com/example/campus-fleet/internal/booking"
	"github.com/example/campus-fleet/internal/fleet"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/otp"
	"github.com/example/campus-fleet/internal/store"
	"github.com/example/campus-fleet/internal/telemetry"
	"github.com/example/campus-fleet/internal/trips"
)

type testNotifier struct {
	codes map[string]string
}

func (n *testNotifier) SendOTP(_ context.Context, phone, code string) error {
	n.codes[phone] = code
	return nil
}

type env struct {
	server *Server
	store  *store.MemoryStore
	auth   *auth.Service
	notify *testNotifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := store.NewMemoryStore()
	authSvc := auth.NewService("test-secret", time.Hour)
	reg := fleet.NewRegistry(st, nil, nil)
	ledger := otp.NewLedger(otp.NewMemoryStore())
	notify := &testNotifier{codes: map[string]string{}}
	bookings := booking.NewService(st, reg, ledger, notify, nil)
	tripSvc := trips.NewService(st, reg, nil)
	ingestor := telemetry.NewIngestor(st, reg, bookings, nil)

	srv := NewServer(Deps{
		Store:    st,
		Auth:     authSvc,
		Registry: reg,
		Bookings: bookings,
		Trips:    tripSvc,
		Ingestor: ingestor,
		OTPs:     ledger,
		Notify:   notify,
	})
	return &env{server: srv, store: st, auth: authSvc, notify: notify}
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (e *env) addUser(t *testing.T, name, phone, regID string, role models.Role, dt *models.VehicleType) (*models.User, string) {
	t.Helper()
	hash, err := e.auth.HashPassword("secret123")
	require.NoError(t, err)
	u := &models.User{Name: name, Phone: phone, RegistrationID: regID, PasswordHash: hash, Role: role, DriverType: dt}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	token, err := e.auth.GenerateToken(u)
	require.NoError(t, err)
	return u, token
}

func (e *env) addVehicle(t *testing.T, number string, vt models.VehicleType) *models.Vehicle {
	t.Helper()
	v := &models.Vehicle{VehicleNumber: number, GPSIMEI: "imei-" + number, Type: vt}
	require.NoError(t, e.store.CreateVehicle(context.Background(), v))
	return v
}

func TestSignupAndLogin(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "POST", "/auth/signup", "", map[string]any{
		"name": "carol", "phone": "555-0100", "password": "secret123", "registration_id": "REG-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[tokenResponse](t, rec)
	assert.NotEmpty(t, created.AccessToken)
	assert.Equal(t, models.RoleStudent, created.User.Role)

	rec = e.do(t, "POST", "/auth/login", "", map[string]any{"phone": "555-0100", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, "POST", "/auth/login", "", map[string]any{"phone": "555-0100", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignupDuplicatePhone(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "carol", "555-0100", "REG-1", models.RoleStudent, nil)

	rec := e.do(t, "POST", "/auth/signup", "", map[string]any{
		"name": "other", "phone": "555-0100", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDriverRoutesRejectStudents(t *testing.T) {
	e := newEnv(t)
	_, studentToken := e.addUser(t, "carol", "555-0100", "REG-1", models.RoleStudent, nil)

	rec := e.do(t, "GET", "/driver/pending-bookings", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, "GET", "/driver/pending-bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A token without the Bearer scheme is not accepted.
	req := httptest.NewRequest("GET", "/driver/pending-bookings", nil)
	req.Header.Set("Authorization", studentToken)
	raw := httptest.NewRecorder()
	e.server.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusUnauthorized, raw.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "carol", "555-0100", "REG-1", models.RoleStudent, nil)

	rec := e.do(t, "POST", "/auth/forgot-password", "", map[string]any{"phone": "555-0100"})
	require.Equal(t, http.StatusOK, rec.Code)
	code := e.notify.codes["555-0100"]
	require.NotEmpty(t, code)

	rec = e.do(t, "POST", "/auth/reset-password", "", map[string]any{
		"phone": "555-0100", "otp": "000000", "new_password": "newpass123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, "POST", "/auth/reset-password", "", map[string]any{
		"phone": "555-0100", "otp": code, "new_password": "newpass123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, "POST", "/auth/login", "", map[string]any{"phone": "555-0100", "password": "newpass123"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForgotPasswordUnknownPhone(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, "POST", "/auth/forgot-password", "", map[string]any{"phone": "nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAmbulanceBookingJourney(t *testing.T) {
	e := newEnv(t)
	dt := models.VehicleAmbulance
	_, driverToken := e.addUser(t, "alice", "555-0200", "", models.RoleDriver, &dt)
	_, studentToken := e.addUser(t, "carol", "555-0100", "REG-1", models.RoleStudent, nil)
	amb := e.addVehicle(t, "AMB-01", models.VehicleAmbulance)

	// Driver claims the ambulance.
	rec := e.do(t, "POST", "/driver/assign-vehicle/"+amb.ID.String(), driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Student books.
	rec = e.do(t, "POST", "/public/ambulance/book", studentToken, map[string]any{
		"student_registration_id": "REG-1",
		"place":                   "library",
		"user_location":           map[string]any{"lat": 12.1, "lng": 77.0},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	booked := decode[models.Booking](t, rec)
	assert.Equal(t, "carol", booked.StudentName)
	assert.Equal(t, "555-0100", booked.Phone)

	// Driver sees the pending booking and accepts.
	rec = e.do(t, "GET", "/driver/pending-bookings", driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[struct {
		Bookings []models.Booking `json:"bookings"`
	}](t, rec)
	require.Len(t, pending.Bookings, 1)

	rec = e.do(t, "POST", "/driver/accept-booking/"+booked.ID.String(), driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Accepting again conflicts.
	rec = e.do(t, "POST", "/driver/accept-booking/"+booked.ID.String(), driverToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Wrong code is rejected and the booking stays accepted.
	rec = e.do(t, "POST", "/driver/verify-otp", driverToken, map[string]any{
		"booking_id": booked.ID, "otp": "999999",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code := e.notify.codes["555-0100"]
	require.NotEmpty(t, code)
	rec = e.do(t, "POST", "/driver/verify-otp", driverToken, map[string]any{
		"booking_id": booked.ID, "otp": code,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, "POST", "/driver/complete-booking/"+booked.ID.String(), driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Student sees the completed booking.
	rec = e.do(t, "GET", "/public/my-bookings", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[struct {
		Bookings []models.Booking `json:"bookings"`
	}](t, rec)
	require.Len(t, mine.Bookings, 1)
	assert.Equal(t, models.BookingCompleted, mine.Bookings[0].Status)
}

func TestTripLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	dt := models.VehicleBus
	_, driverToken := e.addUser(t, "alice", "555-0200", "", models.RoleDriver, &dt)
	bus := e.addVehicle(t, "BUS-01", models.VehicleBus)

	rec := e.do(t, "POST", "/driver/assign-vehicle/"+bus.ID.String(), driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, "POST", "/driver/start-trip", driverToken, map[string]any{"vehicle_id": bus.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	trip := decode[models.Trip](t, rec)
	assert.Equal(t, "BUS-01", trip.VehicleNumber)

	// Second start conflicts.
	rec = e.do(t, "POST", "/driver/start-trip", driverToken, map[string]any{"vehicle_id": bus.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Bus shows up for the public while the trip runs.
	rec = e.do(t, "POST", "/gps/receive", "", models.GPSSample{IMEI: bus.GPSIMEI, Latitude: 12.0, Longitude: 77.0, Speed: 30})
	require.Equal(t, http.StatusOK, rec.Code)
	ack := decode[map[string]string](t, rec)
	assert.Equal(t, bus.ID.String(), ack["vehicle_id"])

	rec = e.do(t, "GET", "/public/buses", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	buses := decode[struct {
		Buses []activeBus `json:"buses"`
	}](t, rec)
	require.Len(t, buses.Buses, 1)
	require.NotNil(t, buses.Buses[0].Location)

	rec = e.do(t, "GET", fmt.Sprintf("/public/bus/%s/eta?user_lat=12.1&user_lng=77.0", bus.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	eta := decode[map[string]any](t, rec)
	// 0.1 deg latitude at 40 km/h is roughly 16.7 minutes.
	assert.InDelta(t, 16.7, eta["eta_minutes"].(float64), 0.5)

	rec = e.do(t, "POST", "/driver/end-trip/"+trip.ID.String(), driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, "GET", "/public/buses", "", nil)
	body := decode[map[string]any](t, rec)
	assert.Empty(t, body["buses"])
}

func TestBusETAValidation(t *testing.T) {
	e := newEnv(t)
	bus := e.addVehicle(t, "BUS-01", models.VehicleBus)

	rec := e.do(t, "GET", "/public/bus/"+bus.ID.String()+"/eta", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, "GET", fmt.Sprintf("/public/bus/%s/eta?user_lat=12.1&user_lng=77.0", bus.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Nil(t, body["eta_minutes"])
}

func TestGPSReceiveEchoesVehicleID(t *testing.T) {
	e := newEnv(t)
	sample := models.GPSSample{IMEI: "imei-BUS-01", Latitude: 12.0, Longitude: 77.0, Speed: 30}

	rec := e.do(t, "POST", "/gps/receive", "", sample)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bus := e.addVehicle(t, "BUS-01", models.VehicleBus)
	rec = e.do(t, "POST", "/gps/receive", "", sample)
	require.Equal(t, http.StatusOK, rec.Code)
	ack := decode[map[string]string](t, rec)
	assert.Equal(t, "GPS data received", ack["message"])
	assert.Equal(t, bus.ID.String(), ack["vehicle_id"])
}

func TestGPSOverspeedCreatesOffence(t *testing.T) {
	e := newEnv(t)
	dt := models.VehicleBus
	_, driverToken := e.addUser(t, "alice", "555-0200", "", models.RoleDriver, &dt)
	_, adminToken := e.addUser(t, "root", "555-0001", "", models.RoleAdmin, nil)
	bus := e.addVehicle(t, "BUS-01", models.VehicleBus)
	rec := e.do(t, "POST", "/driver/assign-vehicle/"+bus.ID.String(), driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, "POST", "/gps/receive", "", models.GPSSample{IMEI: bus.GPSIMEI, Latitude: 12.0, Longitude: 77.0, Speed: 55})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, "GET", "/admin/offences?offence_type=bus_overspeed", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	offs := decode[struct {
		Offences []models.Offence `json:"offences"`
	}](t, rec)
	require.Len(t, offs.Offences, 1)
	assert.Equal(t, "alice", offs.Offences[0].DriverName)

	rec = e.do(t, "GET", "/admin/offences", driverToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRFIDScanOverHTTP(t *testing.T) {
	e := newEnv(t)
	_, adminToken := e.addUser(t, "root", "555-0001", "", models.RoleAdmin, nil)

	rec := e.do(t, "POST", "/admin/rfid-devices", adminToken, map[string]any{
		"rfid_id": "gate-1", "location_name": "Main Gate",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, "POST", "/rfid/scan", "", models.RFIDScan{RFIDDeviceID: "gate-1", StudentRegistrationID: "REG-1", Speed: 55})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, "POST", "/rfid/scan", "", models.RFIDScan{RFIDDeviceID: "missing", Speed: 55})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminStats(t *testing.T) {
	e := newEnv(t)
	_, adminToken := e.addUser(t, "root", "555-0001", "", models.RoleAdmin, nil)
	e.addUser(t, "carol", "555-0100", "REG-1", models.RoleStudent, nil)
	e.addVehicle(t, "BUS-01", models.VehicleBus)

	rec := e.do(t, "GET", "/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[store.Stats](t, rec)
	assert.Equal(t, 1, stats.TotalStudents)
	assert.Equal(t, 1, stats.TotalBuses)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
