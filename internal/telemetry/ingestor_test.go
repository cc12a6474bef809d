package telemetry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campus-fleet/internal/booking"
	"github.com/example/campus-fleet/internal/fleet"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/otp"
	"github.com/example/campus-fleet/internal/store"
)

type discardNotifier struct{}

func (discardNotifier) SendOTP(context.Context, string, string) error { return nil }

func newIngestor(t *testing.T) (*Ingestor, *store.MemoryStore, *booking.Service) {
	t.Helper()
	s := store.NewMemoryStore()
	reg := fleet.NewRegistry(s, nil, nil)
	bk := booking.NewService(s, reg, otp.NewLedger(otp.NewMemoryStore()), discardNotifier{}, nil)
	return NewIngestor(s, reg, bk, nil), s, bk
}

func addDriverWithVehicle(t *testing.T, s *store.MemoryStore, name, number string, vt models.VehicleType) (*models.User, *models.Vehicle) {
	t.Helper()
	ctx := context.Background()
	d := &models.User{Name: name, Phone: name + "-phone", Role: models.RoleDriver, DriverType: &vt}
	require.NoError(t, s.CreateUser(ctx, d))
	v := &models.Vehicle{VehicleNumber: number, GPSIMEI: "imei-" + number, Type: vt}
	require.NoError(t, s.CreateVehicle(ctx, v))
	require.NoError(t, s.AssignVehicle(ctx, v.ID, d.ID, d.Name))
	return d, v
}

func feedGPS(t *testing.T, ing *Ingestor, s models.GPSSample) {
	t.Helper()
	_, err := ing.ReceiveGPS(context.Background(), s)
	require.NoError(t, err)
}

func TestReceiveGPSUnknownIMEI(t *testing.T) {
	ing, _, _ := newIngestor(t)
	id, err := ing.ReceiveGPS(context.Background(), models.GPSSample{IMEI: "nope", Latitude: 1, Longitude: 2})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, uuid.Nil, id)
}

func TestReceiveGPSReportsResolvedVehicle(t *testing.T) {
	ing, s, _ := newIngestor(t)
	ctx := context.Background()
	_, v := addDriverWithVehicle(t, s, "alice", "BUS-01", models.VehicleBus)

	id, err := ing.ReceiveGPS(ctx, models.GPSSample{IMEI: v.GPSIMEI, Latitude: 1, Longitude: 2, Speed: 20})
	require.NoError(t, err)
	assert.Equal(t, v.ID, id)
}

func TestReceiveGPSOverwritesLocation(t *testing.T) {
	ing, s, _ := newIngestor(t)
	ctx := context.Background()
	_, v := addDriverWithVehicle(t, s, "alice", "BUS-01", models.VehicleBus)

	feedGPS(t, ing, models.GPSSample{IMEI: v.GPSIMEI, Latitude: 1, Longitude: 2, Speed: 20})
	feedGPS(t, ing, models.GPSSample{IMEI: v.GPSIMEI, Latitude: 3, Longitude: 4, Speed: 25})

	got, err := s.VehicleByID(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentLocation)
	assert.Equal(t, 3.0, got.CurrentLocation.Lat)
	assert.Equal(t, 25.0, got.CurrentLocation.Speed)
}

func TestBusOverspeedRecordsOffencePerSample(t *testing.T) {
	ing, s, _ := newIngestor(t)
	ctx := context.Background()
	d, v := addDriverWithVehicle(t, s, "alice", "BUS-01", models.VehicleBus)

	// At the limit: no offence.
	feedGPS(t, ing, models.GPSSample{IMEI: v.GPSIMEI, Latitude: 1, Longitude: 2, Speed: models.CampusSpeedLimitKmh})
	offs, err := s.ListOffences(ctx, store.OffenceFilter{})
	require.NoError(t, err)
	assert.Empty(t, offs)

	// Over the limit twice: two offences, replay included.
	sample := models.GPSSample{IMEI: v.GPSIMEI, Latitude: 1, Longitude: 2, Speed: 52}
	feedGPS(t, ing, sample)
	feedGPS(t, ing, sample)

	offs, err = s.ListOffences(ctx, store.OffenceFilter{Type: models.OffenceBusOverspeed})
	require.NoError(t, err)
	require.Len(t, offs, 2)
	o := offs[0]
	require.NotNil(t, o.DriverID)
	assert.Equal(t, d.ID, *o.DriverID)
	assert.Equal(t, "alice", o.DriverName)
	assert.Equal(t, "BUS-01", o.VehicleNumber)
	assert.Equal(t, 52.0, o.Speed)
	assert.Equal(t, models.CampusSpeedLimitKmh, o.SpeedLimit)
	require.NotNil(t, o.Location)
	assert.Equal(t, 1.0, o.Location.Lat)
}

func TestAmbulanceOverspeedRecordsNothing(t *testing.T) {
	ing, s, _ := newIngestor(t)
	ctx := context.Background()
	_, v := addDriverWithVehicle(t, s, "alice", "AMB-01", models.VehicleAmbulance)

	feedGPS(t, ing, models.GPSSample{IMEI: v.GPSIMEI, Latitude: 1, Longitude: 2, Speed: 90})

	offs, err := s.ListOffences(ctx, store.OffenceFilter{})
	require.NoError(t, err)
	assert.Empty(t, offs)
}

func TestAmbulanceSampleRefreshesBookingETA(t *testing.T) {
	ing, s, bk := newIngestor(t)
	ctx := context.Background()
	d, v := addDriverWithVehicle(t, s, "alice", "AMB-01", models.VehicleAmbulance)

	b, err := bk.Create(ctx, "REG-1", "555-0100", "gate", "", &models.Location{Lat: 12.1, Lng: 77.0})
	require.NoError(t, err)
	_, err = bk.Accept(ctx, b.ID, d.ID)
	require.NoError(t, err)

	feedGPS(t, ing, models.GPSSample{IMEI: v.GPSIMEI, Latitude: 12.0, Longitude: 77.0, Speed: 50})

	got, err := s.BookingByID(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ETAMinutes)
	// 0.1 deg latitude at 60 km/h is around 11 minutes.
	assert.InDelta(t, 11.1, *got.ETAMinutes, 0.5)
}

func TestRFIDScanUnknownDevice(t *testing.T) {
	ing, _, _ := newIngestor(t)
	err := ing.ReceiveRFIDScan(context.Background(), models.RFIDScan{RFIDDeviceID: "nope", Speed: 50})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRFIDScanUnderLimitRecordsNothing(t *testing.T) {
	ing, s, _ := newIngestor(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDevice(ctx, &models.RFIDDevice{RFIDID: "gate-1", LocationName: "Main Gate"}))

	require.NoError(t, ing.ReceiveRFIDScan(ctx, models.RFIDScan{RFIDDeviceID: "gate-1", StudentRegistrationID: "REG-1", Speed: 30}))

	offs, err := s.ListOffences(ctx, store.OffenceFilter{})
	require.NoError(t, err)
	assert.Empty(t, offs)
}

func TestRFIDScanOverLimitResolvesStudent(t *testing.T) {
	ing, s, _ := newIngestor(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDevice(ctx, &models.RFIDDevice{RFIDID: "gate-1", LocationName: "Main Gate"}))
	stu := &models.User{Name: "carol", Phone: "555-0100", RegistrationID: "REG-1", Role: models.RoleStudent}
	require.NoError(t, s.CreateUser(ctx, stu))

	require.NoError(t, ing.ReceiveRFIDScan(ctx, models.RFIDScan{RFIDDeviceID: "gate-1", StudentRegistrationID: "REG-1", Speed: 55}))

	offs, err := s.ListOffences(ctx, store.OffenceFilter{Type: models.OffenceStudentSpeed})
	require.NoError(t, err)
	require.Len(t, offs, 1)
	o := offs[0]
	require.NotNil(t, o.StudentID)
	assert.Equal(t, stu.ID, *o.StudentID)
	assert.Equal(t, "carol", o.StudentName)
	assert.Equal(t, "gate-1", o.RFIDNumber)
	require.NotNil(t, o.Location)
	assert.Equal(t, "Main Gate", o.Location.Name)
}

func TestRFIDScanUnknownStudentStillRecorded(t *testing.T) {
	ing, s, _ := newIngestor(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDevice(ctx, &models.RFIDDevice{RFIDID: "gate-1", LocationName: "Main Gate"}))

	require.NoError(t, ing.ReceiveRFIDScan(ctx, models.RFIDScan{
		RFIDDeviceID: "gate-1", StudentRegistrationID: "GHOST", StudentName: "reported name", Speed: 55,
	}))

	offs, err := s.ListOffences(ctx, store.OffenceFilter{Type: models.OffenceStudentSpeed})
	require.NoError(t, err)
	require.Len(t, offs, 1)
	assert.Nil(t, offs[0].StudentID)
	assert.Equal(t, "reported name", offs[0].StudentName)
	assert.Equal(t, "GHOST", offs[0].StudentRegistrationID)
}
