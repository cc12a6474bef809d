package trips

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campus-fleet/internal/fleet"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/store"
)

func newService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return NewService(s, fleet.NewRegistry(s, nil, nil), nil), s
}

func addDriver(t *testing.T, s *store.MemoryStore, name string) *models.User {
	t.Helper()
	dt := models.VehicleBus
	u := &models.User{Name: name, Phone: name + "-phone", Role: models.RoleDriver, DriverType: &dt}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func addAssignedBus(t *testing.T, s *store.MemoryStore, number string, d *models.User) *models.Vehicle {
	t.Helper()
	ctx := context.Background()
	v := &models.Vehicle{VehicleNumber: number, GPSIMEI: "imei-" + number, Type: models.VehicleBus}
	require.NoError(t, s.CreateVehicle(ctx, v))
	require.NoError(t, s.AssignVehicle(ctx, v.ID, d.ID, d.Name))
	return v
}

func TestStartSnapshotsVehicleAndDriver(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	d := addDriver(t, s, "alice")
	v := addAssignedBus(t, s, "BUS-01", d)

	tr, err := svc.Start(ctx, d.ID, v.ID)
	require.NoError(t, err)
	assert.True(t, tr.IsActive)
	assert.Equal(t, "BUS-01", tr.VehicleNumber)
	assert.Equal(t, "alice", tr.DriverName)
	assert.Equal(t, models.VehicleBus, tr.VehicleType)
	assert.False(t, tr.StartTime.IsZero())
}

func TestStartRequiresAssignment(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	d := addDriver(t, s, "alice")
	other := addDriver(t, s, "bob")
	v := addAssignedBus(t, s, "BUS-01", other)

	_, err := svc.Start(ctx, d.ID, v.ID)
	assert.ErrorIs(t, err, store.ErrNotOwner)
}

func TestStartSecondActiveTripConflicts(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	d := addDriver(t, s, "alice")
	v := addAssignedBus(t, s, "BUS-01", d)

	_, err := svc.Start(ctx, d.ID, v.ID)
	require.NoError(t, err)
	_, err = svc.Start(ctx, d.ID, v.ID)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestEndClearsVehicleLocation(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	d := addDriver(t, s, "alice")
	v := addAssignedBus(t, s, "BUS-01", d)
	tr, err := svc.Start(ctx, d.ID, v.ID)
	require.NoError(t, err)

	require.NoError(t, s.UpdateVehicleLocation(ctx, v.ID, models.Location{Lat: 1, Lng: 2}))

	ended, err := svc.End(ctx, tr.ID, d.ID)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	require.NotNil(t, ended.EndTime)

	got, err := s.VehicleByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentLocation)
}

func TestEndForeignTripNotFound(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	d1 := addDriver(t, s, "alice")
	d2 := addDriver(t, s, "bob")
	v := addAssignedBus(t, s, "BUS-01", d1)
	tr, err := svc.Start(ctx, d1.ID, v.ID)
	require.NoError(t, err)

	_, err = svc.End(ctx, tr.ID, d2.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMyTripsAndActiveTrip(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	d := addDriver(t, s, "alice")
	v := addAssignedBus(t, s, "BUS-01", d)

	_, err := svc.ActiveTrip(ctx, d.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	tr, err := svc.Start(ctx, d.ID, v.ID)
	require.NoError(t, err)

	active, err := svc.ActiveTrip(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, active.ID)

	_, err = svc.End(ctx, tr.ID, d.ID)
	require.NoError(t, err)

	all, err := svc.MyTrips(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
}
