package fleet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/store"
)

func newRegistry(t *testing.T) (*Registry, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return NewRegistry(s, nil, nil), s
}

func addVehicle(t *testing.T, s *store.MemoryStore, number string, vt models.VehicleType) *models.Vehicle {
	t.Helper()
	v := &models.Vehicle{VehicleNumber: number, GPSIMEI: "imei-" + number, Type: vt}
	require.NoError(t, s.CreateVehicle(context.Background(), v))
	return v
}

func addDriver(t *testing.T, s *store.MemoryStore, name string) *models.User {
	t.Helper()
	dt := models.VehicleBus
	u := &models.User{Name: name, Phone: name + "-phone", Role: models.RoleDriver, DriverType: &dt}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestAssignThenListAvailable(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	d := addDriver(t, s, "alice")
	v1 := addVehicle(t, s, "BUS-01", models.VehicleBus)
	addVehicle(t, s, "BUS-02", models.VehicleBus)

	avail, err := r.ListAvailable(ctx, models.VehicleBus)
	require.NoError(t, err)
	assert.Len(t, avail, 2)

	require.NoError(t, r.Assign(ctx, v1.ID, d.ID, d.Name))

	avail, err = r.ListAvailable(ctx, models.VehicleBus)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, "BUS-02", avail[0].VehicleNumber)

	got, err := r.AssignedVehicle(ctx, d.ID, models.VehicleBus)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, got.ID)
}

func TestUpdateLocationLastWriteWins(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	v := addVehicle(t, s, "BUS-01", models.VehicleBus)

	require.NoError(t, r.UpdateLocation(ctx, v.ID, models.Location{Lat: 1, Lng: 2, Speed: 10}))
	require.NoError(t, r.UpdateLocation(ctx, v.ID, models.Location{Lat: 3, Lng: 4, Speed: 20}))

	loc, err := r.LastLocation(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, 3.0, loc.Lat)
	assert.Equal(t, 4.0, loc.Lng)
}

func TestClearLocation(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	v := addVehicle(t, s, "BUS-01", models.VehicleBus)

	require.NoError(t, r.UpdateLocation(ctx, v.ID, models.Location{Lat: 1, Lng: 2}))
	require.NoError(t, r.ClearLocation(ctx, v.ID))

	loc, err := r.LastLocation(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestSetOutOfStationRequiresAssignment(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	d := addDriver(t, s, "alice")
	v := addVehicle(t, s, "BUS-01", models.VehicleBus)

	assert.Error(t, r.SetOutOfStation(ctx, v.ID, d.ID, true))

	require.NoError(t, r.Assign(ctx, v.ID, d.ID, d.Name))
	require.NoError(t, r.SetOutOfStation(ctx, v.ID, d.ID, true))

	got, err := s.VehicleByID(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOutOfStation)
}
