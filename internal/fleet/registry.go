// Package fleet manages vehicle ownership and live positions. Assignment
// and release are single conditional store operations, so two drivers
// racing for the same vehicle can never both win.
package fleet

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/campus-fleet/internal/cache"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/store"
)

type Registry struct {
	vehicles  store.VehicleStore
	locations *cache.VehicleLocations
	logger    *slog.Logger
}

func NewRegistry(vehicles store.VehicleStore, locations *cache.VehicleLocations, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{vehicles: vehicles, locations: locations, logger: logger}
}

// Assign claims an unassigned vehicle for a driver. A vehicle already
// held by anyone, the same driver included, yields store.ErrConflict.
func (r *Registry) Assign(ctx context.Context, vehicleID, driverID uuid.UUID, driverName string) error {
	if err := r.vehicles.AssignVehicle(ctx, vehicleID, driverID, driverName); err != nil {
		return err
	}
	r.logger.Info("vehicle assigned", "vehicle_id", vehicleID, "driver_id", driverID)
	return nil
}

// Release frees a vehicle held by the calling driver; anyone else gets
// store.ErrNotOwner.
func (r *Registry) Release(ctx context.Context, vehicleID, driverID uuid.UUID) error {
	if err := r.vehicles.ReleaseVehicle(ctx, vehicleID, driverID); err != nil {
		return err
	}
	r.logger.Info("vehicle released", "vehicle_id", vehicleID, "driver_id", driverID)
	return nil
}

// UpdateLocation overwrites the vehicle's last position, last write wins.
// Samples are trusted as-is; there is no plausibility filtering.
func (r *Registry) UpdateLocation(ctx context.Context, vehicleID uuid.UUID, loc models.Location) error {
	if err := r.vehicles.UpdateVehicleLocation(ctx, vehicleID, loc); err != nil {
		return err
	}
	if err := r.locations.Set(ctx, vehicleID, loc); err != nil {
		r.logger.Warn("location cache set failed", "vehicle_id", vehicleID, "error", err)
	}
	return nil
}

// ClearLocation drops the stored position, used when a trip ends and the
// vehicle goes off duty.
func (r *Registry) ClearLocation(ctx context.Context, vehicleID uuid.UUID) error {
	if err := r.vehicles.ClearVehicleLocation(ctx, vehicleID); err != nil {
		return err
	}
	if err := r.locations.Invalidate(ctx, vehicleID); err != nil {
		r.logger.Warn("location cache invalidate failed", "vehicle_id", vehicleID, "error", err)
	}
	return nil
}

// LastLocation reads through the cache, falling back to the store.
func (r *Registry) LastLocation(ctx context.Context, vehicleID uuid.UUID) (*models.Location, error) {
	if loc, ok := r.locations.Get(ctx, vehicleID); ok {
		return loc, nil
	}
	v, err := r.vehicles.VehicleByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v.CurrentLocation != nil {
		if err := r.locations.Set(ctx, vehicleID, *v.CurrentLocation); err != nil {
			r.logger.Warn("location cache set failed", "vehicle_id", vehicleID, "error", err)
		}
	}
	return v.CurrentLocation, nil
}

func (r *Registry) SetOutOfStation(ctx context.Context, vehicleID, driverID uuid.UUID, flag bool) error {
	return r.vehicles.SetOutOfStation(ctx, vehicleID, driverID, flag)
}

// ListAvailable lists unassigned vehicles of the given type.
func (r *Registry) ListAvailable(ctx context.Context, t models.VehicleType) ([]models.Vehicle, error) {
	return r.vehicles.ListUnassigned(ctx, t)
}

// AssignedVehicle returns the first vehicle of the type held by the driver.
func (r *Registry) AssignedVehicle(ctx context.Context, driverID uuid.UUID, t models.VehicleType) (*models.Vehicle, error) {
	return r.vehicles.AssignedVehicle(ctx, driverID, t)
}
