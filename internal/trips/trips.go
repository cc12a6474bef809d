// Package trips tracks duty periods. A trip freezes the plate, driver
// name, and vehicle type at start so later reassignments or deletions
// never rewrite history.
package trips

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/campus-fleet/internal/fleet"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/observability"
	"github.com/example/campus-fleet/internal/store"
)

type Service struct {
	store    store.Store
	registry *fleet.Registry
	logger   *slog.Logger
}

func NewService(st store.Store, registry *fleet.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, registry: registry, logger: logger}
}

// Start opens a trip on a vehicle the driver holds. The one-active-trip
// rule (per driver and per vehicle) is enforced by the store's guarded
// insert, so two racing starts cannot both succeed.
func (s *Service) Start(ctx context.Context, driverID, vehicleID uuid.UUID) (*models.Trip, error) {
	driver, err := s.store.UserByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	v, err := s.store.VehicleByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v.AssignedTo == nil || *v.AssignedTo != driverID {
		return nil, store.ErrNotOwner
	}

	t := &models.Trip{
		VehicleID:     &v.ID,
		DriverID:      &driver.ID,
		VehicleNumber: v.VehicleNumber,
		DriverName:    driver.Name,
		VehicleType:   v.Type,
	}
	if err := s.store.StartTrip(ctx, t); err != nil {
		return nil, err
	}
	observability.ActiveTrips.Inc()
	s.logger.Info("trip started", "trip_id", t.ID, "driver_id", driverID, "vehicle_number", v.VehicleNumber)
	return t, nil
}

// End closes an active trip owned by the driver and clears the vehicle's
// live location, since an off-duty vehicle has no meaningful position.
func (s *Service) End(ctx context.Context, tripID, driverID uuid.UUID) (*models.Trip, error) {
	ended, err := s.store.EndTrip(ctx, tripID, driverID)
	if err != nil {
		return nil, err
	}
	observability.ActiveTrips.Dec()
	if ended.VehicleID != nil {
		if err := s.registry.ClearLocation(ctx, *ended.VehicleID); err != nil {
			s.logger.Warn("clearing vehicle location failed", "vehicle_id", *ended.VehicleID, "error", err)
		}
	}
	s.logger.Info("trip ended", "trip_id", tripID, "driver_id", driverID)
	return ended, nil
}

// MarkOutOfStation flags (or unflags) the driver's vehicle as away from
// campus.
func (s *Service) MarkOutOfStation(ctx context.Context, vehicleID, driverID uuid.UUID, flag bool) error {
	return s.registry.SetOutOfStation(ctx, vehicleID, driverID, flag)
}

// MyTrips lists the driver's trip history, newest first.
func (s *Service) MyTrips(ctx context.Context, driverID uuid.UUID) ([]models.Trip, error) {
	return s.store.TripsByDriver(ctx, driverID)
}

// ActiveTrip returns the driver's current trip, or store.ErrNotFound.
func (s *Service) ActiveTrip(ctx context.Context, driverID uuid.UUID) (*models.Trip, error) {
	return s.store.ActiveTripByDriver(ctx, driverID)
}
