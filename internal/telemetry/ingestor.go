// Package telemetry turns raw device reports into fleet state: GPS
// samples move vehicles and RFID gate scans clock students, and either
// kind raises an overspeed offence when the campus limit is broken.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-fleet/internal/booking"
	"github.com/example/campus-fleet/internal/fleet"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/observability"
	"github.com/example/campus-fleet/internal/store"
)

type Ingestor struct {
	store    store.Store
	registry *fleet.Registry
	bookings *booking.Service
	logger   *slog.Logger
}

func NewIngestor(st store.Store, registry *fleet.Registry, bookings *booking.Service, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: st, registry: registry, bookings: bookings, logger: logger}
}

// ReceiveGPS applies one tracker sample and reports which vehicle it
// resolved to. The vehicle's position is overwritten unconditionally. A
// bus over the campus limit records one offence per qualifying sample,
// no debounce, so a replayed sample also produces a duplicate offence.
// An ambulance sample refreshes the ETA of its live booking, when one
// exists.
func (i *Ingestor) ReceiveGPS(ctx context.Context, s models.GPSSample) (uuid.UUID, error) {
	v, err := i.store.VehicleByIMEI(ctx, s.IMEI)
	if err != nil {
		return uuid.Nil, err
	}
	observability.GPSSamplesTotal.Inc()

	loc := models.Location{Lat: s.Latitude, Lng: s.Longitude, Speed: s.Speed, Timestamp: s.Timestamp}
	if err := i.registry.UpdateLocation(ctx, v.ID, loc); err != nil {
		return uuid.Nil, err
	}

	switch v.Type {
	case models.VehicleBus:
		if s.Speed > models.CampusSpeedLimitKmh {
			if err := i.recordBusOffence(ctx, v, s); err != nil {
				return uuid.Nil, err
			}
		}
	case models.VehicleAmbulance:
		b, err := i.store.ActiveBookingForVehicle(ctx, v.ID)
		if errors.Is(err, store.ErrNotFound) {
			return v.ID, nil
		}
		if err != nil {
			return uuid.Nil, err
		}
		if err := i.bookings.RefreshETA(ctx, b.ID, loc); err != nil {
			i.logger.Warn("eta refresh failed", "booking_id", b.ID, "error", err)
		}
	}
	return v.ID, nil
}

func (i *Ingestor) recordBusOffence(ctx context.Context, v *models.Vehicle, s models.GPSSample) error {
	o := &models.Offence{
		Type:          models.OffenceBusOverspeed,
		DriverID:      v.AssignedTo,
		DriverName:    v.AssignedDriverName,
		VehicleID:     &v.ID,
		VehicleNumber: v.VehicleNumber,
		Speed:         s.Speed,
		SpeedLimit:    models.CampusSpeedLimitKmh,
		Location: &models.OffenceLocation{
			Lat:       s.Latitude,
			Lng:       s.Longitude,
			Speed:     s.Speed,
			Timestamp: s.Timestamp,
		},
		Timestamp: parseSampleTime(s.Timestamp),
	}
	if err := i.store.CreateOffence(ctx, o); err != nil {
		return err
	}
	observability.OffencesTotal.WithLabelValues(string(models.OffenceBusOverspeed)).Inc()
	i.logger.Warn("bus overspeed",
		"vehicle_number", v.VehicleNumber, "driver_name", v.AssignedDriverName,
		"speed", s.Speed, "limit", models.CampusSpeedLimitKmh)
	return nil
}

// ReceiveRFIDScan applies one gate scanner report. Scans at or under the
// limit record nothing. The student reference is resolved best-effort
// from the registration id; an unknown student still gets an offence row
// carrying whatever identity the scanner reported.
func (i *Ingestor) ReceiveRFIDScan(ctx context.Context, s models.RFIDScan) error {
	d, err := i.store.DeviceByRFIDID(ctx, s.RFIDDeviceID)
	if err != nil {
		return err
	}
	observability.RFIDScansTotal.Inc()

	if s.Speed <= models.CampusSpeedLimitKmh {
		return nil
	}

	o := &models.Offence{
		Type:                  models.OffenceStudentSpeed,
		StudentName:           s.StudentName,
		StudentRegistrationID: s.StudentRegistrationID,
		Speed:                 s.Speed,
		SpeedLimit:            models.CampusSpeedLimitKmh,
		Location:              &models.OffenceLocation{Name: d.LocationName},
		RFIDNumber:            d.RFIDID,
		Timestamp:             parseSampleTime(s.Timestamp),
	}
	if u, err := i.store.UserByRegistrationID(ctx, s.StudentRegistrationID); err == nil {
		o.StudentID = &u.ID
		if o.StudentName == "" {
			o.StudentName = u.Name
		}
	}

	if err := i.store.CreateOffence(ctx, o); err != nil {
		return err
	}
	observability.OffencesTotal.WithLabelValues(string(models.OffenceStudentSpeed)).Inc()
	i.logger.Warn("student overspeed",
		"registration_id", s.StudentRegistrationID, "location", d.LocationName,
		"speed", s.Speed, "limit", models.CampusSpeedLimitKmh)
	return nil
}

func parseSampleTime(ts string) time.Time {
	if ts == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Now()
	}
	return t
}
