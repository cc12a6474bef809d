// Package booking drives the ambulance booking lifecycle:
// pending -> accepted -> in_progress -> completed, with cancellation
// allowed until pickup. Pickup is gated on a one-time code handed to the
// student when a driver accepts.
package booking

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/campus-fleet/internal/fleet"
	"github.com/example/campus-fleet/internal/geo"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/observability"
	"github.com/example/campus-fleet/internal/otp"
	"github.com/example/campus-fleet/internal/store"
)

var (
	// ErrNoAmbulance means the driver tried to accept without holding an
	// ambulance.
	ErrNoAmbulance = errors.New("driver has no assigned ambulance")
	// ErrInvalidOTP covers wrong, expired, and already-consumed codes.
	ErrInvalidOTP = errors.New("invalid or expired code")
)

// Notifier delivers a pickup code to the booking contact. Production
// wires an SMS gateway; the default just logs.
type Notifier interface {
	SendOTP(ctx context.Context, phone, code string) error
}

type logNotifier struct{ logger *slog.Logger }

func (n logNotifier) SendOTP(_ context.Context, phone, code string) error {
	n.logger.Info("pickup code issued", "phone", phone, "code", code)
	return nil
}

type Service struct {
	store    store.Store
	registry *fleet.Registry
	otps     *otp.Ledger
	notify   Notifier
	logger   *slog.Logger
}

func NewService(st store.Store, registry *fleet.Registry, otps *otp.Ledger, notify Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if notify == nil {
		notify = logNotifier{logger: logger}
	}
	return &Service{store: st, registry: registry, otps: otps, notify: notify, logger: logger}
}

// Create opens a pending booking. The student name is resolved from the
// user directory when the registration id is known; an unknown id never
// fails the booking, the record just carries a placeholder name.
func (s *Service) Create(ctx context.Context, regID, phone, place, placeDetails string, loc *models.Location) (*models.Booking, error) {
	name := "Unknown Student"
	if u, err := s.store.UserByRegistrationID(ctx, regID); err == nil {
		name = u.Name
	}
	b := &models.Booking{
		StudentRegistrationID: regID,
		StudentName:           name,
		Phone:                 phone,
		Place:                 place,
		PlaceDetails:          placeDetails,
		UserLocation:          loc,
		Status:                models.BookingPending,
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	observability.BookingsCreatedTotal.Inc()
	s.logger.Info("booking created", "booking_id", b.ID, "place", place)
	return b, nil
}

// Pending returns the single most recently created pending booking.
// Drivers only ever see one open request at a time.
func (s *Service) Pending(ctx context.Context) (*models.Booking, error) {
	return s.store.FirstPendingBooking(ctx)
}

// Accept claims a pending booking for the driver. The transition from
// pending is a conditional update, so when two drivers race exactly one
// wins and the other sees store.ErrConflict. On success a pickup code is
// issued against the booking phone and the ETA is estimated from the
// ambulance's last position, when both positions are known.
func (s *Service) Accept(ctx context.Context, bookingID, driverID uuid.UUID) (*models.Booking, error) {
	driver, err := s.store.UserByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	amb, err := s.registry.AssignedVehicle(ctx, driverID, models.VehicleAmbulance)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoAmbulance
	}
	if err != nil {
		return nil, err
	}
	b, err := s.store.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var eta *float64
	if amb.CurrentLocation != nil && b.UserLocation != nil {
		dist := geo.Distance(amb.CurrentLocation.Lat, amb.CurrentLocation.Lng, b.UserLocation.Lat, b.UserLocation.Lng)
		v := geo.ETAMinutes(dist, models.AmbulanceCruiseSpeedKmh)
		eta = &v
	}

	if err := s.store.AcceptBooking(ctx, bookingID, driverID, driver.Name, amb.ID, amb.VehicleNumber, eta); err != nil {
		return nil, err
	}

	code, err := s.otps.Issue(ctx, b.Phone)
	if err != nil {
		s.logger.Error("otp issue failed", "booking_id", bookingID, "error", err)
	} else {
		observability.OTPIssuedTotal.Inc()
		if err := s.notify.SendOTP(ctx, b.Phone, code); err != nil {
			s.logger.Error("otp delivery failed", "booking_id", bookingID, "error", err)
		}
	}

	observability.BookingsAcceptedTotal.Inc()
	s.logger.Info("booking accepted", "booking_id", bookingID, "driver_id", driverID, "vehicle_id", amb.ID)
	return s.store.BookingByID(ctx, bookingID)
}

// VerifyOTP confirms pickup. The code is single-use: consuming it and
// the accepted -> in_progress transition each happen at most once, and a
// wrong code leaves both the ledger entry and the booking untouched.
func (s *Service) VerifyOTP(ctx context.Context, bookingID, driverID uuid.UUID, code string) error {
	b, err := s.store.BookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.DriverID == nil || *b.DriverID != driverID {
		return store.ErrNotOwner
	}
	if b.Status != models.BookingAccepted {
		return store.ErrConflict
	}
	ok, err := s.otps.Verify(ctx, b.Phone, code)
	if err != nil {
		return err
	}
	if !ok {
		observability.OTPFailuresTotal.Inc()
		return ErrInvalidOTP
	}
	if err := s.store.MarkBookingInProgress(ctx, bookingID, driverID); err != nil {
		return err
	}
	s.logger.Info("pickup verified", "booking_id", bookingID, "driver_id", driverID)
	return nil
}

// Abort cancels a booking the driver owns, from any state.
func (s *Service) Abort(ctx context.Context, bookingID, driverID uuid.UUID) error {
	if err := s.store.SetBookingStatusOwned(ctx, bookingID, driverID, models.BookingCancelled); err != nil {
		return err
	}
	s.logger.Info("booking cancelled", "booking_id", bookingID, "driver_id", driverID)
	return nil
}

// Complete finishes a booking the driver owns.
func (s *Service) Complete(ctx context.Context, bookingID, driverID uuid.UUID) error {
	if err := s.store.SetBookingStatusOwned(ctx, bookingID, driverID, models.BookingCompleted); err != nil {
		return err
	}
	s.logger.Info("booking completed", "booking_id", bookingID, "driver_id", driverID)
	return nil
}

// RefreshETA recomputes the ETA from a fresh ambulance position. It only
// sticks while the booking is accepted or in progress; the store drops
// updates against finished bookings.
func (s *Service) RefreshETA(ctx context.Context, bookingID uuid.UUID, vehicleLoc models.Location) error {
	b, err := s.store.BookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.UserLocation == nil {
		return nil
	}
	dist := geo.Distance(vehicleLoc.Lat, vehicleLoc.Lng, b.UserLocation.Lat, b.UserLocation.Lng)
	return s.store.UpdateBookingETA(ctx, bookingID, geo.ETAMinutes(dist, models.AmbulanceCruiseSpeedKmh))
}

// ByPhone lists a caller's own bookings, newest first.
func (s *Service) ByPhone(ctx context.Context, phone string) ([]models.Booking, error) {
	return s.store.ListBookings(ctx, store.BookingFilter{Phone: phone})
}
