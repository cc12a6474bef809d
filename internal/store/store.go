package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/example/campus-fleet/internal/models"
)

// Sentinel errors shared by every backend. Handlers map these onto the
// HTTP taxonomy; services add their own domain sentinels on top.
var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("state precondition violated")
	ErrNotOwner  = errors.New("record belongs to another driver")
	ErrDuplicate = errors.New("record already exists")
)

type UserFilter struct {
	Role       models.Role
	DriverType models.VehicleType
	Search     string // matches name, registration id, phone
}

type VehicleFilter struct {
	Type   models.VehicleType
	Search string // matches vehicle number, gps imei
}

type BookingFilter struct {
	Status models.BookingStatus
	Phone  string
}

type TripFilter struct {
	IsActive    *bool
	VehicleType models.VehicleType
	DriverID    *uuid.UUID
}

type OffenceFilter struct {
	Type   models.OffenceType
	IsPaid *bool
	Search string // matches driver name, student name, vehicle number
}

type Stats struct {
	TotalStudents   int `json:"total_students"`
	TotalDrivers    int `json:"total_drivers"`
	TotalBuses      int `json:"total_buses"`
	TotalAmbulances int `json:"total_ambulances"`
	ActiveTrips     int `json:"active_trips"`
	PendingBookings int `json:"pending_bookings"`
	TotalOffences   int `json:"total_offences"`
	UnpaidOffences  int `json:"unpaid_offences"`
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UserByPhone(ctx context.Context, phone string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByRegistrationID(ctx context.Context, regID string) (*models.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]models.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, hash string) error
	DeleteUser(ctx context.Context, id uuid.UUID, role models.Role) error
}

type VehicleStore interface {
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	VehicleByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	VehicleByIMEI(ctx context.Context, imei string) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error)
	ListUnassigned(ctx context.Context, t models.VehicleType) ([]models.Vehicle, error)
	// AssignedVehicle returns the first vehicle of the given type currently
	// held by the driver. There is no ranking between multiple holdings.
	AssignedVehicle(ctx context.Context, driverID uuid.UUID, t models.VehicleType) (*models.Vehicle, error)

	// AssignVehicle claims an unassigned vehicle for the driver. ErrConflict
	// when another driver already holds it.
	AssignVehicle(ctx context.Context, vehicleID, driverID uuid.UUID, driverName string) error
	// ReleaseVehicle drops the assignment. ErrNotOwner when the vehicle is
	// held by someone else.
	ReleaseVehicle(ctx context.Context, vehicleID, driverID uuid.UUID) error
	ReleaseVehiclesOfDriver(ctx context.Context, driverID uuid.UUID) error

	// UpdateVehicleLocation is an unconditional last-write-wins overwrite.
	UpdateVehicleLocation(ctx context.Context, vehicleID uuid.UUID, loc models.Location) error
	ClearVehicleLocation(ctx context.Context, vehicleID uuid.UUID) error
	SetOutOfStation(ctx context.Context, vehicleID, driverID uuid.UUID, flag bool) error
	// DeleteVehicle removes the vehicle and nullifies references from
	// bookings and trips; the bookings and trips themselves survive.
	DeleteVehicle(ctx context.Context, id uuid.UUID) error
}

type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	BookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	// FirstPendingBooking returns the single most recently created pending
	// booking; pending requests are not queued or ranked beyond that.
	FirstPendingBooking(ctx context.Context) (*models.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error)

	// AcceptBooking transitions pending -> accepted in one conditional
	// update, recording the driver/vehicle snapshot. ErrConflict when the
	// booking is no longer pending, for instance because another driver won
	// the race.
	AcceptBooking(ctx context.Context, bookingID, driverID uuid.UUID, driverName string, vehicleID uuid.UUID, vehicleNumber string, etaMinutes *float64) error
	// MarkBookingInProgress transitions accepted -> in_progress exactly
	// once. ErrNotOwner on driver mismatch, ErrConflict when the state has
	// already advanced.
	MarkBookingInProgress(ctx context.Context, bookingID, driverID uuid.UUID) error
	// SetBookingStatusOwned forces a terminal status regardless of the
	// current state, but only for the owning driver.
	SetBookingStatusOwned(ctx context.Context, bookingID, driverID uuid.UUID, status models.BookingStatus) error

	// UpdateBookingETA applies only while the booking is accepted or
	// in_progress; otherwise it is a silent no-op.
	UpdateBookingETA(ctx context.Context, bookingID uuid.UUID, etaMinutes float64) error
	// ActiveBookingForVehicle finds the accepted/in_progress booking riding
	// on the vehicle, if any.
	ActiveBookingForVehicle(ctx context.Context, vehicleID uuid.UUID) (*models.Booking, error)
}

type TripStore interface {
	// StartTrip inserts the trip only when the driver and the vehicle both
	// have no active trip; ErrConflict otherwise.
	StartTrip(ctx context.Context, t *models.Trip) error
	// EndTrip deactivates the driver's active trip with this id and returns
	// it; ErrNotFound when there is no such active trip.
	EndTrip(ctx context.Context, tripID, driverID uuid.UUID) (*models.Trip, error)
	TripsByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Trip, error)
	ActiveTripByDriver(ctx context.Context, driverID uuid.UUID) (*models.Trip, error)
	ListTrips(ctx context.Context, f TripFilter) ([]models.Trip, error)
}

type OffenceStore interface {
	CreateOffence(ctx context.Context, o *models.Offence) error
	ListOffences(ctx context.Context, f OffenceFilter) ([]models.Offence, error)
	MarkOffencePaid(ctx context.Context, id uuid.UUID) error
	DeleteOffence(ctx context.Context, id uuid.UUID) error
}

type DeviceStore interface {
	CreateDevice(ctx context.Context, d *models.RFIDDevice) error
	DeviceByRFIDID(ctx context.Context, rfidID string) (*models.RFIDDevice, error)
	ListDevices(ctx context.Context) ([]models.RFIDDevice, error)
	DeleteDevice(ctx context.Context, id uuid.UUID) error
}

// Store is the full persistence surface consumed by the services.
type Store interface {
	UserStore
	VehicleStore
	BookingStore
	TripStore
	OffenceStore
	DeviceStore
	Stats(ctx context.Context) (Stats, error)
}
