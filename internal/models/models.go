package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account roles. Authorization decisions switch
// on this type; there is no free-form role string.
type Role string

const (
	RoleStudent Role = "student"
	RoleDriver  Role = "driver"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

type VehicleType string

const (
	VehicleBus       VehicleType = "bus"
	VehicleAmbulance VehicleType = "ambulance"
)

func (t VehicleType) Valid() bool {
	return t == VehicleBus || t == VehicleAmbulance
}

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingAccepted   BookingStatus = "accepted"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

type OffenceType string

const (
	OffenceBusOverspeed OffenceType = "bus_overspeed"
	OffenceStudentSpeed OffenceType = "student_speed"
)

// Campus speed policy. The 40 km/h limit is shared by both telemetry paths
// and doubles as the assumed bus cruising speed for public ETA answers.
// Ambulance ETAs assume a 60 km/h cruise.
const (
	CampusSpeedLimitKmh     = 40.0
	AmbulanceCruiseSpeedKmh = 60.0
)

// Location is a vehicle's last reported fix. Last-write-wins, no history.
// Bookings reuse it with only lat/lng populated.
type Location struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Speed     float64 `json:"speed,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type User struct {
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	Phone          string       `json:"phone,omitempty"`
	Email          string       `json:"email,omitempty"`
	PasswordHash   string       `json:"-"`
	RegistrationID string       `json:"registration_id,omitempty"`
	DOB            string       `json:"dob,omitempty"`
	Role           Role         `json:"role"`
	DriverType     *VehicleType `json:"driver_type,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

type Vehicle struct {
	ID                 uuid.UUID   `json:"id"`
	VehicleNumber      string      `json:"vehicle_number"`
	GPSIMEI            string      `json:"gps_imei"`
	Barcode            string      `json:"barcode,omitempty"`
	Type               VehicleType `json:"vehicle_type"`
	AssignedTo         *uuid.UUID  `json:"assigned_to,omitempty"`
	AssignedDriverName string      `json:"assigned_driver_name,omitempty"`
	IsOutOfStation     bool        `json:"is_out_of_station"`
	CurrentLocation    *Location   `json:"current_location,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

type Trip struct {
	ID uuid.UUID `json:"id"`
	// References are nullified if the vehicle or driver is later deleted;
	// the trip record itself survives.
	VehicleID *uuid.UUID `json:"vehicle,omitempty"`
	DriverID  *uuid.UUID `json:"driver,omitempty"`
	// Snapshots frozen at start time; later vehicle or driver edits do not
	// propagate here.
	VehicleNumber string      `json:"vehicle_number"`
	DriverName    string      `json:"driver_name"`
	VehicleType   VehicleType `json:"vehicle_type"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
}

type Booking struct {
	ID uuid.UUID `json:"id"`
	// Origin snapshot, immutable after create.
	StudentRegistrationID string    `json:"student_registration_id"`
	StudentName           string    `json:"student_name"`
	Phone                 string    `json:"phone"`
	Place                 string    `json:"place"`
	PlaceDetails          string    `json:"place_details,omitempty"`
	UserLocation          *Location `json:"user_location,omitempty"`

	Status        BookingStatus `json:"status"`
	DriverID      *uuid.UUID    `json:"driver,omitempty"`
	DriverName    string        `json:"driver_name,omitempty"`
	VehicleID     *uuid.UUID    `json:"vehicle,omitempty"`
	VehicleNumber string        `json:"vehicle_number,omitempty"`
	ETAMinutes    *float64      `json:"eta_minutes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// OffenceLocation is either a GPS fix (bus overspeed) or a named fixed
// point (RFID scanner position).
type OffenceLocation struct {
	Lat       float64 `json:"lat,omitempty"`
	Lng       float64 `json:"lng,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Name      string  `json:"name,omitempty"`
}

type Offence struct {
	ID                    uuid.UUID        `json:"id"`
	Type                  OffenceType      `json:"offence_type"`
	DriverID              *uuid.UUID       `json:"driver,omitempty"`
	DriverName            string           `json:"driver_name,omitempty"`
	StudentID             *uuid.UUID       `json:"student,omitempty"`
	StudentName           string           `json:"student_name,omitempty"`
	StudentRegistrationID string           `json:"student_registration_id,omitempty"`
	VehicleID             *uuid.UUID       `json:"vehicle,omitempty"`
	VehicleNumber         string           `json:"vehicle_number,omitempty"`
	Speed                 float64          `json:"speed"`
	SpeedLimit            float64          `json:"speed_limit"`
	Location              *OffenceLocation `json:"location,omitempty"`
	RFIDNumber            string           `json:"rfid_number,omitempty"`
	IsPaid                bool             `json:"is_paid"`
	Timestamp             time.Time        `json:"timestamp"`
	CreatedAt             time.Time        `json:"created_at"`
}

type RFIDDevice struct {
	ID           uuid.UUID `json:"id"`
	RFIDID       string    `json:"rfid_id"`
	LocationName string    `json:"location_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// GPSSample is a raw reading from a vehicle tracker, as posted by devices
// and as serialized onto the telemetry topic.
type GPSSample struct {
	IMEI      string  `json:"imei"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// RFIDScan is a raw reading from a fixed campus scanner.
type RFIDScan struct {
	RFIDDeviceID          string  `json:"rfid_device_id"`
	StudentRegistrationID string  `json:"student_registration_id"`
	StudentName           string  `json:"student_name,omitempty"`
	Phone                 string  `json:"phone,omitempty"`
	Speed                 float64 `json:"speed"`
	Timestamp             string  `json:"timestamp,omitempty"`
}
