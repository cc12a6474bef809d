package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-fleet/internal/models"
)

// MemoryStore keeps everything behind one mutex so every operation is a
// single atomic unit, matching the conditional-update semantics of the
// Postgres backend. It backs tests and zero-dependency local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	vehicles map[uuid.UUID]*models.Vehicle
	bookings map[uuid.UUID]*models.Booking
	trips    map[uuid.UUID]*models.Trip
	offences map[uuid.UUID]*models.Offence
	devices  map[uuid.UUID]*models.RFIDDevice
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]*models.User),
		vehicles: make(map[uuid.UUID]*models.Vehicle),
		bookings: make(map[uuid.UUID]*models.Booking),
		trips:    make(map[uuid.UUID]*models.Trip),
		offences: make(map[uuid.UUID]*models.Offence),
		devices:  make(map[uuid.UUID]*models.RFIDDevice),
	}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// users

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if (u.Phone != "" && other.Phone == u.Phone) ||
			(u.Email != "" && other.Email == u.Email) ||
			(u.RegistrationID != "" && other.RegistrationID == u.RegistrationID) {
			return ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) userBy(match func(*models.User) bool) (*models.User, error) {
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UserByPhone(_ context.Context, phone string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userBy(func(u *models.User) bool { return phone != "" && u.Phone == phone })
}

func (m *MemoryStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userBy(func(u *models.User) bool { return email != "" && u.Email == email })
}

func (m *MemoryStore) UserByRegistrationID(_ context.Context, regID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userBy(func(u *models.User) bool { return regID != "" && u.RegistrationID == regID })
}

func (m *MemoryStore) ListUsers(_ context.Context, f UserFilter) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.User, 0)
	for _, u := range m.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.DriverType != "" && (u.DriverType == nil || *u.DriverType != f.DriverType) {
			continue
		}
		if f.Search != "" && !containsFold(u.Name, f.Search) &&
			!containsFold(u.RegistrationID, f.Search) && !containsFold(u.Phone, f.Search) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateUserPassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id uuid.UUID, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Role != role {
		return ErrNotFound
	}
	delete(m.users, id)
	for _, v := range m.vehicles {
		if v.AssignedTo != nil && *v.AssignedTo == id {
			v.AssignedTo = nil
			v.AssignedDriverName = ""
		}
	}
	for _, t := range m.trips {
		if t.DriverID != nil && *t.DriverID == id {
			t.DriverID = nil
		}
	}
	for _, b := range m.bookings {
		if b.DriverID != nil && *b.DriverID == id {
			b.DriverID = nil
		}
	}
	return nil
}

// vehicles

func (m *MemoryStore) CreateVehicle(_ context.Context, v *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.vehicles {
		if other.GPSIMEI == v.GPSIMEI || other.VehicleNumber == v.VehicleNumber {
			return ErrDuplicate
		}
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	cp := *v
	m.vehicles[v.ID] = &cp
	return nil
}

func copyVehicle(v *models.Vehicle) *models.Vehicle {
	cp := *v
	if v.AssignedTo != nil {
		id := *v.AssignedTo
		cp.AssignedTo = &id
	}
	if v.CurrentLocation != nil {
		loc := *v.CurrentLocation
		cp.CurrentLocation = &loc
	}
	return &cp
}

func (m *MemoryStore) VehicleByID(_ context.Context, id uuid.UUID) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.vehicles[id]; ok {
		return copyVehicle(v), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) VehicleByIMEI(_ context.Context, imei string) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vehicles {
		if v.GPSIMEI == imei {
			return copyVehicle(v), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListVehicles(_ context.Context, f VehicleFilter) ([]models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Vehicle, 0)
	for _, v := range m.vehicles {
		if f.Type != "" && v.Type != f.Type {
			continue
		}
		if f.Search != "" && !containsFold(v.VehicleNumber, f.Search) && !containsFold(v.GPSIMEI, f.Search) {
			continue
		}
		out = append(out, *copyVehicle(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListUnassigned(_ context.Context, t models.VehicleType) ([]models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Vehicle, 0)
	for _, v := range m.vehicles {
		if v.Type == t && v.AssignedTo == nil {
			out = append(out, *copyVehicle(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AssignedVehicle(_ context.Context, driverID uuid.UUID, t models.VehicleType) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vehicles {
		if v.Type == t && v.AssignedTo != nil && *v.AssignedTo == driverID {
			return copyVehicle(v), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) AssignVehicle(_ context.Context, vehicleID, driverID uuid.UUID, driverName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[vehicleID]
	if !ok {
		return ErrNotFound
	}
	if v.AssignedTo != nil {
		return ErrConflict
	}
	id := driverID
	v.AssignedTo = &id
	v.AssignedDriverName = driverName
	return nil
}

func (m *MemoryStore) ReleaseVehicle(_ context.Context, vehicleID, driverID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[vehicleID]
	if !ok {
		return ErrNotFound
	}
	if v.AssignedTo == nil || *v.AssignedTo != driverID {
		return ErrNotOwner
	}
	v.AssignedTo = nil
	v.AssignedDriverName = ""
	return nil
}

func (m *MemoryStore) ReleaseVehiclesOfDriver(_ context.Context, driverID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vehicles {
		if v.AssignedTo != nil && *v.AssignedTo == driverID {
			v.AssignedTo = nil
			v.AssignedDriverName = ""
		}
	}
	return nil
}

func (m *MemoryStore) UpdateVehicleLocation(_ context.Context, vehicleID uuid.UUID, loc models.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[vehicleID]
	if !ok {
		return ErrNotFound
	}
	cp := loc
	v.CurrentLocation = &cp
	return nil
}

func (m *MemoryStore) ClearVehicleLocation(_ context.Context, vehicleID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[vehicleID]
	if !ok {
		return ErrNotFound
	}
	v.CurrentLocation = nil
	return nil
}

func (m *MemoryStore) SetOutOfStation(_ context.Context, vehicleID, driverID uuid.UUID, flag bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[vehicleID]
	if !ok || v.AssignedTo == nil || *v.AssignedTo != driverID {
		return ErrNotFound
	}
	v.IsOutOfStation = flag
	return nil
}

func (m *MemoryStore) DeleteVehicle(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[id]; !ok {
		return ErrNotFound
	}
	delete(m.vehicles, id)
	for _, b := range m.bookings {
		if b.VehicleID != nil && *b.VehicleID == id {
			b.VehicleID = nil
		}
	}
	for _, t := range m.trips {
		if t.VehicleID != nil && *t.VehicleID == id {
			t.VehicleID = nil
		}
	}
	return nil
}

// bookings

func copyBooking(b *models.Booking) *models.Booking {
	cp := *b
	if b.UserLocation != nil {
		loc := *b.UserLocation
		cp.UserLocation = &loc
	}
	if b.DriverID != nil {
		id := *b.DriverID
		cp.DriverID = &id
	}
	if b.VehicleID != nil {
		id := *b.VehicleID
		cp.VehicleID = &id
	}
	if b.ETAMinutes != nil {
		eta := *b.ETAMinutes
		cp.ETAMinutes = &eta
	}
	return &cp
}

func (m *MemoryStore) CreateBooking(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	m.bookings[b.ID] = copyBooking(b)
	return nil
}

func (m *MemoryStore) BookingByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.bookings[id]; ok {
		return copyBooking(b), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FirstPendingBooking(_ context.Context) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var first *models.Booking
	for _, b := range m.bookings {
		if b.Status != models.BookingPending {
			continue
		}
		if first == nil || b.CreatedAt.After(first.CreatedAt) {
			first = b
		}
	}
	if first == nil {
		return nil, ErrNotFound
	}
	return copyBooking(first), nil
}

func (m *MemoryStore) ListBookings(_ context.Context, f BookingFilter) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Booking, 0)
	for _, b := range m.bookings {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Phone != "" && b.Phone != f.Phone {
			continue
		}
		out = append(out, *copyBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AcceptBooking(_ context.Context, bookingID, driverID uuid.UUID, driverName string, vehicleID uuid.UUID, vehicleNumber string, etaMinutes *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	if b.Status != models.BookingPending {
		return ErrConflict
	}
	b.Status = models.BookingAccepted
	d, v := driverID, vehicleID
	b.DriverID = &d
	b.DriverName = driverName
	b.VehicleID = &v
	b.VehicleNumber = vehicleNumber
	b.ETAMinutes = nil
	if etaMinutes != nil {
		eta := *etaMinutes
		b.ETAMinutes = &eta
	}
	return nil
}

func (m *MemoryStore) MarkBookingInProgress(_ context.Context, bookingID, driverID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	if b.DriverID == nil || *b.DriverID != driverID {
		return ErrNotOwner
	}
	if b.Status != models.BookingAccepted {
		return ErrConflict
	}
	b.Status = models.BookingInProgress
	return nil
}

func (m *MemoryStore) SetBookingStatusOwned(_ context.Context, bookingID, driverID uuid.UUID, status models.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	if b.DriverID == nil || *b.DriverID != driverID {
		return ErrNotOwner
	}
	b.Status = status
	return nil
}

func (m *MemoryStore) UpdateBookingETA(_ context.Context, bookingID uuid.UUID, etaMinutes float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil
	}
	if b.Status != models.BookingAccepted && b.Status != models.BookingInProgress {
		return nil
	}
	b.ETAMinutes = &etaMinutes
	return nil
}

func (m *MemoryStore) ActiveBookingForVehicle(_ context.Context, vehicleID uuid.UUID) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bookings {
		if b.VehicleID == nil || *b.VehicleID != vehicleID {
			continue
		}
		if b.Status == models.BookingAccepted || b.Status == models.BookingInProgress {
			return copyBooking(b), nil
		}
	}
	return nil, ErrNotFound
}

// trips

func copyTrip(t *models.Trip) *models.Trip {
	cp := *t
	if t.VehicleID != nil {
		id := *t.VehicleID
		cp.VehicleID = &id
	}
	if t.DriverID != nil {
		id := *t.DriverID
		cp.DriverID = &id
	}
	if t.EndTime != nil {
		end := *t.EndTime
		cp.EndTime = &end
	}
	return &cp
}

func (m *MemoryStore) StartTrip(_ context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.trips {
		if !other.IsActive {
			continue
		}
		if t.DriverID != nil && other.DriverID != nil && *other.DriverID == *t.DriverID {
			return ErrConflict
		}
		if t.VehicleID != nil && other.VehicleID != nil && *other.VehicleID == *t.VehicleID {
			return ErrConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.StartTime.IsZero() {
		t.StartTime = now
	}
	t.IsActive = true
	m.trips[t.ID] = copyTrip(t)
	return nil
}

func (m *MemoryStore) EndTrip(_ context.Context, tripID, driverID uuid.UUID) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok || !t.IsActive || t.DriverID == nil || *t.DriverID != driverID {
		return nil, ErrNotFound
	}
	now := time.Now()
	t.IsActive = false
	t.EndTime = &now
	return copyTrip(t), nil
}

func (m *MemoryStore) TripsByDriver(_ context.Context, driverID uuid.UUID) ([]models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Trip, 0)
	for _, t := range m.trips {
		if t.DriverID != nil && *t.DriverID == driverID {
			out = append(out, *copyTrip(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m *MemoryStore) ActiveTripByDriver(_ context.Context, driverID uuid.UUID) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.trips {
		if t.IsActive && t.DriverID != nil && *t.DriverID == driverID {
			return copyTrip(t), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListTrips(_ context.Context, f TripFilter) ([]models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Trip, 0)
	for _, t := range m.trips {
		if f.IsActive != nil && t.IsActive != *f.IsActive {
			continue
		}
		if f.VehicleType != "" && t.VehicleType != f.VehicleType {
			continue
		}
		if f.DriverID != nil && (t.DriverID == nil || *t.DriverID != *f.DriverID) {
			continue
		}
		out = append(out, *copyTrip(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

// offences

func (m *MemoryStore) CreateOffence(_ context.Context, o *models.Offence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = now
	}
	cp := *o
	m.offences[o.ID] = &cp
	return nil
}

func (m *MemoryStore) ListOffences(_ context.Context, f OffenceFilter) ([]models.Offence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Offence, 0)
	for _, o := range m.offences {
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		if f.IsPaid != nil && o.IsPaid != *f.IsPaid {
			continue
		}
		if f.Search != "" && !containsFold(o.DriverName, f.Search) &&
			!containsFold(o.StudentName, f.Search) && !containsFold(o.VehicleNumber, f.Search) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) MarkOffencePaid(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offences[id]
	if !ok {
		return ErrNotFound
	}
	o.IsPaid = true
	return nil
}

func (m *MemoryStore) DeleteOffence(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.offences[id]; !ok {
		return ErrNotFound
	}
	delete(m.offences, id)
	return nil
}

// rfid devices

func (m *MemoryStore) CreateDevice(_ context.Context, d *models.RFIDDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.devices {
		if other.RFIDID == d.RFIDID {
			return ErrDuplicate
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	cp := *d
	m.devices[d.ID] = &cp
	return nil
}

func (m *MemoryStore) DeviceByRFIDID(_ context.Context, rfidID string) (*models.RFIDDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.devices {
		if d.RFIDID == rfidID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListDevices(_ context.Context) ([]models.RFIDDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RFIDDevice, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteDevice(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrNotFound
	}
	delete(m.devices, id)
	return nil
}

// stats

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Stats
	for _, u := range m.users {
		switch u.Role {
		case models.RoleStudent:
			s.TotalStudents++
		case models.RoleDriver:
			s.TotalDrivers++
		}
	}
	for _, v := range m.vehicles {
		switch v.Type {
		case models.VehicleBus:
			s.TotalBuses++
		case models.VehicleAmbulance:
			s.TotalAmbulances++
		}
	}
	for _, t := range m.trips {
		if t.IsActive {
			s.ActiveTrips++
		}
	}
	for _, b := range m.bookings {
		if b.Status == models.BookingPending {
			s.PendingBookings++
		}
	}
	for _, o := range m.offences {
		s.TotalOffences++
		if !o.IsPaid {
			s.UnpaidOffences++
		}
	}
	return s, nil
}
