package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/campus-fleet/internal/models"
)

// PostgresStore implements Store over database/sql with the pq driver.
// Every check-then-set in the API surface is a single conditional UPDATE
// or guarded INSERT here; RowsAffected tells races apart from absence.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle, used by cmd binaries
// that manage the connection themselves.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func locationJSON(l *models.Location) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func offenceLocationJSON(l *models.OffenceLocation) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func scanUUIDPtr(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// users

const userColumns = `id, name, COALESCE(phone,''), COALESCE(email,''), password_hash,
	COALESCE(registration_id,''), COALESCE(dob,''), role, driver_type, created_at`

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	var driverType sql.NullString
	if u.DriverType != nil {
		driverType = nullStr(string(*u.DriverType))
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, name, phone, email, password_hash, registration_id, dob, role, driver_type, created_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, NULLIF($6,''), NULLIF($7,''), $8, $9, $10)`,
		u.ID, u.Name, u.Phone, u.Email, u.PasswordHash, u.RegistrationID, u.DOB, u.Role, driverType, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var driverType sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.Email, &u.PasswordHash,
		&u.RegistrationID, &u.DOB, &u.Role, &driverType, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if driverType.Valid {
		t := models.VehicleType(driverType.String)
		u.DriverType = &t
	}
	return &u, nil
}

func (p *PostgresStore) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) UserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

func (p *PostgresStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (p *PostgresStore) UserByRegistrationID(ctx context.Context, regID string) (*models.User, error) {
	return scanUser(p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE registration_id = $1`, regID))
}

func (p *PostgresStore) ListUsers(ctx context.Context, f UserFilter) ([]models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	args := []any{}
	if f.Role != "" {
		args = append(args, f.Role)
		q += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if f.DriverType != "" {
		args = append(args, f.DriverType)
		q += fmt.Sprintf(" AND driver_type = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		q += fmt.Sprintf(" AND (name ILIKE $%d OR registration_id ILIKE $%d OR phone ILIKE $%d)", n, n, n)
	}
	q += " ORDER BY created_at DESC"

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, hash string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID, role models.Role) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1 AND role = $2`, id, role)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// vehicles

const vehicleColumns = `id, vehicle_number, gps_imei, COALESCE(barcode,''), vehicle_type,
	assigned_to, COALESCE(assigned_driver_name,''), is_out_of_station, current_location, created_at`

func (p *PostgresStore) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	loc, err := locationJSON(v.CurrentLocation)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, vehicle_number, gps_imei, barcode, vehicle_type, assigned_to,
			assigned_driver_name, is_out_of_station, current_location, created_at)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, NULLIF($7,''), $8, $9, $10)`,
		v.ID, v.VehicleNumber, v.GPSIMEI, v.Barcode, v.Type, nullUUID(v.AssignedTo),
		v.AssignedDriverName, v.IsOutOfStation, loc, v.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func scanVehicle(row interface{ Scan(...any) error }) (*models.Vehicle, error) {
	var v models.Vehicle
	var assigned sql.NullString
	var loc []byte
	err := row.Scan(&v.ID, &v.VehicleNumber, &v.GPSIMEI, &v.Barcode, &v.Type,
		&assigned, &v.AssignedDriverName, &v.IsOutOfStation, &loc, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if v.AssignedTo, err = scanUUIDPtr(assigned); err != nil {
		return nil, err
	}
	if len(loc) > 0 {
		var l models.Location
		if err := json.Unmarshal(loc, &l); err != nil {
			return nil, err
		}
		v.CurrentLocation = &l
	}
	return &v, nil
}

func (p *PostgresStore) VehicleByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	return scanVehicle(p.db.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
}

func (p *PostgresStore) VehicleByIMEI(ctx context.Context, imei string) (*models.Vehicle, error) {
	return scanVehicle(p.db.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE gps_imei = $1`, imei))
}

func (p *PostgresStore) queryVehicles(ctx context.Context, q string, args ...any) ([]models.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error) {
	q := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE 1=1`
	args := []any{}
	if f.Type != "" {
		args = append(args, f.Type)
		q += fmt.Sprintf(" AND vehicle_type = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		q += fmt.Sprintf(" AND (vehicle_number ILIKE $%d OR gps_imei ILIKE $%d)", n, n)
	}
	q += " ORDER BY created_at DESC"
	return p.queryVehicles(ctx, q, args...)
}

func (p *PostgresStore) ListUnassigned(ctx context.Context, t models.VehicleType) ([]models.Vehicle, error) {
	return p.queryVehicles(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE vehicle_type = $1 AND assigned_to IS NULL ORDER BY created_at DESC`, t)
}

func (p *PostgresStore) AssignedVehicle(ctx context.Context, driverID uuid.UUID, t models.VehicleType) (*models.Vehicle, error) {
	return scanVehicle(p.db.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE assigned_to = $1 AND vehicle_type = $2 LIMIT 1`,
		driverID, t))
}

func (p *PostgresStore) AssignVehicle(ctx context.Context, vehicleID, driverID uuid.UUID, driverName string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE vehicles SET assigned_to = $2, assigned_driver_name = $3
		WHERE id = $1 AND assigned_to IS NULL`,
		vehicleID, driverID, driverName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	// Zero rows: tell a lost race apart from an unknown vehicle.
	if _, err := p.VehicleByID(ctx, vehicleID); err != nil {
		return err
	}
	return ErrConflict
}

func (p *PostgresStore) ReleaseVehicle(ctx context.Context, vehicleID, driverID uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE vehicles SET assigned_to = NULL, assigned_driver_name = NULL
		WHERE id = $1 AND assigned_to = $2`,
		vehicleID, driverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := p.VehicleByID(ctx, vehicleID); err != nil {
		return err
	}
	return ErrNotOwner
}

func (p *PostgresStore) ReleaseVehiclesOfDriver(ctx context.Context, driverID uuid.UUID) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE vehicles SET assigned_to = NULL, assigned_driver_name = NULL
		WHERE assigned_to = $1`, driverID)
	return err
}

func (p *PostgresStore) UpdateVehicleLocation(ctx context.Context, vehicleID uuid.UUID, loc models.Location) error {
	b, err := locationJSON(&loc)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE vehicles SET current_location = $2 WHERE id = $1`, vehicleID, b)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) ClearVehicleLocation(ctx context.Context, vehicleID uuid.UUID) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE vehicles SET current_location = NULL WHERE id = $1`, vehicleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) SetOutOfStation(ctx context.Context, vehicleID, driverID uuid.UUID, flag bool) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE vehicles SET is_out_of_station = $3 WHERE id = $1 AND assigned_to = $2`,
		vehicleID, driverID, flag)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) DeleteVehicle(ctx context.Context, id uuid.UUID) error {
	// booking and trip references carry ON DELETE SET NULL, so removal only
	// nullifies, never cascades into history.
	res, err := p.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// bookings

const bookingColumns = `id, student_registration_id, COALESCE(student_name,''), phone, place,
	COALESCE(place_details,''), user_location, status, driver_id, COALESCE(driver_name,''),
	vehicle_id, COALESCE(vehicle_number,''), eta_minutes, created_at`

func (p *PostgresStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	loc, err := locationJSON(b.UserLocation)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO bookings (id, student_registration_id, student_name, phone, place, place_details,
			user_location, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, $9)`,
		b.ID, b.StudentRegistrationID, b.StudentName, b.Phone, b.Place, b.PlaceDetails,
		loc, b.Status, b.CreatedAt)
	return err
}

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	var b models.Booking
	var loc []byte
	var driverID, vehicleID sql.NullString
	var eta sql.NullFloat64
	err := row.Scan(&b.ID, &b.StudentRegistrationID, &b.StudentName, &b.Phone, &b.Place,
		&b.PlaceDetails, &loc, &b.Status, &driverID, &b.DriverName,
		&vehicleID, &b.VehicleNumber, &eta, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if b.DriverID, err = scanUUIDPtr(driverID); err != nil {
		return nil, err
	}
	if b.VehicleID, err = scanUUIDPtr(vehicleID); err != nil {
		return nil, err
	}
	if eta.Valid {
		b.ETAMinutes = &eta.Float64
	}
	if len(loc) > 0 {
		var l models.Location
		if err := json.Unmarshal(loc, &l); err != nil {
			return nil, err
		}
		b.UserLocation = &l
	}
	return &b, nil
}

func (p *PostgresStore) BookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return scanBooking(p.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

func (p *PostgresStore) FirstPendingBooking(ctx context.Context) (*models.Booking, error) {
	return scanBooking(p.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE status = 'pending' ORDER BY created_at DESC LIMIT 1`))
}

func (p *PostgresStore) ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Phone != "" {
		args = append(args, f.Phone)
		q += fmt.Sprintf(" AND phone = $%d", len(args))
	}
	q += " ORDER BY created_at DESC"

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) AcceptBooking(ctx context.Context, bookingID, driverID uuid.UUID, driverName string, vehicleID uuid.UUID, vehicleNumber string, etaMinutes *float64) error {
	var eta sql.NullFloat64
	if etaMinutes != nil {
		eta = sql.NullFloat64{Float64: *etaMinutes, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'accepted', driver_id = $2, driver_name = $3, vehicle_id = $4,
			vehicle_number = $5, eta_minutes = $6
		WHERE id = $1 AND status = 'pending'`,
		bookingID, driverID, driverName, vehicleID, vehicleNumber, eta)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := p.BookingByID(ctx, bookingID); err != nil {
		return err
	}
	return ErrConflict
}

func (p *PostgresStore) MarkBookingInProgress(ctx context.Context, bookingID, driverID uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings SET status = 'in_progress'
		WHERE id = $1 AND driver_id = $2 AND status = 'accepted'`,
		bookingID, driverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	b, err := p.BookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.DriverID == nil || *b.DriverID != driverID {
		return ErrNotOwner
	}
	return ErrConflict
}

func (p *PostgresStore) SetBookingStatusOwned(ctx context.Context, bookingID, driverID uuid.UUID, status models.BookingStatus) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings SET status = $3 WHERE id = $1 AND driver_id = $2`,
		bookingID, driverID, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := p.BookingByID(ctx, bookingID); err != nil {
		return err
	}
	return ErrNotOwner
}

func (p *PostgresStore) UpdateBookingETA(ctx context.Context, bookingID uuid.UUID, etaMinutes float64) error {
	// Silent no-op once the booking has left accepted/in_progress; a late
	// GPS sample must not resurrect an ETA on a finished ride.
	_, err := p.db.ExecContext(ctx, `
		UPDATE bookings SET eta_minutes = $2
		WHERE id = $1 AND status IN ('accepted', 'in_progress')`,
		bookingID, etaMinutes)
	return err
}

func (p *PostgresStore) ActiveBookingForVehicle(ctx context.Context, vehicleID uuid.UUID) (*models.Booking, error) {
	return scanBooking(p.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		WHERE vehicle_id = $1 AND status IN ('accepted', 'in_progress')
		ORDER BY created_at DESC LIMIT 1`, vehicleID))
}

// trips

const tripColumns = `id, vehicle_id, driver_id, vehicle_number, driver_name, vehicle_type,
	start_time, end_time, is_active, created_at`

func (p *PostgresStore) StartTrip(ctx context.Context, t *models.Trip) error {
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
	// Guarded insert: refuses when the driver or the vehicle already has an
	// active trip, all in one statement.
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO trips (id, vehicle_id, driver_id, vehicle_number, driver_name, vehicle_type,
			start_time, is_active, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, TRUE, $8
		WHERE NOT EXISTS (SELECT 1 FROM trips WHERE driver_id = $3 AND is_active)
		  AND NOT EXISTS (SELECT 1 FROM trips WHERE vehicle_id = $2 AND is_active)`,
		t.ID, nullUUID(t.VehicleID), nullUUID(t.DriverID), t.VehicleNumber, t.DriverName,
		t.VehicleType, t.StartTime, t.CreatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func scanTrip(row interface{ Scan(...any) error }) (*models.Trip, error) {
	var t models.Trip
	var vehicleID, driverID sql.NullString
	var end sql.NullTime
	err := row.Scan(&t.ID, &vehicleID, &driverID, &t.VehicleNumber, &t.DriverName,
		&t.VehicleType, &t.StartTime, &end, &t.IsActive, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.VehicleID, err = scanUUIDPtr(vehicleID); err != nil {
		return nil, err
	}
	if t.DriverID, err = scanUUIDPtr(driverID); err != nil {
		return nil, err
	}
	if end.Valid {
		t.EndTime = &end.Time
	}
	return &t, nil
}

func (p *PostgresStore) EndTrip(ctx context.Context, tripID, driverID uuid.UUID) (*models.Trip, error) {
	return scanTrip(p.db.QueryRowContext(ctx, `
		UPDATE trips SET is_active = FALSE, end_time = now()
		WHERE id = $1 AND driver_id = $2 AND is_active
		RETURNING `+tripColumns, tripID, driverID))
}

func (p *PostgresStore) queryTrips(ctx context.Context, q string, args ...any) ([]models.Trip, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Trip, 0)
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) TripsByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Trip, error) {
	return p.queryTrips(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE driver_id = $1 ORDER BY start_time DESC`, driverID)
}

func (p *PostgresStore) ActiveTripByDriver(ctx context.Context, driverID uuid.UUID) (*models.Trip, error) {
	return scanTrip(p.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE driver_id = $1 AND is_active LIMIT 1`, driverID))
}

func (p *PostgresStore) ListTrips(ctx context.Context, f TripFilter) ([]models.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE 1=1`
	args := []any{}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		q += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	if f.VehicleType != "" {
		args = append(args, f.VehicleType)
		q += fmt.Sprintf(" AND vehicle_type = $%d", len(args))
	}
	if f.DriverID != nil {
		args = append(args, *f.DriverID)
		q += fmt.Sprintf(" AND driver_id = $%d", len(args))
	}
	q += " ORDER BY start_time DESC"
	return p.queryTrips(ctx, q, args...)
}

// offences

const offenceColumns = `id, offence_type, driver_id, COALESCE(driver_name,''), student_id,
	COALESCE(student_name,''), COALESCE(student_registration_id,''), vehicle_id,
	COALESCE(vehicle_number,''), speed, speed_limit, location, COALESCE(rfid_number,''),
	is_paid, timestamp, created_at`

func (p *PostgresStore) CreateOffence(ctx context.Context, o *models.Offence) error {
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
	loc, err := offenceLocationJSON(o.Location)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO offences (id, offence_type, driver_id, driver_name, student_id, student_name,
			student_registration_id, vehicle_id, vehicle_number, speed, speed_limit, location,
			rfid_number, is_paid, timestamp, created_at)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, NULLIF($6,''), NULLIF($7,''), $8, NULLIF($9,''),
			$10, $11, $12, NULLIF($13,''), $14, $15, $16)`,
		o.ID, o.Type, nullUUID(o.DriverID), o.DriverName, nullUUID(o.StudentID), o.StudentName,
		o.StudentRegistrationID, nullUUID(o.VehicleID), o.VehicleNumber, o.Speed, o.SpeedLimit,
		loc, o.RFIDNumber, o.IsPaid, o.Timestamp, o.CreatedAt)
	return err
}

func (p *PostgresStore) ListOffences(ctx context.Context, f OffenceFilter) ([]models.Offence, error) {
	q := `SELECT ` + offenceColumns + ` FROM offences WHERE 1=1`
	args := []any{}
	if f.Type != "" {
		args = append(args, f.Type)
		q += fmt.Sprintf(" AND offence_type = $%d", len(args))
	}
	if f.IsPaid != nil {
		args = append(args, *f.IsPaid)
		q += fmt.Sprintf(" AND is_paid = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		q += fmt.Sprintf(" AND (driver_name ILIKE $%d OR student_name ILIKE $%d OR vehicle_number ILIKE $%d)", n, n, n)
	}
	q += " ORDER BY created_at DESC"

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Offence, 0)
	for rows.Next() {
		var o models.Offence
		var driverID, studentID, vehicleID sql.NullString
		var loc []byte
		err := rows.Scan(&o.ID, &o.Type, &driverID, &o.DriverName, &studentID, &o.StudentName,
			&o.StudentRegistrationID, &vehicleID, &o.VehicleNumber, &o.Speed, &o.SpeedLimit,
			&loc, &o.RFIDNumber, &o.IsPaid, &o.Timestamp, &o.CreatedAt)
		if err != nil {
			return nil, err
		}
		if o.DriverID, err = scanUUIDPtr(driverID); err != nil {
			return nil, err
		}
		if o.StudentID, err = scanUUIDPtr(studentID); err != nil {
			return nil, err
		}
		if o.VehicleID, err = scanUUIDPtr(vehicleID); err != nil {
			return nil, err
		}
		if len(loc) > 0 {
			var l models.OffenceLocation
			if err := json.Unmarshal(loc, &l); err != nil {
				return nil, err
			}
			o.Location = &l
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkOffencePaid(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `UPDATE offences SET is_paid = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) DeleteOffence(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM offences WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// rfid devices

func (p *PostgresStore) CreateDevice(ctx context.Context, d *models.RFIDDevice) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rfid_devices (id, rfid_id, location_name, created_at)
		VALUES ($1, $2, $3, $4)`,
		d.ID, d.RFIDID, d.LocationName, d.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *PostgresStore) DeviceByRFIDID(ctx context.Context, rfidID string) (*models.RFIDDevice, error) {
	var d models.RFIDDevice
	err := p.db.QueryRowContext(ctx,
		`SELECT id, rfid_id, location_name, created_at FROM rfid_devices WHERE rfid_id = $1`,
		rfidID).Scan(&d.ID, &d.RFIDID, &d.LocationName, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) ListDevices(ctx context.Context) ([]models.RFIDDevice, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, rfid_id, location_name, created_at FROM rfid_devices ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.RFIDDevice, 0)
	for rows.Next() {
		var d models.RFIDDevice
		if err := rows.Scan(&d.ID, &d.RFIDID, &d.LocationName, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM rfid_devices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// stats

func (p *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := p.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM users WHERE role = 'student'),
		(SELECT COUNT(*) FROM users WHERE role = 'driver'),
		(SELECT COUNT(*) FROM vehicles WHERE vehicle_type = 'bus'),
		(SELECT COUNT(*) FROM vehicles WHERE vehicle_type = 'ambulance'),
		(SELECT COUNT(*) FROM trips WHERE is_active),
		(SELECT COUNT(*) FROM bookings WHERE status = 'pending'),
		(SELECT COUNT(*) FROM offences),
		(SELECT COUNT(*) FROM offences WHERE NOT is_paid)`).Scan(
		&s.TotalStudents, &s.TotalDrivers, &s.TotalBuses, &s.TotalAmbulances,
		&s.ActiveTrips, &s.PendingBookings, &s.TotalOffences, &s.UnpaidOffences)
	return s, err
}

func requireRow(res sql.Result) error {
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyMigration executes a migration file's statements verbatim.
func (p *PostgresStore) ApplyMigration(ctx context.Context, migrationSQL string) error {
	if strings.TrimSpace(migrationSQL) == "" {
		return nil
	}
	_, err := p.db.ExecContext(ctx, migrationSQL)
	return err
}
