package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/ukydev/fleet-ledger/internal/models"
)

const dateLayout = "2006-01-02"

// ConnectPostgres opens a pooled connection and verifies it.
func ConnectPostgres(url string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("sql.Open error: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres ping error: %w", err)
	}
	return conn, nil
}

// PostgresStore implements Store, Seeder and AtomicRenewer on PostgreSQL.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{DB: conn}
}

// expiryColumn maps an obligation to its vehicles column.
func expiryColumn(t models.ObligationType) (string, error) {
	switch t {
	case models.ObligationInsurance:
		return "insurance_expiry", nil
	case models.ObligationTax:
		return "tax_expiry", nil
	default:
		return "", fmt.Errorf("%w: unknown obligation type %q", models.ErrInvalidInput, t)
	}
}

// classifyPG maps driver errors onto the shared error kinds.
func classifyPG(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	var netErr net.Error
	var pqErr *pq.Error
	switch {
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return fmt.Errorf("%s: %w: %v", what, models.ErrUpstreamUnavailable, err)
	case errors.As(err, &pqErr):
		// 08: connection exception, 57P: operator intervention
		if pqErr.Code.Class() == "08" || strings.HasPrefix(string(pqErr.Code), "57P") {
			return fmt.Errorf("%s: %w: %v", what, models.ErrUpstreamUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func nullDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromNullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func fromNullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const vehicleColumns = "id, plate_number, insurance_expiry, tax_expiry, created_at"

func scanVehicle(row rowScanner) (models.Vehicle, error) {
	var v models.Vehicle
	var ins, tax sql.NullTime
	if err := row.Scan(&v.ID, &v.PlateNumber, &ins, &tax, &v.CreatedAt); err != nil {
		return models.Vehicle{}, err
	}
	v.InsuranceExpiry = fromNullTime(ins)
	v.TaxExpiry = fromNullTime(tax)
	return v, nil
}

const tripColumns = "id, vehicle_id, from_location, to_location, created_at, total_freight, status, driver_name, driver_bata"

func scanTrip(row rowScanner) (models.Trip, error) {
	var t models.Trip
	var freight, bata sql.NullFloat64
	var status string
	if err := row.Scan(&t.ID, &t.VehicleID, &t.FromLocation, &t.ToLocation, &t.CreatedAt, &freight, &status, &t.DriverName, &bata); err != nil {
		return models.Trip{}, err
	}
	t.Status = models.TripStatus(status)
	t.TotalFreight = fromNullFloat(freight)
	t.DriverBata = fromNullFloat(bata)
	return t, nil
}

func (s *PostgresStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT "+vehicleColumns+" FROM vehicles ORDER BY plate_number")
	if err != nil {
		return nil, classifyPG(err, "list vehicles")
	}
	defer rows.Close()

	var out []models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, classifyPG(err, "scan vehicle")
		}
		out = append(out, v)
	}
	return out, classifyPG(rows.Err(), "list vehicles")
}

func (s *PostgresStore) FindVehicleByID(ctx context.Context, id string) (models.Vehicle, error) {
	row := s.DB.QueryRowContext(ctx, "SELECT "+vehicleColumns+" FROM vehicles WHERE id = $1", id)
	v, err := scanVehicle(row)
	if err != nil {
		return models.Vehicle{}, classifyPG(err, "vehicle "+id)
	}
	return v, nil
}

func (s *PostgresStore) ListTrips(ctx context.Context, filter TripFilter) ([]models.Trip, error) {
	var where []string
	var args []interface{}
	if filter.VehicleID != "" {
		args = append(args, filter.VehicleID)
		where = append(where, fmt.Sprintf("vehicle_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := "SELECT " + tripColumns + " FROM trips"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPG(err, "list trips")
	}
	defer rows.Close()

	var out []models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, classifyPG(err, "scan trip")
		}
		out = append(out, t)
	}
	return out, classifyPG(rows.Err(), "list trips")
}

func (s *PostgresStore) FindTripByID(ctx context.Context, id string) (models.Trip, error) {
	row := s.DB.QueryRowContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE id = $1", id)
	t, err := scanTrip(row)
	if err != nil {
		return models.Trip{}, classifyPG(err, "trip "+id)
	}
	return t, nil
}

func (s *PostgresStore) ListExpenses(ctx context.Context, tripIDs []string) ([]models.Expense, error) {
	query := "SELECT id, trip_id, amount, category, created_at FROM expenses"
	var args []interface{}
	if tripIDs != nil {
		if len(tripIDs) == 0 {
			return nil, nil
		}
		query += " WHERE trip_id = ANY($1)"
		args = append(args, pq.Array(tripIDs))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPG(err, "list expenses")
	}
	defer rows.Close()

	var out []models.Expense
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.ID, &e.TripID, &e.Amount, &e.Category, &e.CreatedAt); err != nil {
			return nil, classifyPG(err, "scan expense")
		}
		out = append(out, e)
	}
	return out, classifyPG(rows.Err(), "list expenses")
}

func (s *PostgresStore) ListComplianceLogs(ctx context.Context, vehicleID string, t models.ObligationType) ([]models.ComplianceLogEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, vehicle_id, type, amount_paid, payment_date, new_expiry_date
		FROM compliance_logs
		WHERE vehicle_id = $1 AND type = $2
		ORDER BY payment_date DESC, new_expiry_date DESC`, vehicleID, string(t))
	if err != nil {
		return nil, classifyPG(err, "list compliance logs")
	}
	defer rows.Close()

	var out []models.ComplianceLogEntry
	for rows.Next() {
		var e models.ComplianceLogEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.VehicleID, &typ, &e.AmountPaid, &e.PaymentDate, &e.NewExpiryDate); err != nil {
			return nil, classifyPG(err, "scan compliance log")
		}
		e.Type = models.ObligationType(typ)
		e.PaymentDate = e.PaymentDate.UTC()
		e.NewExpiryDate = e.NewExpiryDate.UTC()
		out = append(out, e)
	}
	return out, classifyPG(rows.Err(), "list compliance logs")
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func updateExpiry(ctx context.Context, q execer, vehicleID string, t models.ObligationType, previous, next *time.Time) error {
	col, err := expiryColumn(t)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		fmt.Sprintf("UPDATE vehicles SET %[1]s = $1::date WHERE id = $2 AND %[1]s IS NOT DISTINCT FROM $3::date", col),
		nullDate(next), vehicleID, nullDate(previous))
	if err != nil {
		return classifyPG(err, "update "+col)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classifyPG(err, "update "+col)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1)", vehicleID).Scan(&exists); err != nil {
		return classifyPG(err, "vehicle "+vehicleID)
	}
	if !exists {
		return fmt.Errorf("vehicle %s: %w", vehicleID, models.ErrNotFound)
	}
	return fmt.Errorf("%s of vehicle %s changed: %w", col, vehicleID, models.ErrConflict)
}

func insertLog(ctx context.Context, q execer, e models.ComplianceLogEntry) (models.ComplianceLogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO compliance_logs (id, vehicle_id, type, amount_paid, payment_date, new_expiry_date)
		VALUES ($1, $2, $3, $4, $5::date, $6::date)`,
		e.ID, e.VehicleID, string(e.Type), e.AmountPaid,
		e.PaymentDate.Format(dateLayout), e.NewExpiryDate.Format(dateLayout))
	if err != nil {
		return models.ComplianceLogEntry{}, classifyPG(err, "insert compliance log")
	}
	return e, nil
}

func (s *PostgresStore) UpdateVehicleExpiry(ctx context.Context, vehicleID string, t models.ObligationType, previous, next *time.Time) error {
	return updateExpiry(ctx, s.DB, vehicleID, t, previous, next)
}

func (s *PostgresStore) InsertComplianceLog(ctx context.Context, e models.ComplianceLogEntry) (models.ComplianceLogEntry, error) {
	return insertLog(ctx, s.DB, e)
}

// ApplyRenewal performs both renewal writes in one transaction.
func (s *PostgresStore) ApplyRenewal(ctx context.Context, r models.Renewal) (models.ComplianceLogEntry, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.ComplianceLogEntry{}, classifyPG(err, "begin renewal")
	}
	defer tx.Rollback()

	next := r.Entry.NewExpiryDate
	if err := updateExpiry(ctx, tx, r.VehicleID, r.Type, r.PreviousExpiry, &next); err != nil {
		return models.ComplianceLogEntry{}, err
	}
	entry, err := insertLog(ctx, tx, r.Entry)
	if err != nil {
		return models.ComplianceLogEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.ComplianceLogEntry{}, classifyPG(err, "commit renewal")
	}
	return entry, nil
}

func (s *PostgresStore) InsertVehicle(ctx context.Context, v models.Vehicle) (models.Vehicle, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO vehicles ("+vehicleColumns+") VALUES ($1, $2, $3::date, $4::date, $5)",
		v.ID, v.PlateNumber, nullDate(v.InsuranceExpiry), nullDate(v.TaxExpiry), v.CreatedAt)
	if err != nil {
		return models.Vehicle{}, classifyPG(err, "insert vehicle")
	}
	return v, nil
}

func (s *PostgresStore) InsertTrip(ctx context.Context, t models.Trip) (models.Trip, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = models.TripActive
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO trips ("+tripColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		t.ID, t.VehicleID, t.FromLocation, t.ToLocation, t.CreatedAt,
		nullFloat(t.TotalFreight), string(t.Status), t.DriverName, nullFloat(t.DriverBata))
	if err != nil {
		return models.Trip{}, classifyPG(err, "insert trip")
	}
	return t, nil
}

func (s *PostgresStore) InsertExpense(ctx context.Context, e models.Expense) (models.Expense, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO expenses (id, trip_id, amount, category, created_at) VALUES ($1, $2, $3, $4, $5)",
		e.ID, e.TripID, e.Amount, e.Category, e.CreatedAt)
	if err != nil {
		return models.Expense{}, classifyPG(err, "insert expense")
	}
	return e, nil
}

// DeleteAll empties every ledger table in one statement.
func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "TRUNCATE compliance_logs, expenses, trips, vehicles"); err != nil {
		return classifyPG(err, "truncate ledger tables")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}
