package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-ledger/internal/models"
)

// TripFilter narrows ListTrips. Zero values match everything.
type TripFilter struct {
	VehicleID string
	From      *time.Time
	To        *time.Time
}

// Matches reports whether a trip passes the filter. Backends without query
// support (the memory store) filter with it directly.
func (f TripFilter) Matches(t models.Trip) bool {
	if f.VehicleID != "" && t.VehicleID != f.VehicleID {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && t.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// Reader defines the record-fetch operations the ledger needs.
type Reader interface {
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	FindVehicleByID(ctx context.Context, id string) (models.Vehicle, error)
	ListTrips(ctx context.Context, filter TripFilter) ([]models.Trip, error)
	FindTripByID(ctx context.Context, id string) (models.Trip, error)
	// ListExpenses returns the expenses of the given trips, or of every trip
	// when tripIDs is nil.
	ListExpenses(ctx context.Context, tripIDs []string) ([]models.Expense, error)
	ListComplianceLogs(ctx context.Context, vehicleID string, t models.ObligationType) ([]models.ComplianceLogEntry, error)
}

// Writer defines the only two writes the compliance scheduler performs.
type Writer interface {
	// UpdateVehicleExpiry sets the obligation's expiry to next, but only if it
	// is still previous (nil meaning unset). A mismatch returns ErrConflict.
	UpdateVehicleExpiry(ctx context.Context, vehicleID string, t models.ObligationType, previous, next *time.Time) error
	InsertComplianceLog(ctx context.Context, entry models.ComplianceLogEntry) (models.ComplianceLogEntry, error)
}

// Store is a complete storage collaborator.
type Store interface {
	Reader
	Writer
}

// AtomicRenewer is implemented by stores that can apply both renewal writes
// inside one native transaction.
type AtomicRenewer interface {
	ApplyRenewal(ctx context.Context, r models.Renewal) (models.ComplianceLogEntry, error)
}

// Seeder inserts fleet records. Used by the seed command and tests.
type Seeder interface {
	InsertVehicle(ctx context.Context, v models.Vehicle) (models.Vehicle, error)
	InsertTrip(ctx context.Context, t models.Trip) (models.Trip, error)
	InsertExpense(ctx context.Context, e models.Expense) (models.Expense, error)
}

// Resetter empties every ledger collection, logs included.
type Resetter interface {
	DeleteAll(ctx context.Context) error
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
