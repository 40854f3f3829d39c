package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// MemoryStore is an in-process Store and Seeder for local runs and tests.
// It has no native transactions, so renewals against it go through the
// compare-and-set and compensation path.
type MemoryStore struct {
	mu       sync.Mutex
	vehicles map[string]models.Vehicle
	trips    map[string]models.Trip
	expenses map[string]models.Expense
	logs     []models.ComplianceLogEntry
	faults   map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles: make(map[string]models.Vehicle),
		trips:    make(map[string]models.Trip),
		expenses: make(map[string]models.Expense),
		faults:   make(map[string]error),
	}
}

// FailNext makes the next call of the named method return err.
func (s *MemoryStore) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = err
}

// fault must be called with mu held.
func (s *MemoryStore) fault(method string) error {
	if err, ok := s.faults[method]; ok {
		delete(s.faults, method)
		return err
	}
	return nil
}

func (s *MemoryStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListVehicles"); err != nil {
		return nil, err
	}
	out := make([]models.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlateNumber < out[j].PlateNumber })
	return out, nil
}

func (s *MemoryStore) FindVehicleByID(ctx context.Context, id string) (models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FindVehicleByID"); err != nil {
		return models.Vehicle{}, err
	}
	v, ok := s.vehicles[id]
	if !ok {
		return models.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, models.ErrNotFound)
	}
	return v, nil
}

func (s *MemoryStore) ListTrips(ctx context.Context, filter TripFilter) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListTrips"); err != nil {
		return nil, err
	}
	var out []models.Trip
	for _, t := range s.trips {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) FindTripByID(ctx context.Context, id string) (models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FindTripByID"); err != nil {
		return models.Trip{}, err
	}
	t, ok := s.trips[id]
	if !ok {
		return models.Trip{}, fmt.Errorf("trip %s: %w", id, models.ErrNotFound)
	}
	return t, nil
}

func (s *MemoryStore) ListExpenses(ctx context.Context, tripIDs []string) ([]models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListExpenses"); err != nil {
		return nil, err
	}
	var wanted map[string]bool
	if tripIDs != nil {
		wanted = make(map[string]bool, len(tripIDs))
		for _, id := range tripIDs {
			wanted[id] = true
		}
	}
	var out []models.Expense
	for _, e := range s.expenses {
		if wanted == nil || wanted[e.TripID] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListComplianceLogs(ctx context.Context, vehicleID string, t models.ObligationType) ([]models.ComplianceLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListComplianceLogs"); err != nil {
		return nil, err
	}
	var out []models.ComplianceLogEntry
	for i := len(s.logs) - 1; i >= 0; i-- {
		if e := s.logs[i]; e.VehicleID == vehicleID && e.Type == t {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateVehicleExpiry(ctx context.Context, vehicleID string, t models.ObligationType, previous, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateVehicleExpiry"); err != nil {
		return err
	}
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicleID, models.ErrNotFound)
	}
	if !sameExpiry(v.Expiry(t), previous) {
		return fmt.Errorf("%s expiry of vehicle %s changed: %w", t, vehicleID, models.ErrConflict)
	}
	var stored *time.Time
	if next != nil {
		n := *next
		stored = &n
	}
	s.vehicles[vehicleID] = v.WithExpiry(t, stored)
	return nil
}

func (s *MemoryStore) InsertComplianceLog(ctx context.Context, entry models.ComplianceLogEntry) (models.ComplianceLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertComplianceLog"); err != nil {
		return models.ComplianceLogEntry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.logs = append(s.logs, entry)
	return entry, nil
}

func (s *MemoryStore) InsertVehicle(ctx context.Context, v models.Vehicle) (models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	s.vehicles[v.ID] = v
	return v, nil
}

func (s *MemoryStore) InsertTrip(ctx context.Context, t models.Trip) (models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = models.TripActive
	}
	s.trips[t.ID] = t
	return t, nil
}

func (s *MemoryStore) InsertExpense(ctx context.Context, e models.Expense) (models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.expenses[e.ID] = e
	return e, nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteAll"); err != nil {
		return err
	}
	s.vehicles = make(map[string]models.Vehicle)
	s.trips = make(map[string]models.Trip)
	s.expenses = make(map[string]models.Expense)
	s.logs = nil
	return nil
}
