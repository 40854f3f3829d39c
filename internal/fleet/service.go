// Package fleet answers the drill-down questions asked of the ledger: how the
// fleet is doing, how one truck is doing, what one trip made, and which
// compliance obligations are coming due.
//
// Every call fetches a fresh snapshot from the store and aggregates it in
// memory. Nothing is cached between calls.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/compliance"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/export"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
	"golang.org/x/sync/errgroup"
)

// Renewer is the part of the compliance scheduler the service delegates to.
type Renewer interface {
	Renew(ctx context.Context, vehicleID string, t models.ObligationType, amountPaid float64) (compliance.Result, error)
}

// Service is the query façade over the store, the ledger and the scheduler.
type Service struct {
	store   db.Reader
	renewer Renewer
	loc     *time.Location
	now     func() time.Time
	log     *logrus.Entry
}

// NewService creates a service. loc is the reference timezone for month
// windows and daily buckets; nil means UTC.
func NewService(store db.Reader, renewer Renewer, loc *time.Location, logger *logrus.Entry) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		store:   store,
		renewer: renewer,
		loc:     loc,
		now:     time.Now,
		log:     logger.WithField("component", "fleet"),
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Location returns the reference timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the current time in the reference timezone.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

type snapshot struct {
	vehicles []models.Vehicle
	trips    []models.Trip
	expenses map[string][]models.Expense
}

// load fetches vehicles concurrently with the trips matching filter and
// their expenses.
func (s *Service) load(ctx context.Context, filter db.TripFilter) (snapshot, error) {
	var snap snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vehicles, err := s.store.ListVehicles(ctx)
		if err != nil {
			return fmt.Errorf("list vehicles: %w", err)
		}
		snap.vehicles = vehicles
		return nil
	})
	g.Go(func() error {
		trips, expenses, err := s.loadTrips(ctx, filter)
		if err != nil {
			return err
		}
		snap.trips, snap.expenses = trips, expenses
		return nil
	})

	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func (s *Service) loadTrips(ctx context.Context, filter db.TripFilter) ([]models.Trip, map[string][]models.Expense, error) {
	trips, err := s.store.ListTrips(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list trips: %w", err)
	}
	if len(trips) == 0 {
		return trips, map[string][]models.Expense{}, nil
	}
	ids := make([]string, len(trips))
	for i, t := range trips {
		ids[i] = t.ID
	}
	expenses, err := s.store.ListExpenses(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("list expenses: %w", err)
	}
	return trips, models.GroupExpensesByTrip(expenses), nil
}

// FleetSummary is the FleetView of the financial modules.
type FleetSummary struct {
	Window   *ledger.Window      `json:"window,omitempty"`
	Fleet    ledger.Record       `json:"fleet"`
	Trucks   []ledger.Record     `json:"trucks"`
	Slices   []ledger.Slice      `json:"slices"`
	Trend    []ledger.DailyPoint `json:"trend"`
	Warnings int                 `json:"warnings"`
}

// ListFleetSummary aggregates every truck, over all time when window is nil
// or over the trips created inside window otherwise.
func (s *Service) ListFleetSummary(ctx context.Context, window *ledger.Window) (FleetSummary, error) {
	scope := ledger.FleetScope()
	var filter db.TripFilter
	if window != nil {
		scope = ledger.FleetMonthScope(*window)
		filter.From, filter.To = &window.From, &window.To
	}

	snap, err := s.load(ctx, filter)
	if err != nil {
		return FleetSummary{}, err
	}

	trips := ledger.FilterTrips(snap.trips, scope)
	trucks := ledger.ByVehicle(trips, snap.expenses, snap.vehicles, scope)
	total := ledger.Merge(scope.Key(), trucks...)

	if total.Warnings > 0 {
		s.log.WithFields(logrus.Fields{"scope": scope.Key(), "warnings": total.Warnings}).
			Warn("Ledger data quality issues")
	}

	return FleetSummary{
		Window:   window,
		Fleet:    total,
		Trucks:   trucks,
		Slices:   total.Slices(),
		Trend:    ledger.DailyRevenue(trips, s.loc),
		Warnings: total.Warnings,
	}, nil
}

// TripLine is one row of a truck's trip history.
type TripLine struct {
	Trip   models.Trip   `json:"trip"`
	Record ledger.Record `json:"record"`
}

// TruckHistory is the TruckView of the financial modules: the truck's
// completed trips, newest first, and their combined P&L. A month history
// carries its window and counts every trip in it, as the monthly fleet
// figures do.
type TruckHistory struct {
	Window    *ledger.Window           `json:"window,omitempty"`
	Vehicle   models.Vehicle           `json:"vehicle"`
	Summary   ledger.Record            `json:"summary"`
	Trips     []TripLine               `json:"trips"`
	Insurance compliance.CountdownInfo `json:"insurance"`
	Tax       compliance.CountdownInfo `json:"tax"`
}

// GetTruckHistory returns a truck's closed-book history.
func (s *Service) GetTruckHistory(ctx context.Context, vehicleID string) (TruckHistory, error) {
	return s.truckHistory(ctx, vehicleID, nil)
}

// GetTruckMonth returns the truck's trips created inside window, whatever
// their status. Its summary equals the truck's row in the monthly fleet
// summary for the same window.
func (s *Service) GetTruckMonth(ctx context.Context, vehicleID string, window ledger.Window) (TruckHistory, error) {
	return s.truckHistory(ctx, vehicleID, &window)
}

func (s *Service) truckHistory(ctx context.Context, vehicleID string, window *ledger.Window) (TruckHistory, error) {
	v, trips, expenses, err := s.truckTrips(ctx, vehicleID, window)
	if err != nil {
		return TruckHistory{}, err
	}

	now := s.Now()
	h := TruckHistory{
		Window:    window,
		Vehicle:   v,
		Summary:   ledger.Merge(v.ID),
		Trips:     make([]TripLine, 0, len(trips)),
		Insurance: compliance.Countdown(v.InsuranceExpiry, models.ObligationInsurance, now),
		Tax:       compliance.Countdown(v.TaxExpiry, models.ObligationTax, now),
	}
	for _, t := range trips {
		r := ledger.TripRecord(t, expenses[t.ID])
		h.Summary = h.Summary.Add(r)
		h.Trips = append(h.Trips, TripLine{Trip: t, Record: r})
	}
	h.Summary.VehicleID = v.ID
	h.Summary.PlateNumber = v.PlateNumber
	sort.SliceStable(h.Trips, func(i, j int) bool {
		return h.Trips[i].Trip.CreatedAt.After(h.Trips[j].Trip.CreatedAt)
	})
	return h, nil
}

// truckTrips loads a vehicle with its trips and their expenses: the
// completed ones over all time, or every one created inside window.
func (s *Service) truckTrips(ctx context.Context, vehicleID string, window *ledger.Window) (models.Vehicle, []models.Trip, map[string][]models.Expense, error) {
	v, err := s.store.FindVehicleByID(ctx, vehicleID)
	if err != nil {
		return models.Vehicle{}, nil, nil, fmt.Errorf("load vehicle %s: %w", vehicleID, err)
	}
	filter := db.TripFilter{VehicleID: v.ID}
	scope := ledger.VehicleScope(v.ID)
	if window != nil {
		filter.From, filter.To = &window.From, &window.To
		scope = ledger.FleetMonthScope(*window)
	}
	trips, expenses, err := s.loadTrips(ctx, filter)
	if err != nil {
		return models.Vehicle{}, nil, nil, err
	}
	return v, ledger.FilterTrips(trips, scope), expenses, nil
}

// TripStatement is the TripView: one trip with every expense entry.
type TripStatement struct {
	Trip     models.Trip      `json:"trip"`
	Vehicle  models.Vehicle   `json:"vehicle"`
	Record   ledger.Record    `json:"record"`
	Expenses []models.Expense `json:"expenses"`
}

// GetTripStatement returns one trip's P&L, whatever its status. A trip whose
// vehicle no longer exists is reported under the Unknown plate.
func (s *Service) GetTripStatement(ctx context.Context, tripID string) (TripStatement, error) {
	trip, err := s.store.FindTripByID(ctx, tripID)
	if err != nil {
		return TripStatement{}, fmt.Errorf("load trip %s: %w", tripID, err)
	}

	var (
		v        models.Vehicle
		expenses []models.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := s.store.FindVehicleByID(gctx, trip.VehicleID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				s.log.WithFields(logrus.Fields{"trip_id": trip.ID, "vehicle_id": trip.VehicleID}).
					Warn("Trip references unknown vehicle")
				v = models.Vehicle{ID: trip.VehicleID, PlateNumber: ledger.UnknownPlate}
				return nil
			}
			return fmt.Errorf("load vehicle %s: %w", trip.VehicleID, err)
		}
		v = found
		return nil
	})
	g.Go(func() error {
		found, err := s.store.ListExpenses(gctx, []string{trip.ID})
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		expenses = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return TripStatement{}, err
	}

	record := ledger.TripRecord(trip, expenses)
	record.PlateNumber = v.PlateNumber
	return TripStatement{Trip: trip, Vehicle: v, Record: record, Expenses: expenses}, nil
}

// RenewObligation pays for the next period of an obligation.
func (s *Service) RenewObligation(ctx context.Context, vehicleID string, t models.ObligationType, amountPaid float64) (compliance.Result, error) {
	return s.renewer.Renew(ctx, vehicleID, t, amountPaid)
}

// ExportTruckReport flattens a truck's completed trips into the fixed
// trip-level schema.
func (s *Service) ExportTruckReport(ctx context.Context, vehicleID string) (export.Table, error) {
	v, trips, expenses, err := s.truckTrips(ctx, vehicleID, nil)
	if err != nil {
		return export.Table{}, err
	}
	return export.TruckReport(v, trips, expenses, s.loc), nil
}

// ExportTripStatement flattens a single trip into labelled sections.
func (s *Service) ExportTripStatement(ctx context.Context, tripID string) (export.Table, error) {
	st, err := s.GetTripStatement(ctx, tripID)
	if err != nil {
		return export.Table{}, err
	}
	return export.TripStatement(st.Vehicle, st.Trip, st.Expenses, s.loc), nil
}

// ExportMonthlyReport produces the per-truck P&L of a calendar month. The
// running month is cut at the current time.
func (s *Service) ExportMonthlyReport(ctx context.Context, year int, month time.Month) (export.Table, error) {
	if month < time.January || month > time.December || year < 1 {
		return export.Table{}, fmt.Errorf("%w: invalid month %d-%02d", models.ErrInvalidInput, year, int(month))
	}
	w := ledger.CalendarMonth(year, month, s.loc)
	if now := s.Now(); w.Contains(now) {
		w.To = now
	}

	summary, err := s.ListFleetSummary(ctx, &w)
	if err != nil {
		return export.Table{}, err
	}
	return export.MonthlyReport(w, summary.Trucks), nil
}

// ComplianceQueue lists every vehicle for an obligation, soonest expiry first.
func (s *Service) ComplianceQueue(ctx context.Context, t models.ObligationType) ([]compliance.QueueItem, error) {
	vehicles, err := s.store.ListVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return compliance.Queue(vehicles, t, s.Now()), nil
}

// ComplianceHistory is the TruckView of the compliance modules.
type ComplianceHistory struct {
	Vehicle   models.Vehicle              `json:"vehicle"`
	Type      models.ObligationType       `json:"type"`
	Expiry    *time.Time                  `json:"expiry,omitempty"`
	State     compliance.State            `json:"state"`
	Countdown compliance.CountdownInfo    `json:"countdown"`
	Payments  []models.ComplianceLogEntry `json:"payments"`
}

// ComplianceHistory returns a vehicle's standing on one obligation and its
// payment log, newest payment first.
func (s *Service) ComplianceHistory(ctx context.Context, vehicleID string, t models.ObligationType) (ComplianceHistory, error) {
	v, err := s.store.FindVehicleByID(ctx, vehicleID)
	if err != nil {
		return ComplianceHistory{}, fmt.Errorf("load vehicle %s: %w", vehicleID, err)
	}
	logs, err := s.store.ListComplianceLogs(ctx, v.ID, t)
	if err != nil {
		return ComplianceHistory{}, fmt.Errorf("list %s payments: %w", t, err)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].PaymentDate.After(logs[j].PaymentDate)
	})

	now := s.Now()
	expiry := v.Expiry(t)
	return ComplianceHistory{
		Vehicle:   v,
		Type:      t,
		Expiry:    expiry,
		State:     compliance.StateOf(expiry, now),
		Countdown: compliance.Countdown(expiry, t, now),
		Payments:  logs,
	}, nil
}
