package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ukydev/fleet-ledger/internal/compliance"
	"github.com/ukydev/fleet-ledger/internal/export"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// ErrInvalidTransition is returned when a navigation step is not allowed from
// the current view.
var ErrInvalidTransition = errors.New("invalid navigation transition")

// Module is a section of the application that drills down the same way.
type Module string

const (
	ModuleFinancials Module = "financials"
	ModuleMonthly    Module = "monthly"
	ModuleInsurance  Module = "insurance"
	ModuleTax        Module = "tax"
)

// ParseModule accepts a module name in any case.
func ParseModule(s string) (Module, error) {
	switch m := Module(strings.ToLower(strings.TrimSpace(s))); m {
	case ModuleFinancials, ModuleMonthly, ModuleInsurance, ModuleTax:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown module %q", models.ErrInvalidInput, s)
	}
}

// Obligation returns the compliance obligation a module tracks.
func (m Module) Obligation() (models.ObligationType, bool) {
	switch m {
	case ModuleInsurance:
		return models.ObligationInsurance, true
	case ModuleTax:
		return models.ObligationTax, true
	default:
		return "", false
	}
}

// View is a level of the drill-down.
type View int

const (
	FleetView View = iota
	TruckView
	TripView
)

func (v View) String() string {
	switch v {
	case FleetView:
		return "fleet"
	case TruckView:
		return "truck"
	case TripView:
		return "trip"
	default:
		return fmt.Sprintf("view(%d)", int(v))
	}
}

// Navigator walks one module from the fleet down to a truck and, for the
// financial modules, down to a trip. Data fetched for a view is held, so
// Back never goes to the store. A Navigator is not safe for concurrent use.
type Navigator struct {
	svc    *Service
	module Module
	window *ledger.Window
	view   View

	summary FleetSummary
	queue   []compliance.QueueItem
	truck   TruckHistory
	payment ComplianceHistory
	trip    TripStatement
}

// NewNavigator opens module at its FleetView. The Monthly module aggregates
// window, or the month to date when window is nil; Financials covers all time.
func NewNavigator(ctx context.Context, svc *Service, module Module, window *ledger.Window) (*Navigator, error) {
	if _, err := ParseModule(string(module)); err != nil {
		return nil, err
	}
	n := &Navigator{svc: svc, module: module, view: FleetView}
	if module == ModuleMonthly {
		if window == nil {
			w := ledger.CurrentMonth(svc.Now(), svc.Location())
			window = &w
		}
		n.window = window
	}

	if t, ok := module.Obligation(); ok {
		queue, err := svc.ComplianceQueue(ctx, t)
		if err != nil {
			return nil, err
		}
		n.queue = queue
		return n, nil
	}

	summary, err := svc.ListFleetSummary(ctx, n.window)
	if err != nil {
		return nil, err
	}
	n.summary = summary
	return n, nil
}

func (n *Navigator) Module() Module { return n.module }
func (n *Navigator) View() View     { return n.view }

// Summary is the FleetView of a financial module.
func (n *Navigator) Summary() FleetSummary { return n.summary }

// Queue is the FleetView of a compliance module.
func (n *Navigator) Queue() []compliance.QueueItem { return n.queue }

// Truck is the TruckView of a financial module.
func (n *Navigator) Truck() TruckHistory { return n.truck }

// Payments is the TruckView of a compliance module.
func (n *Navigator) Payments() ComplianceHistory { return n.payment }

// Trip is the TripView.
func (n *Navigator) Trip() TripStatement { return n.trip }

// SelectTruck moves from FleetView to the truck's TruckView. The Monthly
// module keeps its window, so the truck figures match its FleetView row.
func (n *Navigator) SelectTruck(ctx context.Context, vehicleID string) error {
	if n.view != FleetView {
		return fmt.Errorf("%w: select truck from %s view", ErrInvalidTransition, n.view)
	}

	if t, ok := n.module.Obligation(); ok {
		h, err := n.svc.ComplianceHistory(ctx, vehicleID, t)
		if err != nil {
			return err
		}
		n.payment = h
	} else {
		var (
			h   TruckHistory
			err error
		)
		if n.window != nil {
			h, err = n.svc.GetTruckMonth(ctx, vehicleID, *n.window)
		} else {
			h, err = n.svc.GetTruckHistory(ctx, vehicleID)
		}
		if err != nil {
			return err
		}
		n.truck = h
	}
	n.view = TruckView
	return nil
}

// SelectTrip moves from TruckView to the TripView of one of the truck's trips.
// Compliance modules have no trip level.
func (n *Navigator) SelectTrip(ctx context.Context, tripID string) error {
	if n.view != TruckView {
		return fmt.Errorf("%w: select trip from %s view", ErrInvalidTransition, n.view)
	}
	if _, ok := n.module.Obligation(); ok {
		return fmt.Errorf("%w: %s module has no trip view", ErrInvalidTransition, n.module)
	}

	found := false
	for _, line := range n.truck.Trips {
		if line.Trip.ID == tripID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: trip %s is not in the history of %s", models.ErrNotFound, tripID, n.truck.Vehicle.PlateNumber)
	}

	st, err := n.svc.GetTripStatement(ctx, tripID)
	if err != nil {
		return err
	}
	n.trip = st
	n.view = TripView
	return nil
}

// Back returns to the previous view with the data it already holds.
func (n *Navigator) Back() error {
	switch n.view {
	case TripView:
		n.trip = TripStatement{}
		n.view = TruckView
	case TruckView:
		n.truck = TruckHistory{}
		n.payment = ComplianceHistory{}
		n.view = FleetView
	default:
		return fmt.Errorf("%w: already at %s view", ErrInvalidTransition, n.view)
	}
	return nil
}

// Export flattens the trip on display into a statement table.
func (n *Navigator) Export() (export.Table, error) {
	if n.view != TripView {
		return export.Table{}, fmt.Errorf("%w: export from %s view", ErrInvalidTransition, n.view)
	}
	return export.TripStatement(n.trip.Vehicle, n.trip.Trip, n.trip.Expenses, n.svc.Location()), nil
}
