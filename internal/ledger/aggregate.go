package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Vehicle bucket used for trips whose vehicle cannot be resolved.
const (
	UnknownVehicleID = "unknown"
	UnknownPlate     = "Unknown"
)

// ScopeKind selects the granularity of an aggregation.
type ScopeKind int

const (
	// ScopeTrip aggregates one trip, whatever its status.
	ScopeTrip ScopeKind = iota
	// ScopeVehicle aggregates a truck's closed-book history: completed trips only.
	ScopeVehicle
	// ScopeFleet aggregates every trip of every vehicle.
	ScopeFleet
	// ScopeFleetMonth aggregates every trip created inside a month window.
	ScopeFleetMonth
)

// Scope describes which trips an aggregation covers.
type Scope struct {
	Kind      ScopeKind
	TripID    string
	VehicleID string
	Window    Window
}

func TripScope(tripID string) Scope       { return Scope{Kind: ScopeTrip, TripID: tripID} }
func VehicleScope(vehicleID string) Scope { return Scope{Kind: ScopeVehicle, VehicleID: vehicleID} }
func FleetScope() Scope                   { return Scope{Kind: ScopeFleet} }
func FleetMonthScope(w Window) Scope      { return Scope{Kind: ScopeFleetMonth, Window: w} }

// Key identifies the scope in records and logs.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeTrip:
		return s.TripID
	case ScopeVehicle:
		return s.VehicleID
	case ScopeFleetMonth:
		return "fleet:" + s.Window.Label()
	default:
		return "fleet"
	}
}

// Includes reports whether a trip falls inside the scope. Trips outside a
// month window are excluded entirely.
func (s Scope) Includes(t models.Trip) bool {
	switch s.Kind {
	case ScopeTrip:
		return t.ID == s.TripID
	case ScopeVehicle:
		return t.VehicleID == s.VehicleID && t.IsCompleted()
	case ScopeFleetMonth:
		return s.Window.Contains(t.CreatedAt)
	default:
		return true
	}
}

// statusRule keeps the scope's status and window rules but drops its
// identity filter, so the same intent can be applied per vehicle bucket.
func (s Scope) statusRule() func(models.Trip) bool {
	switch s.Kind {
	case ScopeVehicle:
		return models.Trip.IsCompleted
	case ScopeFleetMonth:
		w := s.Window
		return func(t models.Trip) bool { return w.Contains(t.CreatedAt) }
	default:
		return func(models.Trip) bool { return true }
	}
}

// Breakdown holds summed expense amounts per category. Breakdowns built by
// this package always carry every category, zero when absent.
type Breakdown map[Category]decimal.Decimal

func newBreakdown() Breakdown {
	b := make(Breakdown, len(reportOrder))
	for _, c := range reportOrder {
		b[c] = decimal.Zero
	}
	return b
}

// Total sums every category.
func (b Breakdown) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range b {
		total = total.Add(v)
	}
	return total
}

// Record is the profit-and-loss result for one aggregation scope.
type Record struct {
	Key         string          `json:"key"`
	VehicleID   string          `json:"vehicle_id,omitempty"`
	PlateNumber string          `json:"plate_number,omitempty"`
	Revenue     decimal.Decimal `json:"revenue"`
	Expenses    Breakdown       `json:"expense_breakdown"`
	NetProfit   decimal.Decimal `json:"net_profit"`
	TripCount   int             `json:"trip_count"`
	// Warnings counts data-quality problems absorbed while aggregating
	// (missing freight, negative amounts, unresolved vehicles).
	Warnings int `json:"warnings"`
}

// NewRecord returns an empty record for key.
func NewRecord(key string) Record {
	return Record{Key: key, Revenue: decimal.Zero, Expenses: newBreakdown(), NetProfit: decimal.Zero}
}

// TotalExpenses sums the expense breakdown, driver bata included.
func (r Record) TotalExpenses() decimal.Decimal {
	return r.Expenses.Total()
}

// Add folds other into r. Add is associative and commutative, which is what
// makes per-trip records sum to the totals of any enclosing scope.
func (r Record) Add(other Record) Record {
	out := r
	out.Expenses = newBreakdown()
	for c, v := range r.Expenses {
		out.Expenses[c] = out.Expenses[c].Add(v)
	}
	for c, v := range other.Expenses {
		out.Expenses[c] = out.Expenses[c].Add(v)
	}
	out.Revenue = r.Revenue.Add(other.Revenue)
	out.TripCount = r.TripCount + other.TripCount
	out.Warnings = r.Warnings + other.Warnings
	out.NetProfit = out.Revenue.Sub(out.Expenses.Total())
	return out
}

// Merge sums records under a new key.
func Merge(key string, records ...Record) Record {
	out := NewRecord(key)
	for _, r := range records {
		out = out.Add(r)
	}
	return out
}

// TripRecord computes the P&L of a single trip. Missing freight counts as
// zero; negative amounts count as zero; both add a warning. A non-zero driver
// bata is booked as a synthetic Driver Bata expense.
func TripRecord(t models.Trip, expenses []models.Expense) Record {
	r := NewRecord(t.ID)
	r.VehicleID = t.VehicleID
	r.TripCount = 1

	switch {
	case t.TotalFreight == nil:
		r.Warnings++
	case *t.TotalFreight < 0:
		r.Warnings++
	default:
		r.Revenue = decimal.NewFromFloat(*t.TotalFreight)
	}

	for _, e := range expenses {
		if e.Amount < 0 {
			r.Warnings++
			continue
		}
		c := Classify(e.Category)
		r.Expenses[c] = r.Expenses[c].Add(decimal.NewFromFloat(e.Amount))
	}

	if t.DriverBata != nil {
		if *t.DriverBata < 0 {
			r.Warnings++
		} else if *t.DriverBata > 0 {
			r.Expenses[CategoryDriverBata] = r.Expenses[CategoryDriverBata].Add(decimal.NewFromFloat(*t.DriverBata))
		}
	}

	r.NetProfit = r.Revenue.Sub(r.Expenses.Total())
	return r
}

// Aggregate folds every trip the scope includes into one record.
func Aggregate(trips []models.Trip, expensesByTrip map[string][]models.Expense, scope Scope) Record {
	out := NewRecord(scope.Key())
	if scope.Kind == ScopeVehicle {
		out.VehicleID = scope.VehicleID
	}
	for _, t := range trips {
		if !scope.Includes(t) {
			continue
		}
		out = out.Add(TripRecord(t, expensesByTrip[t.ID]))
	}
	return out
}

// FilterTrips returns the trips a scope includes, in input order.
func FilterTrips(trips []models.Trip, scope Scope) []models.Trip {
	var out []models.Trip
	for _, t := range trips {
		if scope.Includes(t) {
			out = append(out, t)
		}
	}
	return out
}

// ByVehicle aggregates one record per truck under the status and window rules
// of scope (its trip or vehicle identity is ignored). Every vehicle gets a
// record, trip-less ones included. Trips referencing a vehicle that is not in
// vehicles land in the Unknown bucket, one warning each, so nothing vanishes
// from the totals. Output is ordered by plate number, Unknown last.
func ByVehicle(trips []models.Trip, expensesByTrip map[string][]models.Expense, vehicles []models.Vehicle, scope Scope) []Record {
	include := scope.statusRule()

	buckets := make(map[string]Record, len(vehicles)+1)
	for _, v := range vehicles {
		r := NewRecord(v.ID)
		r.VehicleID = v.ID
		r.PlateNumber = v.PlateNumber
		buckets[v.ID] = r
	}

	unknown := NewRecord(UnknownVehicleID)
	unknown.VehicleID = UnknownVehicleID
	unknown.PlateNumber = UnknownPlate
	sawUnknown := false

	for _, t := range trips {
		if !include(t) {
			continue
		}
		tr := TripRecord(t, expensesByTrip[t.ID])
		if r, ok := buckets[t.VehicleID]; ok {
			buckets[t.VehicleID] = r.Add(tr)
			continue
		}
		tr.Warnings++
		unknown = unknown.Add(tr)
		sawUnknown = true
	}

	out := make([]Record, 0, len(buckets)+1)
	for _, r := range buckets {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlateNumber != out[j].PlateNumber {
			return out[i].PlateNumber < out[j].PlateNumber
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	if sawUnknown {
		out = append(out, unknown)
	}
	return out
}
