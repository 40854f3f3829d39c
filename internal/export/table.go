// Package export flattens ledger data into fixed-schema tables.
//
// The column sets defined here are a compatibility contract with whoever
// consumes the exports: every category column is always present, in report
// order, and row totals are computed by the ledger so they reconcile with
// on-screen figures.
package export

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Cell is either text or a monetary/count value.
type Cell struct {
	Text     string
	Number   decimal.Decimal
	IsNumber bool
}

func Text(s string) Cell            { return Cell{Text: s} }
func Number(d decimal.Decimal) Cell { return Cell{Number: d, IsNumber: true} }
func Count(n int) Cell              { return Number(decimal.NewFromInt(int64(n))) }

// String renders numbers with two decimals.
func (c Cell) String() string {
	if c.IsNumber {
		return c.Number.StringFixed(2)
	}
	return c.Text
}

// MarshalJSON emits numbers as JSON numbers and text as strings.
func (c Cell) MarshalJSON() ([]byte, error) {
	if c.IsNumber {
		return []byte(c.Number.String()), nil
	}
	return json.Marshal(c.Text)
}

// Row is one line of a table.
type Row []Cell

// Table is an ordered, in-memory tabular export.
type Table struct {
	Title   string   `json:"title"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// ColumnIndex returns the position of a column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column names shared by the per-trip and per-truck exports.
const (
	ColDate          = "Date"
	ColTripID        = "Trip ID"
	ColTruck         = "Truck"
	ColFrom          = "From"
	ColTo            = "To"
	ColDriver        = "Driver"
	ColStatus        = "Status"
	ColFreight       = "Freight"
	ColTrips         = "Trips"
	ColRevenue       = "Revenue"
	ColTotalExpenses = "Total Expenses"
	ColNetProfit     = "NET PROFIT"

	totalLabel = "TOTAL"
	dateLayout = "2006-01-02"
)

func categoryColumns() []string {
	cats := ledger.Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

// TripColumns is the fixed column set of a trip-level export.
func TripColumns() []string {
	cols := []string{ColDate, ColTripID, ColTruck, ColFrom, ColTo, ColDriver, ColStatus, ColFreight}
	cols = append(cols, categoryColumns()...)
	return append(cols, ColTotalExpenses, ColNetProfit)
}

// MonthlyColumns is the fixed column set of the per-truck monthly report.
func MonthlyColumns() []string {
	cols := []string{ColTruck, ColTrips, ColRevenue}
	cols = append(cols, categoryColumns()...)
	return append(cols, ColTotalExpenses, ColNetProfit)
}

// dateIn renders t as a calendar day in loc, UTC when loc is nil.
func dateIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateLayout)
}

func moneyCells(r ledger.Record) Row {
	row := make(Row, 0, len(ledger.Categories())+2)
	for _, c := range ledger.Categories() {
		row = append(row, Number(r.Expenses[c]))
	}
	return append(row, Number(r.TotalExpenses()), Number(r.NetProfit))
}

// TripTable builds one row per trip, oldest first, followed by a TOTAL row.
// plates resolves vehicle ids to plate numbers; unresolved ones show as Unknown.
// Dates are days in loc, the zone month windows are cut in.
func TripTable(title string, trips []models.Trip, expensesByTrip map[string][]models.Expense, plates map[string]string, loc *time.Location) Table {
	sorted := make([]models.Trip, len(trips))
	copy(sorted, trips)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	t := Table{Title: title, Columns: TripColumns()}
	records := make([]ledger.Record, 0, len(sorted))
	for _, trip := range sorted {
		r := ledger.TripRecord(trip, expensesByTrip[trip.ID])
		records = append(records, r)

		plate, ok := plates[trip.VehicleID]
		if !ok {
			plate = ledger.UnknownPlate
		}
		row := Row{
			Text(dateIn(trip.CreatedAt, loc)),
			Text(trip.ID),
			Text(plate),
			Text(trip.FromLocation),
			Text(trip.ToLocation),
			Text(trip.DriverName),
			Text(string(trip.Status)),
			Number(r.Revenue),
		}
		t.Rows = append(t.Rows, append(row, moneyCells(r)...))
	}

	total := ledger.Merge(totalLabel, records...)
	row := Row{Text(totalLabel), Count(total.TripCount), Text(""), Text(""), Text(""), Text(""), Text(""), Number(total.Revenue)}
	t.Rows = append(t.Rows, append(row, moneyCells(total)...))
	return t
}

// TruckReport exports the given trips of one vehicle.
func TruckReport(v models.Vehicle, trips []models.Trip, expensesByTrip map[string][]models.Expense, loc *time.Location) Table {
	return TripTable("Truck "+v.PlateNumber, trips, expensesByTrip, map[string]string{v.ID: v.PlateNumber}, loc)
}

// MonthlyReport exports one row per truck record for a month, plus TOTAL.
func MonthlyReport(w ledger.Window, records []ledger.Record) Table {
	t := Table{Title: "P&L " + w.Label(), Columns: MonthlyColumns()}
	for _, r := range records {
		row := Row{Text(r.PlateNumber), Count(r.TripCount), Number(r.Revenue)}
		t.Rows = append(t.Rows, append(row, moneyCells(r)...))
	}
	total := ledger.Merge(totalLabel, records...)
	row := Row{Text(totalLabel), Count(total.TripCount), Number(total.Revenue)}
	t.Rows = append(t.Rows, append(row, moneyCells(total)...))
	return t
}

// TripStatement lists a single trip as labelled sections: details, revenue,
// expenses by category (all present), the individual entries and the result.
func TripStatement(v models.Vehicle, trip models.Trip, expenses []models.Expense, loc *time.Location) Table {
	r := ledger.TripRecord(trip, expenses)
	plate := v.PlateNumber
	if plate == "" {
		plate = ledger.UnknownPlate
	}

	t := Table{Title: "Trip " + trip.ID, Columns: []string{"Field", "Value"}}
	add := func(field string, value Cell) { t.Rows = append(t.Rows, Row{Text(field), value}) }
	section := func(name string) {
		if len(t.Rows) > 0 {
			add("", Text(""))
		}
		add(name, Text(""))
	}

	section("TRIP DETAILS")
	add(ColTripID, Text(trip.ID))
	add(ColDate, Text(dateIn(trip.CreatedAt, loc)))
	add(ColTruck, Text(plate))
	add(ColFrom, Text(trip.FromLocation))
	add(ColTo, Text(trip.ToLocation))
	add(ColDriver, Text(trip.DriverName))
	add(ColStatus, Text(string(trip.Status)))

	section("REVENUE")
	add(ColFreight, Number(r.Revenue))

	section("EXPENSES")
	for _, c := range ledger.Categories() {
		add(string(c), Number(r.Expenses[c]))
	}
	add(ColTotalExpenses, Number(r.TotalExpenses()))

	section("EXPENSE ENTRIES")
	for _, e := range expenses {
		label := e.Category
		if label == "" {
			label = string(ledger.CategoryOther)
		}
		add(label, Number(decimal.NewFromFloat(e.Amount)))
	}
	if trip.DriverBata != nil && *trip.DriverBata > 0 {
		add(string(ledger.CategoryDriverBata), Number(decimal.NewFromFloat(*trip.DriverBata)))
	}

	section("RESULT")
	add(ColNetProfit, Number(r.NetProfit))
	return t
}
