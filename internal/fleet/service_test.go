package fleet

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/compliance"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/models"
)

var testNow = time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)

func money(v float64) *float64 { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dayPtr(y int, m time.Month, d int) *time.Time {
	t := day(y, m, d)
	return &t
}

// seedFleet loads two trucks and five trips:
//
//	t1 v1 completed, 10000 freight, Diesel 3000 + Food 500 + bata 800  -> 5700
//	t2 v1 active,     4000 freight, Toll Fee 200                       -> 3800
//	t3 v2 completed,  6000 freight (February), RTO 1000                -> 5000
//	t4 ghost vehicle, 1000 freight                                     -> 1000
//	t5 v1 completed, no freight (January), Fuel 100                    -> -100
func seedFleet(t *testing.T) *db.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := db.NewMemoryStore()

	vehicles := []models.Vehicle{
		{ID: "v1", PlateNumber: "KA01AB1234", InsuranceExpiry: dayPtr(2024, 1, 10)},
		{ID: "v2", PlateNumber: "MH12CD5678", InsuranceExpiry: dayPtr(2024, 6, 5), TaxExpiry: dayPtr(2024, 3, 25)},
	}
	for _, v := range vehicles {
		_, err := s.InsertVehicle(ctx, v)
		require.NoError(t, err)
	}

	trips := []models.Trip{
		{ID: "t1", VehicleID: "v1", CreatedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), TotalFreight: money(10000), DriverBata: money(800), Status: models.TripCompleted},
		{ID: "t2", VehicleID: "v1", CreatedAt: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), TotalFreight: money(4000), Status: models.TripActive},
		{ID: "t3", VehicleID: "v2", CreatedAt: time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC), TotalFreight: money(6000), Status: models.TripCompleted},
		{ID: "t4", VehicleID: "ghost", CreatedAt: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), TotalFreight: money(1000), Status: models.TripCompleted},
		{ID: "t5", VehicleID: "v1", CreatedAt: time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC), Status: models.TripCompleted},
	}
	for _, trip := range trips {
		_, err := s.InsertTrip(ctx, trip)
		require.NoError(t, err)
	}

	expenses := []models.Expense{
		{TripID: "t1", Amount: 3000, Category: "Diesel"},
		{TripID: "t1", Amount: 500, Category: "Food"},
		{TripID: "t2", Amount: 200, Category: "Toll Fee"},
		{TripID: "t3", Amount: 1000, Category: "RTO"},
		{TripID: "t5", Amount: 100, Category: "fuel"},
	}
	for _, e := range expenses {
		_, err := s.InsertExpense(ctx, e)
		require.NoError(t, err)
	}
	return s
}

func newTestService(store db.Store) (*Service, *test.Hook) {
	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)
	clock := func() time.Time { return testNow }
	renewer := compliance.NewRenewer(store, nil, entry).WithClock(clock)
	return NewService(store, renewer, time.UTC, entry).WithClock(clock), hook
}

// countingStore counts reads so tests can tell whether the store was hit.
type countingStore struct {
	db.Store
	reads atomic.Int64
}

func (c *countingStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	c.reads.Add(1)
	return c.Store.ListVehicles(ctx)
}

func (c *countingStore) FindVehicleByID(ctx context.Context, id string) (models.Vehicle, error) {
	c.reads.Add(1)
	return c.Store.FindVehicleByID(ctx, id)
}

func (c *countingStore) ListTrips(ctx context.Context, f db.TripFilter) ([]models.Trip, error) {
	c.reads.Add(1)
	return c.Store.ListTrips(ctx, f)
}

func (c *countingStore) FindTripByID(ctx context.Context, id string) (models.Trip, error) {
	c.reads.Add(1)
	return c.Store.FindTripByID(ctx, id)
}

func TestListFleetSummary_AllTime(t *testing.T) {
	svc, hook := newTestService(seedFleet(t))

	s, err := svc.ListFleetSummary(context.Background(), nil)
	require.NoError(t, err)

	assert.Nil(t, s.Window)
	assert.Equal(t, "fleet", s.Fleet.Key)
	assert.Equal(t, "21000", s.Fleet.Revenue.String())
	assert.Equal(t, "5600", s.Fleet.TotalExpenses().String())
	assert.Equal(t, "15400", s.Fleet.NetProfit.String())
	assert.Equal(t, 5, s.Fleet.TripCount)
	// t4's vehicle is unknown, t5 has no freight
	assert.Equal(t, 2, s.Warnings)

	require.Len(t, s.Trucks, 3)
	assert.Equal(t, "KA01AB1234", s.Trucks[0].PlateNumber)
	assert.Equal(t, "9400", s.Trucks[0].NetProfit.String())
	assert.Equal(t, 3, s.Trucks[0].TripCount)
	assert.Equal(t, "MH12CD5678", s.Trucks[1].PlateNumber)
	assert.Equal(t, ledger.UnknownPlate, s.Trucks[2].PlateNumber)
	assert.Equal(t, "1000", s.Trucks[2].Revenue.String())

	require.Len(t, s.Slices, len(ledger.Categories())+1)
	assert.Equal(t, "15400", s.Slices[0].Amount.String())
	assert.Len(t, s.Trend, 5)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestListFleetSummary_Month(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))
	w := ledger.CurrentMonth(testNow, time.UTC)

	s, err := svc.ListFleetSummary(context.Background(), &w)
	require.NoError(t, err)

	assert.Equal(t, "fleet:2024-03", s.Fleet.Key)
	assert.Equal(t, "15000", s.Fleet.Revenue.String())
	assert.Equal(t, "4500", s.Fleet.TotalExpenses().String())
	assert.Equal(t, "10500", s.Fleet.NetProfit.String())
	assert.Equal(t, 3, s.Fleet.TripCount)

	require.Len(t, s.Trucks, 3)
	assert.Equal(t, 0, s.Trucks[1].TripCount, "MH12 only ran in February")
	assert.True(t, s.Trucks[1].NetProfit.IsZero())

	dates := make([]string, len(s.Trend))
	for i, p := range s.Trend {
		dates[i] = p.Date
	}
	assert.Equal(t, []string{"2024-03-02", "2024-03-05", "2024-03-15"}, dates)
}

func TestListFleetSummary_TrucksReconcileWithFleet(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))

	s, err := svc.ListFleetSummary(context.Background(), nil)
	require.NoError(t, err)

	sum := ledger.Merge("sum", s.Trucks...)
	assert.True(t, sum.NetProfit.Equal(s.Fleet.NetProfit))
	for _, c := range ledger.Categories() {
		assert.True(t, sum.Expenses[c].Equal(s.Fleet.Expenses[c]), c)
	}
}

func TestListFleetSummary_StoreUnavailable(t *testing.T) {
	store := seedFleet(t)
	svc, _ := newTestService(store)
	store.FailNext("ListTrips", models.ErrUpstreamUnavailable)

	_, err := svc.ListFleetSummary(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestGetTruckHistory(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))

	h, err := svc.GetTruckHistory(context.Background(), "v1")
	require.NoError(t, err)

	assert.Equal(t, "KA01AB1234", h.Vehicle.PlateNumber)
	assert.Equal(t, "KA01AB1234", h.Summary.PlateNumber)
	// completed trips only: t1 and t5
	assert.Equal(t, 2, h.Summary.TripCount)
	assert.Equal(t, "10000", h.Summary.Revenue.String())
	assert.Equal(t, "5600", h.Summary.NetProfit.String())

	require.Len(t, h.Trips, 2)
	assert.Equal(t, "t1", h.Trips[0].Trip.ID)
	assert.Equal(t, "5700", h.Trips[0].Record.NetProfit.String())
	assert.Equal(t, "t5", h.Trips[1].Trip.ID)
	assert.Equal(t, 1, h.Trips[1].Record.Warnings)

	assert.Equal(t, compliance.StatusOverdue, h.Insurance.Status)
	assert.Equal(t, compliance.StatusNotSet, h.Tax.Status)
	assert.Nil(t, h.Tax.DaysLeft)
}

func TestGetTruckMonth(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))
	ctx := context.Background()

	tests := []struct {
		month int
		trips []string
		net   string
	}{
		{3, []string{"t2", "t1"}, "9500"},
		{2, []string{}, "0"},
		{1, []string{"t5"}, "-100"},
	}
	for _, tt := range tests {
		w := ledger.CalendarMonth(2024, time.Month(tt.month), time.UTC)
		t.Run(w.Label(), func(t *testing.T) {
			h, err := svc.GetTruckMonth(ctx, "v1", w)
			require.NoError(t, err)

			ids := []string{}
			for _, line := range h.Trips {
				ids = append(ids, line.Trip.ID)
			}
			assert.Equal(t, tt.trips, ids)
			assert.Equal(t, tt.net, h.Summary.NetProfit.String())
			assert.Equal(t, "v1", h.Summary.VehicleID)

			summary, err := svc.ListFleetSummary(ctx, &w)
			require.NoError(t, err)
			for _, r := range summary.Trucks {
				if r.VehicleID == "v1" {
					assert.True(t, r.NetProfit.Equal(h.Summary.NetProfit))
					assert.Equal(t, r.TripCount, h.Summary.TripCount)
				}
			}
		})
	}

	_, err := svc.GetTruckMonth(ctx, "nope", ledger.CalendarMonth(2024, time.March, time.UTC))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetTruckHistory_NotFound(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))

	_, err := svc.GetTruckHistory(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetTripStatement(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		trip  string
		plate string
		net   string
		count int
	}{
		{"completed trip", "t1", "KA01AB1234", "5700", 2},
		{"active trip", "t2", "KA01AB1234", "3800", 1},
		{"unknown vehicle", "t4", ledger.UnknownPlate, "1000", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := svc.GetTripStatement(ctx, tt.trip)
			require.NoError(t, err)
			assert.Equal(t, tt.plate, st.Vehicle.PlateNumber)
			assert.Equal(t, tt.plate, st.Record.PlateNumber)
			assert.Equal(t, tt.net, st.Record.NetProfit.String())
			assert.Len(t, st.Expenses, tt.count)
		})
	}

	_, err := svc.GetTripStatement(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExportTruckReport(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))

	table, err := svc.ExportTruckReport(context.Background(), "v1")
	require.NoError(t, err)

	require.Len(t, table.Rows, 3)
	net := table.ColumnIndex("NET PROFIT")
	assert.Equal(t, "t5", table.Rows[0][1].Text)
	assert.Equal(t, "t1", table.Rows[1][1].Text)
	assert.Equal(t, "TOTAL", table.Rows[2][0].Text)
	assert.Equal(t, "5600", table.Rows[2][net].Number.String())
}

func TestExportTripStatement(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))

	table, err := svc.ExportTripStatement(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, "Trip t1", table.Title)
	last := table.Rows[len(table.Rows)-1]
	assert.Equal(t, "NET PROFIT", last[0].Text)
	assert.Equal(t, "5700", last[1].Number.String())
}

func TestExports_DateInReferenceZone(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	_, err := store.InsertVehicle(ctx, models.Vehicle{ID: "v1", PlateNumber: "KA01AB1234"})
	require.NoError(t, err)
	// 00:30 on 1 March in Kolkata
	_, err = store.InsertTrip(ctx, models.Trip{ID: "t1", VehicleID: "v1", CreatedAt: time.Date(2024, 2, 29, 19, 0, 0, 0, time.UTC),
		TotalFreight: money(500), Status: models.TripCompleted})
	require.NoError(t, err)

	ist := time.FixedZone("IST", 5*60*60+30*60)
	logger, _ := test.NewNullLogger()
	svc := NewService(store, nil, ist, logrus.NewEntry(logger)).WithClock(func() time.Time { return testNow })

	march := ledger.CalendarMonth(2024, time.March, ist)
	summary, err := svc.ListFleetSummary(ctx, &march)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Fleet.TripCount)
	require.Len(t, summary.Trend, 1)
	assert.Equal(t, "2024-03-01", summary.Trend[0].Date)

	report, err := svc.ExportTruckReport(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", report.Rows[0][report.ColumnIndex("Date")].Text)

	statement, err := svc.ExportTripStatement(ctx, "t1")
	require.NoError(t, err)
	dates := []string{}
	for _, row := range statement.Rows {
		if row[0].Text == "Date" {
			dates = append(dates, row[1].Text)
		}
	}
	assert.Equal(t, []string{"2024-03-01"}, dates)
}

func TestExportMonthlyReport(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))
	ctx := context.Background()

	march, err := svc.ExportMonthlyReport(ctx, 2024, time.March)
	require.NoError(t, err)
	require.Len(t, march.Rows, 4)
	assert.Equal(t, "P&L 2024-03", march.Title)
	assert.Equal(t, "TOTAL", march.Rows[3][0].Text)
	assert.Equal(t, "10500", march.Rows[3][len(march.Columns)-1].Number.String())

	feb, err := svc.ExportMonthlyReport(ctx, 2024, time.February)
	require.NoError(t, err)
	require.Len(t, feb.Rows, 3, "no unknown bucket in February")
	assert.Equal(t, "MH12CD5678", feb.Rows[1][0].Text)
	assert.Equal(t, "5000", feb.Rows[1][len(feb.Columns)-1].Number.String())

	_, err = svc.ExportMonthlyReport(ctx, 2024, time.Month(13))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestComplianceQueue(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))
	ctx := context.Background()

	insurance, err := svc.ComplianceQueue(ctx, models.ObligationInsurance)
	require.NoError(t, err)
	require.Len(t, insurance, 2)
	assert.Equal(t, "v1", insurance[0].Vehicle.ID)
	assert.Equal(t, compliance.StateLapsed, insurance[0].State)
	assert.Equal(t, compliance.StatusNormal, insurance[1].Countdown.Status)

	tax, err := svc.ComplianceQueue(ctx, models.ObligationTax)
	require.NoError(t, err)
	require.Len(t, tax, 2)
	assert.Equal(t, "v2", tax[0].Vehicle.ID)
	assert.Equal(t, compliance.StatusUrgent, tax[0].Countdown.Status)
	assert.Equal(t, "Not Set", tax[1].Countdown.Label)
}

func TestRenewObligation_AppendsHistory(t *testing.T) {
	store := seedFleet(t)
	svc, _ := newTestService(store)
	ctx := context.Background()

	before, err := svc.ComplianceHistory(ctx, "v1", models.ObligationInsurance)
	require.NoError(t, err)
	assert.Empty(t, before.Payments)
	assert.Equal(t, compliance.StateLapsed, before.State)

	res, err := svc.RenewObligation(ctx, "v1", models.ObligationInsurance, 5000)
	require.NoError(t, err)
	assert.True(t, res.NewExpiry.Equal(day(2025, 1, 10)))

	after, err := svc.ComplianceHistory(ctx, "v1", models.ObligationInsurance)
	require.NoError(t, err)
	require.Len(t, after.Payments, 1)
	assert.Equal(t, 5000.0, after.Payments[0].AmountPaid)
	assert.True(t, after.Expiry.Equal(day(2025, 1, 10)))
	assert.Equal(t, compliance.StateCurrent, after.State)
	assert.Equal(t, compliance.StatusNormal, after.Countdown.Status)

	tax, err := svc.ComplianceHistory(ctx, "v1", models.ObligationTax)
	require.NoError(t, err)
	assert.Empty(t, tax.Payments, "payments are per obligation")
}

func TestRenewObligation_InvalidAmountWritesNothing(t *testing.T) {
	store := seedFleet(t)
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, err := svc.RenewObligation(ctx, "v1", models.ObligationTax, 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	v, err := store.FindVehicleByID(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, v.TaxExpiry)
	logs, err := store.ListComplianceLogs(ctx, "v1", models.ObligationTax)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestComplianceHistory_NotFound(t *testing.T) {
	svc, _ := newTestService(seedFleet(t))

	_, err := svc.ComplianceHistory(context.Background(), "nope", models.ObligationTax)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
