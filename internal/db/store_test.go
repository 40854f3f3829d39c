package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/models"
)

func float(v float64) *float64 { return &v }

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// runStoreContract checks the behaviour every Store backend must share.
func runStoreContract(t *testing.T, store Store, seeder Seeder) {
	ctx := context.Background()
	insurance := utcDate(2024, 1, 10)

	v1, err := seeder.InsertVehicle(ctx, models.Vehicle{PlateNumber: "KA01AB1234", InsuranceExpiry: &insurance})
	require.NoError(t, err)
	require.NotEmpty(t, v1.ID)
	v2, err := seeder.InsertVehicle(ctx, models.Vehicle{PlateNumber: "MH12CD5678"})
	require.NoError(t, err)

	march := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	t1, err := seeder.InsertTrip(ctx, models.Trip{VehicleID: v1.ID, FromLocation: "Pune", ToLocation: "Mumbai",
		CreatedAt: march, TotalFreight: float(10000), DriverBata: float(800), Status: models.TripCompleted})
	require.NoError(t, err)
	t2, err := seeder.InsertTrip(ctx, models.Trip{VehicleID: v2.ID, CreatedAt: march.AddDate(0, -1, 0)})
	require.NoError(t, err)
	assert.Equal(t, models.TripActive, t2.Status)

	_, err = seeder.InsertExpense(ctx, models.Expense{TripID: t1.ID, Amount: 3000, Category: "Fuel", CreatedAt: march})
	require.NoError(t, err)
	_, err = seeder.InsertExpense(ctx, models.Expense{TripID: t1.ID, Amount: 500, Category: "Food", CreatedAt: march.Add(time.Hour)})
	require.NoError(t, err)

	t.Run("vehicles", func(t *testing.T) {
		vehicles, err := store.ListVehicles(ctx)
		require.NoError(t, err)
		require.Len(t, vehicles, 2)
		assert.Equal(t, "KA01AB1234", vehicles[0].PlateNumber)

		got, err := store.FindVehicleByID(ctx, v1.ID)
		require.NoError(t, err)
		require.NotNil(t, got.InsuranceExpiry)
		assert.True(t, got.InsuranceExpiry.Equal(insurance))
		assert.Nil(t, got.TaxExpiry)

		_, err = store.FindVehicleByID(ctx, "does-not-exist")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("trips", func(t *testing.T) {
		all, err := store.ListTrips(ctx, TripFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		mine, err := store.ListTrips(ctx, TripFilter{VehicleID: v1.ID})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, t1.ID, mine[0].ID)
		require.NotNil(t, mine[0].TotalFreight)
		assert.Equal(t, 10000.0, *mine[0].TotalFreight)

		from := utcDate(2024, 3, 1)
		inMarch, err := store.ListTrips(ctx, TripFilter{From: &from})
		require.NoError(t, err)
		assert.Len(t, inMarch, 1)

		got, err := store.FindTripByID(ctx, t2.ID)
		require.NoError(t, err)
		assert.Nil(t, got.TotalFreight)

		_, err = store.FindTripByID(ctx, "does-not-exist")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("expenses", func(t *testing.T) {
		some, err := store.ListExpenses(ctx, []string{t1.ID})
		require.NoError(t, err)
		assert.Len(t, some, 2)

		none, err := store.ListExpenses(ctx, []string{})
		require.NoError(t, err)
		assert.Empty(t, none)

		all, err := store.ListExpenses(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("expiry compare and set", func(t *testing.T) {
		next := utcDate(2025, 1, 10)

		err := store.UpdateVehicleExpiry(ctx, v1.ID, models.ObligationInsurance, nil, &next)
		assert.ErrorIs(t, err, models.ErrConflict)

		err = store.UpdateVehicleExpiry(ctx, v1.ID, models.ObligationInsurance, &insurance, &next)
		require.NoError(t, err)
		got, err := store.FindVehicleByID(ctx, v1.ID)
		require.NoError(t, err)
		assert.True(t, got.InsuranceExpiry.Equal(next))

		// revert to the original value
		require.NoError(t, store.UpdateVehicleExpiry(ctx, v1.ID, models.ObligationInsurance, &next, &insurance))

		tax := utcDate(2024, 6, 1)
		require.NoError(t, store.UpdateVehicleExpiry(ctx, v2.ID, models.ObligationTax, nil, &tax))
		require.NoError(t, store.UpdateVehicleExpiry(ctx, v2.ID, models.ObligationTax, &tax, nil))
		got, err = store.FindVehicleByID(ctx, v2.ID)
		require.NoError(t, err)
		assert.Nil(t, got.TaxExpiry)

		err = store.UpdateVehicleExpiry(ctx, "does-not-exist", models.ObligationTax, nil, &tax)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("compliance log", func(t *testing.T) {
		entry := models.ComplianceLogEntry{
			ID:            "5b0c7f0e-6a55-4a8e-9d4a-1f1d3c3a0001",
			VehicleID:     v1.ID,
			Type:          models.ObligationInsurance,
			AmountPaid:    5000,
			PaymentDate:   utcDate(2023, 12, 1),
			NewExpiryDate: utcDate(2025, 1, 10),
		}
		saved, err := store.InsertComplianceLog(ctx, entry)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, saved.ID)

		logs, err := store.ListComplianceLogs(ctx, v1.ID, models.ObligationInsurance)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, 5000.0, logs[0].AmountPaid)
		assert.True(t, logs[0].NewExpiryDate.Equal(entry.NewExpiryDate))

		taxLogs, err := store.ListComplianceLogs(ctx, v1.ID, models.ObligationTax)
		require.NoError(t, err)
		assert.Empty(t, taxLogs)
	})

	if atomic, ok := store.(AtomicRenewer); ok {
		t.Run("atomic renewal", func(t *testing.T) {
			current := utcDate(2024, 1, 10)
			next := utcDate(2025, 1, 10)
			entry, err := atomic.ApplyRenewal(ctx, models.Renewal{
				VehicleID:      v1.ID,
				Type:           models.ObligationInsurance,
				PreviousExpiry: &current,
				Entry: models.ComplianceLogEntry{
					ID: "5b0c7f0e-6a55-4a8e-9d4a-1f1d3c3a0002", VehicleID: v1.ID, Type: models.ObligationInsurance,
					AmountPaid: 6000, PaymentDate: utcDate(2023, 12, 2), NewExpiryDate: next,
				},
			})
			require.NoError(t, err)
			assert.Equal(t, 6000.0, entry.AmountPaid)

			// a stale previous expiry must change nothing
			_, err = atomic.ApplyRenewal(ctx, models.Renewal{
				VehicleID:      v1.ID,
				Type:           models.ObligationInsurance,
				PreviousExpiry: &current,
				Entry: models.ComplianceLogEntry{
					ID: "5b0c7f0e-6a55-4a8e-9d4a-1f1d3c3a0003", VehicleID: v1.ID, Type: models.ObligationInsurance,
					AmountPaid: 6000, PaymentDate: utcDate(2023, 12, 2), NewExpiryDate: next,
				},
			})
			assert.ErrorIs(t, err, models.ErrConflict)

			logs, err := store.ListComplianceLogs(ctx, v1.ID, models.ObligationInsurance)
			require.NoError(t, err)
			assert.Len(t, logs, 2)
		})
	}

	if r, ok := store.(Resetter); ok {
		t.Run("delete all", func(t *testing.T) {
			require.NoError(t, r.DeleteAll(ctx))

			vehicles, err := store.ListVehicles(ctx)
			require.NoError(t, err)
			assert.Empty(t, vehicles)
			trips, err := store.ListTrips(ctx, TripFilter{})
			require.NoError(t, err)
			assert.Empty(t, trips)
			expenses, err := store.ListExpenses(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, expenses)
			logs, err := store.ListComplianceLogs(ctx, v1.ID, models.ObligationInsurance)
			require.NoError(t, err)
			assert.Empty(t, logs)
		})
	}
}
