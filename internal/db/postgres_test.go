package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/models"
)

func TestExpiryColumn(t *testing.T) {
	col, err := expiryColumn(models.ObligationInsurance)
	require.NoError(t, err)
	assert.Equal(t, "insurance_expiry", col)

	col, err = expiryColumn(models.ObligationTax)
	require.NoError(t, err)
	assert.Equal(t, "tax_expiry", col)

	_, err = expiryColumn("Permit")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNullDate(t *testing.T) {
	assert.Nil(t, nullDate(nil))
	d := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-10", nullDate(&d))
}

func TestClassifyPG(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"bad connection", driver.ErrBadConn, models.ErrUpstreamUnavailable},
		{"connection exception", &pq.Error{Code: "08006"}, models.ErrUpstreamUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, models.ErrUpstreamUnavailable},
		{"deadline", context.DeadlineExceeded, models.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyPG(tt.err, "op"), tt.kind)
		})
	}

	unique := &pq.Error{Code: "23505"}
	err := classifyPG(unique, "insert vehicle")
	assert.NotErrorIs(t, err, models.ErrUpstreamUnavailable)
	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))
}

// Integration test (requires running PostgreSQL)
func TestPostgresStore_Integration(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
		return
	}
	conn, err := ConnectPostgres(url)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
		return
	}
	defer conn.Close()

	require.NoError(t, RunMigrations(conn))
	store := NewPostgresStore(conn)
	require.NoError(t, store.DeleteAll(context.Background()))
	runStoreContract(t, store, store)
}
