package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/auth"
	"github.com/ukydev/fleet-ledger/internal/compliance"
	"github.com/ukydev/fleet-ledger/internal/config"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/events"
	"github.com/ukydev/fleet-ledger/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		CORSOrigins:       []string{"*"},
		DBType:            "memory",
		JWTSecret:         "secret",
		LedgerTimezone:    "Asia/Kolkata",
		EventBackend:      "none",
		AlertInterval:     time.Hour,
		RateLimitRenewals: 10,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	defer log.SetFormatter(log.StandardLogger().Formatter)

	cfg := testConfig()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	setupLogging(cfg)
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	cfg.LogLevel = "warn"
	cfg.LogFormat = "text"
	setupLogging(cfg)
	assert.Equal(t, log.WarnLevel, log.GetLevel())
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
}

func TestOpenStore_MemorySeedsDemoFleet(t *testing.T) {
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, testConfig())
	require.NoError(t, err)
	defer closeStore()

	vehicles, err := store.ListVehicles(ctx)
	require.NoError(t, err)
	assert.Len(t, vehicles, 10)
}

func TestOpenPublisher_None(t *testing.T) {
	p, err := openPublisher(testConfig())
	require.NoError(t, err)
	assert.Equal(t, events.Noop{}, p)
}

func TestNewAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	_, err := newAuthMiddleware(cfg)
	assert.NoError(t, err)

	cfg.JWTSecret = ""
	_, err = newAuthMiddleware(cfg)
	assert.ErrorIs(t, err, auth.ErrMissingKey)

	cfg.AuthDisabled = true
	_, err = newAuthMiddleware(cfg)
	assert.NoError(t, err)
}

func TestNewApp_Routes(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	store, closeStore, err := openStore(ctx, cfg)
	require.NoError(t, err)
	defer closeStore()

	a, err := newApp(cfg, store, events.Noop{})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.server.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/fleet/summary", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	svc, err := auth.NewService(cfg.JWTSecret)
	require.NoError(t, err)
	token, err := svc.GenerateToken(models.Claims{UserID: "u1", Username: "asha", Role: models.RoleViewer}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/fleet/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	a.server.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewApp_RenewalUsesLedgerDay(t *testing.T) {
	// 01:00 on 1 March in Kolkata is still 29 February in UTC.
	defer func(orig func() time.Time) { clock = orig }(clock)
	clock = func() time.Time { return time.Date(2024, 2, 29, 19, 30, 0, 0, time.UTC) }

	ctx := context.Background()
	store := db.NewMemoryStore()
	_, err := store.InsertVehicle(ctx, models.Vehicle{ID: "v1", PlateNumber: "KA01AB1234"})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.AuthDisabled = true
	a, err := newApp(cfg, store, events.Noop{})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/vehicles/v1/compliance/tax/renew", strings.NewReader(`{"amount_paid": 1500}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res compliance.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Nil(t, res.PreviousExpiry)
	assert.Equal(t, "2024-03-01", res.Entry.PaymentDate.Format("2006-01-02"))
	assert.Equal(t, "2024-06-01", res.NewExpiry.Format("2006-01-02"))

	v, err := store.FindVehicleByID(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, v.TaxExpiry)
	assert.Equal(t, "2024-06-01", v.TaxExpiry.Format("2006-01-02"))
}

func TestNewApp_InvalidTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.LedgerTimezone = "Mars/Olympus"
	_, err := newApp(cfg, nil, events.Noop{})
	assert.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	store, closeStore, err := openStore(ctx, cfg)
	require.NoError(t, err)
	defer closeStore()

	a, err := newApp(cfg, store, events.Noop{})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.run(runCtx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
