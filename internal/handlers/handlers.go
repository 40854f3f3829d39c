// Package handlers exposes the fleet ledger over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/compliance"
	"github.com/ukydev/fleet-ledger/internal/export"
	"github.com/ukydev/fleet-ledger/internal/fleet"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// FleetService is the query and renewal surface the handlers serve.
type FleetService interface {
	Now() time.Time
	Location() *time.Location
	ListFleetSummary(ctx context.Context, window *ledger.Window) (fleet.FleetSummary, error)
	GetTruckHistory(ctx context.Context, vehicleID string) (fleet.TruckHistory, error)
	GetTruckMonth(ctx context.Context, vehicleID string, window ledger.Window) (fleet.TruckHistory, error)
	GetTripStatement(ctx context.Context, tripID string) (fleet.TripStatement, error)
	RenewObligation(ctx context.Context, vehicleID string, t models.ObligationType, amountPaid float64) (compliance.Result, error)
	ExportTruckReport(ctx context.Context, vehicleID string) (export.Table, error)
	ExportTripStatement(ctx context.Context, tripID string) (export.Table, error)
	ExportMonthlyReport(ctx context.Context, year int, month time.Month) (export.Table, error)
	ComplianceQueue(ctx context.Context, t models.ObligationType) ([]compliance.QueueItem, error)
	ComplianceHistory(ctx context.Context, vehicleID string, t models.ObligationType) (fleet.ComplianceHistory, error)
}

// Handler serves the ledger and compliance endpoints.
type Handler struct {
	svc FleetService
	log *logrus.Entry
}

// NewHandler creates a handler.
func NewHandler(svc FleetService, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{svc: svc, log: logger.WithField("component", "http")}
}

// RenewRequest is the body of a renewal.
type RenewRequest struct {
	AmountPaid float64 `json:"amount_paid"`
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   h.svc.Now().Format(time.RFC3339),
	})
}

// FleetSummary returns the fleet P&L, for all time or for one month.
// GET /api/fleet/summary?month=YYYY-MM|current
func (h *Handler) FleetSummary(w http.ResponseWriter, r *http.Request) {
	var window *ledger.Window
	if month, ok := r.URL.Query()["month"]; ok {
		wnd, err := ledger.ParseMonth(month[0], h.svc.Now(), h.svc.Location())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		window = &wnd
	}

	summary, err := h.svc.ListFleetSummary(r.Context(), window)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// TruckHistory returns a truck's completed trips and their P&L, or with
// month set every trip of that month, matching the monthly fleet summary.
// GET /api/vehicles/{id}/history?month=YYYY-MM|current
func (h *Handler) TruckHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		history fleet.TruckHistory
		err     error
	)
	if month, ok := r.URL.Query()["month"]; ok {
		wnd, perr := ledger.ParseMonth(month[0], h.svc.Now(), h.svc.Location())
		if perr != nil {
			h.writeServiceError(w, r, perr)
			return
		}
		history, err = h.svc.GetTruckMonth(r.Context(), id, wnd)
	} else {
		history, err = h.svc.GetTruckHistory(r.Context(), id)
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// TruckReport exports a truck's completed trips.
// GET /api/vehicles/{id}/report
func (h *Handler) TruckReport(w http.ResponseWriter, r *http.Request) {
	table, err := h.svc.ExportTruckReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeTable(w, r, table)
}

// TripStatement returns one trip with its expense entries.
// GET /api/trips/{id}/statement
func (h *Handler) TripStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetTripStatement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// TripStatementExport exports one trip as labelled sections.
// GET /api/trips/{id}/statement/export
func (h *Handler) TripStatementExport(w http.ResponseWriter, r *http.Request) {
	table, err := h.svc.ExportTripStatement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeTable(w, r, table)
}

// MonthlyReport exports the per-truck P&L of a month, the current one by
// default.
// GET /api/reports/monthly?month=YYYY-MM
func (h *Handler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	wnd, err := ledger.ParseMonth(r.URL.Query().Get("month"), h.svc.Now(), h.svc.Location())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	table, err := h.svc.ExportMonthlyReport(r.Context(), wnd.From.Year(), wnd.From.Month())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeTable(w, r, table)
}

func obligationParam(w http.ResponseWriter, r *http.Request) (models.ObligationType, bool) {
	raw := chi.URLParam(r, "type")
	t, ok := models.ParseObligationType(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid request", fmt.Errorf("unknown obligation type %q", raw))
	}
	return t, ok
}

// ComplianceQueue lists every vehicle for an obligation, soonest expiry first.
// GET /api/compliance/{type}
func (h *Handler) ComplianceQueue(w http.ResponseWriter, r *http.Request) {
	t, ok := obligationParam(w, r)
	if !ok {
		return
	}
	queue, err := h.svc.ComplianceQueue(r.Context(), t)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

// ComplianceHistory returns a vehicle's standing and payment log for an
// obligation.
// GET /api/vehicles/{id}/compliance/{type}
func (h *Handler) ComplianceHistory(w http.ResponseWriter, r *http.Request) {
	t, ok := obligationParam(w, r)
	if !ok {
		return
	}
	history, err := h.svc.ComplianceHistory(r.Context(), chi.URLParam(r, "id"), t)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// Renew pays for the next period of an obligation.
// POST /api/vehicles/{id}/compliance/{type}/renew
func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	t, ok := obligationParam(w, r)
	if !ok {
		return
	}

	var req RenewRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	vehicleID := chi.URLParam(r, "id")
	res, err := h.svc.RenewObligation(r.Context(), vehicleID, t, req.AmountPaid)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.requestLog(r).WithFields(logrus.Fields{
		"vehicle_id": vehicleID,
		"type":       t,
		"amount":     req.AmountPaid,
		"new_expiry": res.NewExpiry.Format("2006-01-02"),
	}).Info("Obligation renewed")
	writeJSON(w, http.StatusCreated, res)
}

func userFrom(r *http.Request) (*models.Claims, bool) {
	return middleware.GetUserFromContext(r.Context())
}
