package compliance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/events"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// RenewalStore is what a renewal needs from storage.
type RenewalStore interface {
	FindVehicleByID(ctx context.Context, id string) (models.Vehicle, error)
	db.Writer
}

// Result is the outcome of a successful renewal.
type Result struct {
	VehicleID      string                    `json:"vehicle_id"`
	Type           models.ObligationType     `json:"type"`
	PreviousExpiry *time.Time                `json:"previous_expiry,omitempty"`
	NewExpiry      time.Time                 `json:"new_expiry"`
	Entry          models.ComplianceLogEntry `json:"log_entry"`
}

// Renewer applies renewals as one logical operation: the expiry update and
// the payment log entry are written together or not at all.
type Renewer struct {
	store     RenewalStore
	publisher events.Publisher
	now       func() time.Time
	log       *logrus.Entry

	revertTimeout time.Duration
}

// NewRenewer creates a renewer. A nil publisher disables events.
func NewRenewer(store RenewalStore, publisher events.Publisher, logger *logrus.Entry) *Renewer {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Renewer{
		store:         store,
		publisher:     publisher,
		now:           time.Now,
		log:           logger.WithField("component", "renewer"),
		revertTimeout: 10 * time.Second,
	}
}

// WithClock replaces the time source. Payment dates and expiries rolled from
// today take their calendar day from the clock's location.
func (r *Renewer) WithClock(now func() time.Time) *Renewer {
	r.now = now
	return r
}

// maxAmountPaid is the largest payment a log entry can hold (12 digits, 2 of
// them after the point).
var maxAmountPaid = decimal.RequireFromString("9999999999.99")

// paymentAmount rounds a payment to paise and checks it fits a log entry.
func paymentAmount(amount float64) (float64, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: amount paid must be a positive number", models.ErrInvalidInput)
	}
	d := decimal.NewFromFloat(amount).Round(2)
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: amount paid rounds to zero", models.ErrInvalidInput)
	}
	if d.GreaterThan(maxAmountPaid) {
		return 0, fmt.Errorf("%w: amount paid exceeds %s", models.ErrInvalidInput, maxAmountPaid.StringFixed(2))
	}
	return d.InexactFloat64(), nil
}

// Renew pays for one obligation period. The amount must be positive once
// rounded to paise; it is validated before anything is read or written.
// Failures are never retried.
func (r *Renewer) Renew(ctx context.Context, vehicleID string, t models.ObligationType, amountPaid float64) (Result, error) {
	if t != models.ObligationInsurance && t != models.ObligationTax {
		return Result{}, fmt.Errorf("%w: unknown obligation type %q", models.ErrInvalidInput, t)
	}
	amountPaid, err := paymentAmount(amountPaid)
	if err != nil {
		return Result{}, err
	}
	if vehicleID == "" {
		return Result{}, fmt.Errorf("%w: vehicle id is required", models.ErrInvalidInput)
	}

	v, err := r.store.FindVehicleByID(ctx, vehicleID)
	if err != nil {
		return Result{}, fmt.Errorf("load vehicle %s: %w", vehicleID, err)
	}

	now := r.now()
	previous := v.Expiry(t)
	next := RollForward(previous, t, now)
	renewal := models.Renewal{
		VehicleID:      v.ID,
		Type:           t,
		PreviousExpiry: previous,
		Entry: models.ComplianceLogEntry{
			ID:            uuid.NewString(),
			VehicleID:     v.ID,
			Type:          t,
			AmountPaid:    amountPaid,
			PaymentDate:   DateOf(now),
			NewExpiryDate: next,
		},
	}

	fields := logrus.Fields{"vehicle_id": v.ID, "type": t, "new_expiry": next.Format("2006-01-02")}

	var entry models.ComplianceLogEntry
	if atomic, ok := r.store.(db.AtomicRenewer); ok {
		entry, err = atomic.ApplyRenewal(ctx, renewal)
	} else {
		entry, err = r.applyCompensated(ctx, renewal)
	}
	if err != nil {
		r.log.WithFields(fields).WithError(err).Error("Renewal failed")
		return Result{}, err
	}

	r.log.WithFields(fields).WithField("amount_paid", amountPaid).Info("Obligation renewed")

	if err := r.publisher.Publish(ctx, events.NewRenewalEvent(renewal, v.PlateNumber, now)); err != nil {
		r.log.WithFields(fields).WithError(err).Warn("Failed to publish renewal event")
	}

	return Result{
		VehicleID:      v.ID,
		Type:           t,
		PreviousExpiry: previous,
		NewExpiry:      next,
		Entry:          entry,
	}, nil
}

// applyCompensated performs the two writes on a store without transactions.
// The expiry is advanced with a compare-and-set; if the log insert then
// fails the expiry is set back. Only a failed revert leaves a partial write.
func (r *Renewer) applyCompensated(ctx context.Context, rn models.Renewal) (models.ComplianceLogEntry, error) {
	next := rn.Entry.NewExpiryDate
	if err := r.store.UpdateVehicleExpiry(ctx, rn.VehicleID, rn.Type, rn.PreviousExpiry, &next); err != nil {
		return models.ComplianceLogEntry{}, fmt.Errorf("advance %s expiry: %w", rn.Type, err)
	}

	entry, insertErr := r.store.InsertComplianceLog(ctx, rn.Entry)
	if insertErr == nil {
		return entry, nil
	}

	// The caller's context may be what failed the insert.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.revertTimeout)
	defer cancel()
	if revertErr := r.store.UpdateVehicleExpiry(rctx, rn.VehicleID, rn.Type, &next, rn.PreviousExpiry); revertErr != nil {
		r.log.WithFields(logrus.Fields{
			"vehicle_id":   rn.VehicleID,
			"type":         rn.Type,
			"insert_error": insertErr.Error(),
		}).WithError(revertErr).Error("Expiry advanced without a payment log entry")
		return models.ComplianceLogEntry{}, fmt.Errorf("%w: append payment log: %v; revert %s expiry: %v",
			models.ErrPartialWrite, insertErr, rn.Type, revertErr)
	}

	return models.ComplianceLogEntry{}, fmt.Errorf("append payment log (expiry reverted): %w", insertErr)
}

// IsRetryable reports whether a renewal error left state untouched and the
// caller may safely submit the renewal again.
func IsRetryable(err error) bool {
	return errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrUpstreamUnavailable)
}
