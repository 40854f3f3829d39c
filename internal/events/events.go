// Package events publishes compliance notifications to a message broker.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Kind names an event type; it doubles as the routing key suffix.
type Kind string

const (
	KindRenewed Kind = "compliance.renewed"
	KindAlert   Kind = "compliance.alert"
)

// Event is the JSON payload sent to subscribers.
type Event struct {
	ID          string                `json:"id"`
	Kind        Kind                  `json:"kind"`
	OccurredAt  time.Time             `json:"occurred_at"`
	VehicleID   string                `json:"vehicle_id"`
	PlateNumber string                `json:"plate_number,omitempty"`
	Type        models.ObligationType `json:"type"`

	// renewals
	AmountPaid     float64    `json:"amount_paid,omitempty"`
	PreviousExpiry *time.Time `json:"previous_expiry,omitempty"`
	NewExpiry      *time.Time `json:"new_expiry,omitempty"`

	// alerts
	Expiry   *time.Time `json:"expiry,omitempty"`
	DaysLeft *int       `json:"days_left,omitempty"`
	Status   string     `json:"status,omitempty"`
}

// NewRenewalEvent describes a committed renewal.
func NewRenewalEvent(r models.Renewal, plate string, at time.Time) Event {
	next := r.Entry.NewExpiryDate
	return Event{
		ID:             uuid.NewString(),
		Kind:           KindRenewed,
		OccurredAt:     at,
		VehicleID:      r.VehicleID,
		PlateNumber:    plate,
		Type:           r.Type,
		AmountPaid:     r.Entry.AmountPaid,
		PreviousExpiry: r.PreviousExpiry,
		NewExpiry:      &next,
	}
}

// NewAlertEvent describes an obligation that needs attention.
func NewAlertEvent(v models.Vehicle, t models.ObligationType, daysLeft *int, status string, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Kind:        KindAlert,
		OccurredAt:  at,
		VehicleID:   v.ID,
		PlateNumber: v.PlateNumber,
		Type:        t,
		Expiry:      v.Expiry(t),
		DaysLeft:    daysLeft,
		Status:      status,
	}
}

// Marshal encodes the event as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
