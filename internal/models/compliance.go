package models

import (
	"strings"
	"time"
)

// ObligationType is a recurring compliance requirement tracked per vehicle.
type ObligationType string

const (
	ObligationInsurance ObligationType = "Insurance"
	ObligationTax       ObligationType = "Tax"
)

// ParseObligationType accepts "insurance"/"tax" in any case.
func ParseObligationType(s string) (ObligationType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "insurance":
		return ObligationInsurance, true
	case "tax":
		return ObligationTax, true
	default:
		return "", false
	}
}

// ComplianceLogEntry records one successful renewal payment.
// Entries are append-only: never updated, never deleted.
type ComplianceLogEntry struct {
	ID            string         `json:"id" bson:"_id,omitempty"`
	VehicleID     string         `json:"vehicle_id" bson:"vehicle_id"`
	Type          ObligationType `json:"type" bson:"type"`
	AmountPaid    float64        `json:"amount_paid" bson:"amount_paid"`
	PaymentDate   time.Time      `json:"payment_date" bson:"payment_date"`
	NewExpiryDate time.Time      `json:"new_expiry_date" bson:"new_expiry_date"`
}

// Renewal is the pair of writes a renewal performs: advance the vehicle's
// expiry from PreviousExpiry to Entry.NewExpiryDate and append Entry.
type Renewal struct {
	VehicleID      string
	Type           ObligationType
	PreviousExpiry *time.Time
	Entry          ComplianceLogEntry
}
