package models

import "time"

// Vehicle represents a fleet vehicle and its compliance deadlines.
// Expiry fields are calendar dates; nil means the obligation was never recorded.
type Vehicle struct {
	ID              string     `bson:"_id,omitempty" json:"id"`
	PlateNumber     string     `bson:"plate_number" json:"plate_number"`
	InsuranceExpiry *time.Time `bson:"insurance_expiry,omitempty" json:"insurance_expiry,omitempty"`
	TaxExpiry       *time.Time `bson:"tax_expiry,omitempty" json:"tax_expiry,omitempty"`
	CreatedAt       time.Time  `bson:"created_at" json:"created_at"`
}

// Expiry returns the expiry date tracked for the given obligation.
func (v Vehicle) Expiry(t ObligationType) *time.Time {
	switch t {
	case ObligationInsurance:
		return v.InsuranceExpiry
	case ObligationTax:
		return v.TaxExpiry
	default:
		return nil
	}
}

// WithExpiry returns a copy of the vehicle with the obligation's expiry replaced.
func (v Vehicle) WithExpiry(t ObligationType, expiry *time.Time) Vehicle {
	switch t {
	case ObligationInsurance:
		v.InsuranceExpiry = expiry
	case ObligationTax:
		v.TaxExpiry = expiry
	}
	return v
}
