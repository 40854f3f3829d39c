package models

import "time"

// Expense represents money spent against a trip.
// Category is the label as entered by operators ("Diesel", "food ", "RTO"...);
// the ledger normalizes it into a report category.
type Expense struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	TripID    string    `json:"trip_id" bson:"trip_id"`
	Amount    float64   `json:"amount" bson:"amount"`
	Category  string    `json:"category" bson:"category"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// GroupExpensesByTrip indexes expenses by their owning trip.
func GroupExpensesByTrip(expenses []Expense) map[string][]Expense {
	out := make(map[string][]Expense)
	for _, e := range expenses {
		out[e.TripID] = append(out[e.TripID], e)
	}
	return out
}
