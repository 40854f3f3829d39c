package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Slice is one segment of the fleet profit chart.
type Slice struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Slices splits a record into chart segments: net profit first, clamped at
// zero since a chart cannot show a negative share, then each category.
func (r Record) Slices() []Slice {
	net := r.NetProfit
	if net.IsNegative() {
		net = decimal.Zero
	}
	out := make([]Slice, 0, len(reportOrder)+1)
	out = append(out, Slice{Label: "Net Profit", Amount: net})
	for _, c := range reportOrder {
		out = append(out, Slice{Label: string(c), Amount: r.Expenses[c]})
	}
	return out
}

// DailyPoint is the freight booked on one calendar day.
type DailyPoint struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// DailyRevenue sums trip freight per calendar day in loc, oldest day first.
// Missing or negative freight contributes nothing.
func DailyRevenue(trips []models.Trip, loc *time.Location) []DailyPoint {
	byDay := make(map[string]decimal.Decimal)
	for _, t := range trips {
		day := t.CreatedAt.In(loc).Format("2006-01-02")
		amount := decimal.Zero
		if t.TotalFreight != nil && *t.TotalFreight > 0 {
			amount = decimal.NewFromFloat(*t.TotalFreight)
		}
		byDay[day] = byDay[day].Add(amount)
	}

	out := make([]DailyPoint, 0, len(byDay))
	for day, amount := range byDay {
		out = append(out, DailyPoint{Date: day, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
