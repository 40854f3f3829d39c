// Package compliance schedules insurance and tax renewals for fleet vehicles.
package compliance

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/ukydev/fleet-ledger/internal/models"
)

// Interval returns the rollover period of an obligation as (years, months, days)
// suitable for time.AddDate.
func Interval(t models.ObligationType) (years, months, days int) {
	switch t {
	case models.ObligationTax:
		return 0, 3, 0
	default:
		return 0, 12, 0
	}
}

// DateOf truncates t to its calendar date, expressed as UTC midnight.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RollForward computes the expiry after one renewal. The interval is added to
// the existing expiry, so renewing early keeps the remaining validity. With no
// prior expiry it rolls from now's date.
func RollForward(current *time.Time, t models.ObligationType, now time.Time) time.Time {
	base := DateOf(now)
	if current != nil {
		base = DateOf(*current)
	}
	y, m, d := Interval(t)
	return base.AddDate(y, m, d)
}

// Status is the urgency class of an obligation.
type Status string

const (
	StatusOverdue Status = "overdue"
	StatusUrgent  Status = "urgent"
	StatusNormal  Status = "normal"
	StatusNotSet  Status = "not_set"
)

// Color is the display colour conventionally used for the status.
func (s Status) Color() string {
	switch s {
	case StatusOverdue:
		return "red"
	case StatusUrgent:
		return "amber"
	case StatusNormal:
		return "green"
	default:
		return "grey"
	}
}

// UrgentWithin is the days-left threshold at or under which an obligation is urgent.
func UrgentWithin(t models.ObligationType) int {
	if t == models.ObligationTax {
		return 15
	}
	return 30
}

// CountdownInfo is the derived urgency of one obligation.
type CountdownInfo struct {
	// DaysLeft is nil when no expiry is recorded.
	DaysLeft *int   `json:"days_left"`
	Status   Status `json:"status"`
	Color    string `json:"color"`
	Label    string `json:"label"`
}

// Countdown derives days left (rounded up) and urgency for an expiry.
// A missing expiry is NotSet, never zero days and never overdue.
func Countdown(expiry *time.Time, t models.ObligationType, now time.Time) CountdownInfo {
	if expiry == nil {
		return CountdownInfo{Status: StatusNotSet, Color: StatusNotSet.Color(), Label: "Not Set"}
	}

	days := int(math.Ceil(expiry.Sub(now).Hours() / 24))
	info := CountdownInfo{DaysLeft: &days}
	switch {
	case days < 0:
		info.Status = StatusOverdue
		info.Label = plural(-days) + " overdue"
	case days <= UrgentWithin(t):
		info.Status = StatusUrgent
		info.Label = plural(days) + " left"
	default:
		info.Status = StatusNormal
		info.Label = plural(days) + " left"
	}
	info.Color = info.Status.Color()
	return info
}

func plural(days int) string {
	if days == 1 {
		return "1 day"
	}
	return strconv.Itoa(days) + " days"
}

// State is the lifecycle state of an obligation.
type State string

const (
	StateCurrent State = "current"
	StateLapsed  State = "lapsed"
)

// StateOf reports whether an obligation is still valid at now. An expiry
// falling on today is still current.
func StateOf(expiry *time.Time, now time.Time) State {
	if expiry == nil || DateOf(*expiry).Before(DateOf(now)) {
		return StateLapsed
	}
	return StateCurrent
}

// QueueItem is one vehicle waiting on an obligation.
type QueueItem struct {
	Vehicle   models.Vehicle        `json:"vehicle"`
	Type      models.ObligationType `json:"type"`
	Expiry    *time.Time            `json:"expiry,omitempty"`
	State     State                 `json:"state"`
	Countdown CountdownInfo         `json:"countdown"`
}

// Queue lists every vehicle for an obligation, soonest expiry first.
// Vehicles without an expiry come last, ordered by plate.
func Queue(vehicles []models.Vehicle, t models.ObligationType, now time.Time) []QueueItem {
	items := make([]QueueItem, 0, len(vehicles))
	for _, v := range vehicles {
		exp := v.Expiry(t)
		items = append(items, QueueItem{
			Vehicle:   v,
			Type:      t,
			Expiry:    exp,
			State:     StateOf(exp, now),
			Countdown: Countdown(exp, t, now),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Expiry, items[j].Expiry
		switch {
		case a == nil && b == nil:
			return items[i].Vehicle.PlateNumber < items[j].Vehicle.PlateNumber
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return items[i].Vehicle.PlateNumber < items[j].Vehicle.PlateNumber
		}
	})
	return items
}
