package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/ukydev/fleet-ledger/internal/models"
)

// Window is an inclusive time range [From, To].
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t lies inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// Label returns the window's month in YYYY-MM form.
func (w Window) Label() string {
	return w.From.Format("2006-01")
}

// CurrentMonth returns [first day of now's month 00:00, now] in loc.
func CurrentMonth(now time.Time, loc *time.Location) Window {
	now = now.In(loc)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	return Window{From: first, To: now}
}

// CalendarMonth returns the whole month in loc, up to its last nanosecond.
func CalendarMonth(year int, month time.Month, loc *time.Location) Window {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Window{From: first, To: first.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// ParseMonth resolves a month selector. "" and "current" select the month to
// date; "YYYY-MM" selects that calendar month, cut at now if it is still running.
func ParseMonth(s string, now time.Time, loc *time.Location) (Window, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "current") {
		return CurrentMonth(now, loc), nil
	}
	t, err := time.ParseInLocation("2006-01", s, loc)
	if err != nil {
		return Window{}, fmt.Errorf("%w: month %q must be YYYY-MM", models.ErrInvalidInput, s)
	}
	w := CalendarMonth(t.Year(), t.Month(), loc)
	if n := now.In(loc); w.Contains(n) {
		w.To = n
	}
	return w, nil
}
