// Package seed generates a demo fleet: trucks with compliance deadlines,
// trips spread over recent weeks and the expenses booked against them.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Options sizes the generated fleet.
type Options struct {
	Vehicles        int
	TripsPerVehicle int
	// Days is how far back trips are spread from Now.
	Days int
	Now  time.Time
	// Seed makes the fleet reproducible; the same seed yields the same records.
	Seed int64
}

// DefaultOptions is a fleet of ten trucks over the last sixty days.
func DefaultOptions(now time.Time) Options {
	return Options{Vehicles: 10, TripsPerVehicle: 12, Days: 60, Now: now, Seed: now.UnixNano()}
}

// Summary counts what was written.
type Summary struct {
	Vehicles int `json:"vehicles"`
	Trips    int `json:"trips"`
	Expenses int `json:"expenses"`
}

// Cities for realistic lanes
var cities = []string{
	"Bengaluru", "Chennai", "Mumbai", "Pune", "Hyderabad",
	"Kolkata", "Delhi", "Ahmedabad", "Jaipur", "Kochi",
	"Nagpur", "Visakhapatnam", "Coimbatore", "Indore",
}

var stateCodes = []string{"KA", "TN", "MH", "TS", "WB", "DL", "GJ", "RJ", "KL", "AP"}

var drivers = []string{
	"Ramesh", "Suresh", "Mahesh", "Ravi", "Anil",
	"Vijay", "Prakash", "Manoj", "Imran", "Gurpreet",
}

// expenseKinds are labels as operators actually type them, so the demo data
// exercises the category classifier.
var expenseKinds = []struct {
	Label    string
	Min, Max float64
	Chance   float64
}{
	{"Diesel", 4000, 14000, 0.9},
	{"Food", 150, 900, 0.7},
	{"Toll Fee", 300, 2500, 0.6},
	{"RTO", 200, 1500, 0.2},
	{"police challan", 500, 2000, 0.05},
	{"AdBlue", 300, 1200, 0.3},
	{"tyre puncture", 200, 800, 0.1},
}

type generator struct {
	r      *rand.Rand
	opts   Options
	plates map[string]bool
}

// roundTo rounds v to the nearest multiple of step.
func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}

func (g *generator) between(lo, hi float64) float64 {
	return lo + g.r.Float64()*(hi-lo)
}

func (g *generator) plate() string {
	for {
		p := fmt.Sprintf("%s%02d%c%c%04d",
			stateCodes[g.r.Intn(len(stateCodes))],
			g.r.Intn(99)+1,
			'A'+rune(g.r.Intn(26)),
			'A'+rune(g.r.Intn(26)),
			g.r.Intn(10000),
		)
		if !g.plates[p] {
			g.plates[p] = true
			return p
		}
	}
}

// expiry returns a date between a month overdue and ten months out, or nil
// for roughly one vehicle in six.
func (g *generator) expiry() *time.Time {
	if g.r.Intn(6) == 0 {
		return nil
	}
	today := time.Date(g.opts.Now.Year(), g.opts.Now.Month(), g.opts.Now.Day(), 0, 0, 0, 0, time.UTC)
	d := today.AddDate(0, 0, g.r.Intn(330)-30)
	return &d
}

func (g *generator) vehicle() models.Vehicle {
	return models.Vehicle{
		PlateNumber:     g.plate(),
		InsuranceExpiry: g.expiry(),
		TaxExpiry:       g.expiry(),
		CreatedAt:       g.opts.Now.AddDate(0, 0, -g.opts.Days-g.r.Intn(365)),
	}
}

func (g *generator) trip(vehicleID string) models.Trip {
	from := cities[g.r.Intn(len(cities))]
	to := from
	for to == from {
		to = cities[g.r.Intn(len(cities))]
	}
	created := g.opts.Now.Add(-time.Duration(g.r.Int63n(int64(g.opts.Days) * int64(24*time.Hour))))

	t := models.Trip{
		VehicleID:    vehicleID,
		FromLocation: from,
		ToLocation:   to,
		CreatedAt:    created,
		DriverName:   drivers[g.r.Intn(len(drivers))],
		Status:       models.TripCompleted,
	}
	// trips started in the last three days are usually still on the road
	if g.opts.Now.Sub(created) < 72*time.Hour && g.r.Intn(4) != 0 {
		t.Status = models.TripActive
	}
	// a few trips never get their freight entered
	if g.r.Intn(25) != 0 {
		freight := roundTo(g.between(15000, 65000), 100)
		t.TotalFreight = &freight
	}
	bata := roundTo(g.between(500, 1500), 50)
	t.DriverBata = &bata
	return t
}

func (g *generator) expenses(trip models.Trip) []models.Expense {
	var out []models.Expense
	for _, k := range expenseKinds {
		if g.r.Float64() >= k.Chance {
			continue
		}
		out = append(out, models.Expense{
			TripID:    trip.ID,
			Amount:    roundTo(g.between(k.Min, k.Max), 10),
			Category:  k.Label,
			CreatedAt: trip.CreatedAt.Add(time.Duration(g.r.Intn(48)) * time.Hour),
		})
	}
	return out
}

// Fleet writes a generated fleet through s.
func Fleet(ctx context.Context, s db.Seeder, opts Options) (Summary, error) {
	if opts.Vehicles < 1 || opts.TripsPerVehicle < 0 || opts.Days < 1 {
		return Summary{}, fmt.Errorf("%w: need at least one vehicle and one day", models.ErrInvalidInput)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	g := &generator{r: rand.New(rand.NewSource(opts.Seed)), opts: opts, plates: make(map[string]bool)}

	var sum Summary
	for i := 0; i < opts.Vehicles; i++ {
		v, err := s.InsertVehicle(ctx, g.vehicle())
		if err != nil {
			return sum, fmt.Errorf("insert vehicle: %w", err)
		}
		sum.Vehicles++

		for j := 0; j < opts.TripsPerVehicle; j++ {
			trip, err := s.InsertTrip(ctx, g.trip(v.ID))
			if err != nil {
				return sum, fmt.Errorf("insert trip: %w", err)
			}
			sum.Trips++

			for _, e := range g.expenses(trip) {
				if _, err := s.InsertExpense(ctx, e); err != nil {
					return sum, fmt.Errorf("insert expense: %w", err)
				}
				sum.Expenses++
			}
		}

		log.WithFields(log.Fields{
			"vehicle_id": v.ID,
			"plate":      v.PlateNumber,
			"trips":      opts.TripsPerVehicle,
		}).Debug("Seeded vehicle")
	}

	log.WithFields(log.Fields{
		"vehicles": sum.Vehicles,
		"trips":    sum.Trips,
		"expenses": sum.Expenses,
	}).Info("Demo fleet seeded")
	return sum, nil
}
