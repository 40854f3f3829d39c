// Package worker runs background jobs next to the HTTP server.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/compliance"
	"github.com/ukydev/fleet-ledger/internal/events"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// VehicleLister is the store access the sweep needs.
type VehicleLister interface {
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
}

// AlertSweeper publishes an alert for every overdue or urgent obligation.
type AlertSweeper struct {
	store     VehicleLister
	publisher events.Publisher
	log       *logrus.Entry
}

func NewAlertSweeper(store VehicleLister, publisher events.Publisher, logger *logrus.Entry) *AlertSweeper {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AlertSweeper{
		store:     store,
		publisher: publisher,
		log:       logger.WithField("component", "alert-sweeper"),
	}
}

var obligations = []models.ObligationType{models.ObligationInsurance, models.ObligationTax}

// Sweep checks every vehicle once and returns how many alerts were published.
// Obligations that were never recorded do not alert. A failed publish is
// logged and the sweep moves on.
func (s *AlertSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	vehicles, err := s.store.ListVehicles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list vehicles: %w", err)
	}

	published := 0
	for _, v := range vehicles {
		for _, t := range obligations {
			info := compliance.Countdown(v.Expiry(t), t, now)
			if info.Status != compliance.StatusOverdue && info.Status != compliance.StatusUrgent {
				continue
			}
			evt := events.NewAlertEvent(v, t, info.DaysLeft, string(info.Status), now)
			if err := s.publisher.Publish(ctx, evt); err != nil {
				s.log.WithFields(logrus.Fields{
					"vehicle_id": v.ID,
					"type":       t,
				}).WithError(err).Warn("Failed to publish compliance alert")
				continue
			}
			published++
		}
	}
	return published, nil
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *AlertSweeper) Run(ctx context.Context, interval time.Duration) {
	s.sweep(ctx, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Alert sweeper stopped")
			return
		case now := <-ticker.C:
			s.sweep(ctx, now)
		}
	}
}

func (s *AlertSweeper) sweep(ctx context.Context, now time.Time) {
	count, err := s.Sweep(ctx, now)
	if err != nil {
		s.log.WithError(err).Error("Compliance sweep failed")
		return
	}
	s.log.WithField("alerts", count).Info("Compliance sweep complete")
}
