package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/auth"
	"github.com/ukydev/fleet-ledger/internal/config"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/models"
	"github.com/ukydev/fleet-ledger/internal/seed"
)

var (
	errMemoryStore = errors.New("DB_TYPE=memory would discard the seeded fleet; choose mongo or postgres")
	errNoReset     = errors.New("store does not support reset")
)

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		log.WithField("key", key).Warn("Ignoring non-numeric value")
	}
	return def
}

// seedOptions reads the fleet size from the environment.
func seedOptions(now time.Time) seed.Options {
	opts := seed.DefaultOptions(now)
	opts.Vehicles = envInt("SEED_VEHICLES", opts.Vehicles)
	opts.TripsPerVehicle = envInt("SEED_TRIPS_PER_VEHICLE", opts.TripsPerVehicle)
	opts.Days = envInt("SEED_DAYS", opts.Days)
	if v := os.Getenv("SEED_RANDOM"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.Seed = n
		}
	}
	return opts
}

// devToken signs a token for role with the server's secret, so the seeded
// fleet can be browsed straight away.
func devToken(cfg *config.Config, role string, ttl time.Duration) (string, error) {
	r := models.Role(role)
	if !models.IsValidRole(r) {
		return "", fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, role)
	}
	svc, err := auth.NewService(cfg.JWTSecret)
	if err != nil {
		return "", err
	}
	return svc.GenerateToken(models.Claims{UserID: "dev-" + role, Username: "dev-" + role, Role: r}, ttl)
}

// resetStore empties the store so a reseed starts from nothing.
func resetStore(ctx context.Context, store db.SeedStore) error {
	r, ok := store.(db.Resetter)
	if !ok {
		return errNoReset
	}
	if err := r.DeleteAll(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	log.Warn("Deleted every vehicle, trip, expense and payment log")
	return nil
}

func run(ctx context.Context, cfg *config.Config, opts seed.Options, reset bool) (seed.Summary, error) {
	if cfg.DBType == "memory" {
		return seed.Summary{}, errMemoryStore
	}
	store, closeStore, err := db.Open(ctx, db.Options{
		Type:        cfg.DBType,
		MongoURI:    cfg.MongoURI,
		MongoDB:     cfg.MongoDB,
		PostgresURL: cfg.PostgresURL,
	})
	if err != nil {
		return seed.Summary{}, err
	}
	defer closeStore()

	if reset {
		if err := resetStore(ctx, store); err != nil {
			return seed.Summary{}, err
		}
	}
	return seed.Fleet(ctx, store, opts)
}

func main() {
	cfg := config.Load()
	opts := seedOptions(time.Now().UTC())
	reset, _ := strconv.ParseBool(os.Getenv("SEED_RESET"))

	log.WithFields(log.Fields{
		"db_type":           cfg.DBType,
		"vehicles":          opts.Vehicles,
		"trips_per_vehicle": opts.TripsPerVehicle,
		"days":              opts.Days,
		"reset":             reset,
	}).Info("Seeding demo fleet")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := run(ctx, cfg, opts, reset); err != nil {
		log.WithError(err).Fatal("Seeding failed")
	}

	if role := os.Getenv("DEV_TOKEN_ROLE"); role != "" {
		token, err := devToken(cfg, role, 24*time.Hour)
		if err != nil {
			log.WithError(err).Fatal("Failed to sign development token")
		}
		fmt.Println(token)
	}
}
