package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/levenlabs/go-lflag"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/log"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/storage"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// seed creates a handful of demo sites against the local emulator so the
// engine has something to simulate.
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding demo sites")

	demo := []types.Site{
		{
			ID:                  "site-berlin-001",
			Name:                "Berlin Rooftop",
			LatitudeDeg:         52.5200,
			LongitudeDeg:        13.4050,
			SolarCapacityKW:     9.6,
			BatteryCapacityKWH:  27.2,
			NominalVoltageV:     48,
			DailyConsumptionKWH: 22,
			GridAvailable:       true,
			Profile:             types.ProfileResidential,
		},
		{
			ID:                  "site-madrid-002",
			Name:                "Madrid Warehouse",
			LatitudeDeg:         40.4168,
			LongitudeDeg:        -3.7038,
			SolarCapacityKW:     80,
			BatteryCapacityKWH:  200,
			NominalVoltageV:     400,
			DailyConsumptionKWH: 450,
			GridAvailable:       true,
			Profile:             types.ProfileCommercial,
		},
		{
			ID:                  "site-oslo-003",
			Name:                "Oslo Cabin",
			LatitudeDeg:         59.9139,
			LongitudeDeg:        10.7522,
			SolarCapacityKW:     4.2,
			BatteryCapacityKWH:  13.5,
			NominalVoltageV:     48,
			DailyConsumptionKWH: 9,
			GridAvailable:       false,
			Profile:             types.ProfileResidential,
		},
	}

	var created int
	for _, site := range demo {
		if err := s.CreateSite(ctx, site.ID, site); err != nil {
			if errors.Is(err, storage.ErrPersistence) {
				// likely already seeded
				log.Ctx(ctx).WarnContext(ctx, "skipping site",
					slog.String("siteID", site.ID),
					slog.Any("error", err),
				)
				continue
			}
			log.Ctx(ctx).ErrorContext(ctx, "failed to create site",
				slog.String("siteID", site.ID),
				slog.Any("error", err),
			)
			os.Exit(1)
		}
		created++
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding complete", slog.Int("created", created))

	if err := s.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
	}
}
