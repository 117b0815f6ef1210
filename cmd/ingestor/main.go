// Command ingestor copies transport stops and the trails around them from
// the trails API into PostGIS, so the explorer can run with
// explorer.stop_source and explorer.trail_source set to "postgres".
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/Hogigo/Bus2Hike/internal/adapters/backend"
	"github.com/Hogigo/Bus2Hike/internal/adapters/postgres"
	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/pkg/config"
	"github.com/Hogigo/Bus2Hike/internal/pkg/logging"
)

const maxConcurrentSearches = 4

func main() {
	cfg, err := config.Load("bus2hike-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	api := backend.New(backend.Options{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  cfg.Backend.Timeout(),
		MaxPaths: cfg.Backend.MaxPaths,
	})
	importer := postgres.NewImporter(db)

	home := domain.GeoPoint{Lat: cfg.Explorer.HomeLat, Lon: cfg.Explorer.HomeLon}
	slog.Info("discovering stops", "lat", home.Lat, "lon", home.Lon, "range_km", cfg.Explorer.StopRangeKm)

	stops, err := api.FindStops(ctx, home.Lon, home.Lat, cfg.Explorer.StopRangeKm)
	if err != nil {
		log.Fatalf("find stops: %v", err)
	}
	n, err := importer.UpsertStops(ctx, stops)
	if err != nil {
		log.Fatalf("import stops: %v", err)
	}
	slog.Info("stops imported", "count", n)

	trails := collectTrails(ctx, api, stops, cfg.Explorer.DefaultRadiusKm)
	n, err = importer.UpsertTrails(ctx, trails)
	if err != nil {
		log.Fatalf("import trails: %v", err)
	}
	slog.Info("ingestion complete", "stops", len(stops), "trails", n)
}

// collectTrails searches around every stop and returns the distinct trails
// ordered by id. Failed searches are logged and skipped.
func collectTrails(ctx context.Context, api *backend.Client, stops []domain.Stop, radiusKm float64) []domain.Trail {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[int64]domain.Trail)
		sem  = make(chan struct{}, maxConcurrentSearches)
	)

	for _, s := range stops {
		wg.Add(1)
		go func(s domain.Stop) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			found, err := api.SearchTrails(ctx, s.Location.Lon, s.Location.Lat, radiusKm)
			if err != nil {
				slog.Warn("trail search failed", "stop_id", s.ID, "stop", s.Name, "error", err)
				return
			}
			slog.Debug("trails found", "stop_id", s.ID, "count", len(found))

			mu.Lock()
			for _, t := range found {
				seen[t.ID] = t
			}
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	trails := make([]domain.Trail, 0, len(seen))
	for _, t := range seen {
		trails = append(trails, t)
	}
	sort.Slice(trails, func(i, j int) bool { return trails[i].ID < trails[j].ID })
	return trails
}
