package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Hogigo/Bus2Hike/internal/adapters/backend"
	"github.com/Hogigo/Bus2Hike/internal/adapters/http"
	natsadapter "github.com/Hogigo/Bus2Hike/internal/adapters/nats"
	"github.com/Hogigo/Bus2Hike/internal/adapters/postgres"
	"github.com/Hogigo/Bus2Hike/internal/adapters/valkey"
	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/core/ports"
	"github.com/Hogigo/Bus2Hike/internal/core/usecases"
	"github.com/Hogigo/Bus2Hike/internal/pkg/config"
	"github.com/Hogigo/Bus2Hike/internal/pkg/logging"
	"github.com/Hogigo/Bus2Hike/internal/pkg/metrics"
	"github.com/Hogigo/Bus2Hike/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("bus2hike-explorer")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr, cfg.Telemetry.Exporter)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Trails API
	api := backend.New(backend.Options{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  cfg.Backend.Timeout(),
		MaxPaths: cfg.Backend.MaxPaths,
	})

	// Database, only when a source reads PostGIS directly
	var db *postgres.DB
	if cfg.Explorer.UsesPostgres() {
		db, err = postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		go db.ReportPoolStats(ctx, 15*time.Second)
	}

	// Cache
	var stopCache ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, "bus2hike-explorer")
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		stopCache = cache
		defer cache.Close()
	}

	// NATS
	var publisher ports.EventPublisher
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		publisher = nc
		defer nc.Close()
	}

	// Sources
	var trails ports.TrailSearcher = api
	if cfg.Explorer.TrailSource == config.SourcePostgres {
		trails = postgres.NewTrailRepo(db, cfg.Backend.MaxPaths)
	}
	var stops ports.StopFinder = api
	if cfg.Explorer.StopSource == config.SourcePostgres {
		stops = postgres.NewStopRepo(db)
	}
	stopSvc := usecases.NewStopService(stops, stopCache, cfg.Valkey.StopTTLSeconds)

	collector, err := metrics.NewExplorerCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	explorer := usecases.NewCoordinator(trails, stopSvc, usecases.Options{
		SearchTimeout:      cfg.Explorer.SearchTimeout(),
		FenceSearches:      cfg.Explorer.FenceSearches,
		TransitionDuration: cfg.Explorer.TransitionDuration(),
		DefaultRadiusKm:    cfg.Explorer.DefaultRadiusKm,
		StopRangeKm:        cfg.Explorer.StopRangeKm,
		Home:               domain.GeoPoint{Lat: cfg.Explorer.HomeLat, Lon: cfg.Explorer.HomeLon},
		Logger:             slog.Default(),
		Metrics:            collector,
		Publisher:          publisher,
	})
	defer explorer.Close()

	// Fan state out over NATS for the WebSocket relay of every replica
	if publisher != nil {
		unsubscribe := explorer.Subscribe(func(s usecases.Snapshot) {
			data, err := json.Marshal(s)
			if err != nil {
				slog.Error("marshal state", "error", err)
				return
			}
			if err := publisher.PublishState(ctx, data); err != nil {
				slog.Warn("publish state", "error", err)
			}
		})
		defer unsubscribe()

		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats search audit unavailable", "error", err)
		} else {
			defer sub.Close()
			err := sub.SubscribeSearchEvents(ctx, "explorer-search-audit", func(ctx context.Context, ev ports.SearchEvent) error {
				slog.Debug("search audit",
					"search_id", ev.SearchID, "outcome", ev.Outcome,
					"trails", ev.Trails, "duration_ms", ev.DurationMs)
				return nil
			})
			if err != nil {
				slog.Warn("search audit subscribe failed", "error", err)
			}
		}
	}

	// Stops around home, so the first tap has something to select
	go func() {
		if _, err := explorer.DiscoverStops(ctx, 0, 0, 0); err != nil {
			slog.Warn("initial stop discovery failed", "error", err)
		}
	}()

	deps := &http.Dependencies{
		Explorer: explorer,
		Backend:  api,
		DB:       db,
		Cache:    cache,
	}
	if nc != nil {
		deps.NATS = nc.Conn()
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    256 * 1024,
		AppName:      "Bus2Hike Explorer",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, If-None-Match, Traceparent",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("explorer starting", "addr", addr,
			"trail_source", cfg.Explorer.TrailSource, "stop_source", cfg.Explorer.StopSource)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
