// Command trailmap is a terminal client for exploring hiking trails around
// public-transport stops.
package main

import (
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Hogigo/Bus2Hike/internal/adapters/backend"
	"github.com/Hogigo/Bus2Hike/internal/adapters/valkey"
	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/core/ports"
	"github.com/Hogigo/Bus2Hike/internal/core/usecases"
	"github.com/Hogigo/Bus2Hike/internal/pkg/config"
	"github.com/Hogigo/Bus2Hike/internal/pkg/logging"
)

func main() {
	cfg, err := config.Load("bus2hike-trailmap")
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}

	// The terminal is taken by the UI, so logs go to a file.
	logFile, err := tea.LogToFile("trailmap.log", "")
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := logging.New(logFile, cfg.Log.Level, "text")
	slog.SetDefault(logger)

	api := backend.New(backend.Options{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  cfg.Backend.Timeout(),
		MaxPaths: cfg.Backend.MaxPaths,
	})

	var stopCache ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr, "bus2hike-trailmap"); err != nil {
		logger.Warn("valkey unavailable, stops are not cached", "error", err)
	} else {
		stopCache = cache
		defer cache.Close()
	}

	explorer := usecases.NewCoordinator(api, usecases.NewStopService(api, stopCache, cfg.Valkey.StopTTLSeconds), usecases.Options{
		SearchTimeout:      cfg.Explorer.SearchTimeout(),
		FenceSearches:      cfg.Explorer.FenceSearches,
		TransitionDuration: cfg.Explorer.TransitionDuration(),
		DefaultRadiusKm:    cfg.Explorer.DefaultRadiusKm,
		StopRangeKm:        cfg.Explorer.StopRangeKm,
		Home:               domain.GeoPoint{Lat: cfg.Explorer.HomeLat, Lon: cfg.Explorer.HomeLon},
		Logger:             logger,
	})
	defer explorer.Close()

	p := tea.NewProgram(newModel(explorer), tea.WithAltScreen())
	unsubscribe := explorer.Subscribe(func(s usecases.Snapshot) {
		p.Send(snapshotMsg(s))
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
