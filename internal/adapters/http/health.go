package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valkey-io/valkey-go"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

const readyTimeout = 3 * time.Second

// probe checks one dependency. A nil check means the dependency is not
// configured, which does not fail readiness.
type probe struct {
	name  string
	check func(ctx context.Context) error
}

func (d *Dependencies) probes() []probe {
	var ps []probe
	add := func(name string, configured bool, check func(ctx context.Context) error) {
		if !configured {
			check = nil
		}
		ps = append(ps, probe{name: name, check: check})
	}

	add("backend", d.Backend != nil, func(ctx context.Context) error { return d.Backend.Ping(ctx) })
	add("database", d.DB != nil, func(ctx context.Context) error { return d.DB.Ping(ctx) })
	add("nats", d.NATS != nil, func(context.Context) error {
		if !d.NATS.IsConnected() {
			return errDisconnected
		}
		return nil
	})
	add("cache", d.Cache != nil, func(ctx context.Context) error {
		if err := d.Cache.Ping(ctx); err != nil && !valkey.IsValkeyNil(err) {
			return err
		}
		return nil
	})
	return ps
}

var errDisconnected = errors.New("disconnected")

// HealthHandler reports liveness along with the explorer state version.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": Version,
		}
		if deps.Explorer != nil {
			body["state_version"] = deps.Explorer.Snapshot().Version
		}
		return c.JSON(body)
	}
}

// ReadyHandler runs every dependency probe in parallel and answers 503 if
// any configured dependency is unreachable.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		probes := deps.probes()
		results := make([]string, len(probes))

		var wg sync.WaitGroup
		for i, p := range probes {
			if p.check == nil {
				results[i] = "not configured"
				continue
			}
			wg.Add(1)
			go func(i int, p probe) {
				defer wg.Done()
				if err := p.check(ctx); err != nil {
					results[i] = "error: " + err.Error()
					return
				}
				results[i] = "ok"
			}(i, p)
		}
		wg.Wait()

		checks := make(map[string]string, len(probes))
		ready := true
		for i, p := range probes {
			checks[p.name] = results[i]
			if results[i] != "ok" && results[i] != "not configured" {
				ready = false
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}
