package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Hogigo/Bus2Hike/internal/core/usecases"
)

// SearchResponse describes a launched trail search.
type SearchResponse struct {
	SearchID string            `json:"search_id"`
	Token    uint64            `json:"token"`
	StopID   int64             `json:"stop_id"`
	Done     bool              `json:"done"`
	State    usecases.Snapshot `json:"state"`
}

// GestureResponse is returned after a gesture has been applied.
type GestureResponse struct {
	Search *SearchResponse   `json:"search,omitempty"`
	State  usecases.Snapshot `json:"state"`
}

type discoverRequest struct {
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	RangeKm float64 `json:"range_km"`
}

// StateHandler returns the current explorer snapshot.
func StateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-store")
		return c.JSON(deps.Explorer.Snapshot())
	}
}

// ListTrailsHandler returns the trail collection, or with ?matching=true
// only the trails that pass the current filters.
func ListTrailsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap := deps.Explorer.Snapshot()
		trails := snap.Trails
		if c.QueryBool("matching", false) {
			trails = snap.MatchingTrails()
		}

		page := paginate(c, trails)
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(page)
	}
}

// GetTrailHandler returns one trail of the current collection.
func GetTrailHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return errBadRequest(c, "id must be an integer")
		}
		for _, t := range deps.Explorer.Snapshot().Trails {
			if t.ID == id {
				return c.JSON(t)
			}
		}
		return errNotFound(c, "trail not found")
	}
}

// ListStopsHandler returns the discovered stops.
func ListStopsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := paginate(c, deps.Explorer.Snapshot().Stops)
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(page)
	}
}

// DiscoverStopsHandler refreshes the stop list around a point. An empty body
// discovers around the home location.
func DiscoverStopsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req discoverRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
			return errBadRequest(c, "lat must be in [-90, 90] and lon in [-180, 180]")
		}
		if req.RangeKm < 0 || req.RangeKm > 500 {
			return errBadRequest(c, "range_km must be between 0 and 500")
		}

		stops, err := deps.Explorer.DiscoverStops(c.UserContext(), req.Lon, req.Lat, req.RangeKm)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(stops)
	}
}

// GestureHandler applies one user gesture. A search button tap launches a
// search; with ?wait=true the response is sent once it has settled.
func GestureHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var g usecases.Gesture
		if err := c.BodyParser(&g); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if g.Kind == "" {
			return errBadRequest(c, "kind is required")
		}

		p, err := deps.Explorer.Dispatch(c.UserContext(), g)
		if err != nil {
			return errFromDomain(c, err)
		}

		resp := GestureResponse{}
		if p != nil {
			sr, err := awaitSearch(c, deps, p)
			if err != nil {
				return errFromDomain(c, err)
			}
			resp.Search = &sr
		}
		resp.State = deps.Explorer.Snapshot()
		return c.JSON(resp)
	}
}

// SearchHandler launches a trail search around the selected stop. Without
// ?wait=true it answers 202 immediately.
func SearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := deps.Explorer.Search(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}

		sr, err := awaitSearch(c, deps, p)
		if err != nil {
			return errFromDomain(c, err)
		}
		if !sr.Done {
			return c.Status(fiber.StatusAccepted).JSON(sr)
		}
		return c.JSON(sr)
	}
}

func awaitSearch(c *fiber.Ctx, deps *Dependencies, p *usecases.PendingSearch) (SearchResponse, error) {
	sr := SearchResponse{SearchID: p.ID, Token: p.Token, StopID: p.StopID}
	if c.QueryBool("wait", false) {
		if err := p.Wait(c.UserContext()); err != nil {
			return sr, err
		}
		sr.Done = true
	}
	sr.State = deps.Explorer.Snapshot()
	return sr, nil
}
