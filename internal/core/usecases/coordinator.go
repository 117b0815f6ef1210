package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/core/ports"
	"github.com/Hogigo/Bus2Hike/internal/pkg/geospatial"
	"github.com/Hogigo/Bus2Hike/internal/pkg/metrics"
	"github.com/Hogigo/Bus2Hike/internal/pkg/telemetry"
)

const tracerName = "github.com/Hogigo/Bus2Hike/internal/core/usecases"

// Search outcomes as reported in events and metrics.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeFailed  = "failed"
)

// Defaults for stop discovery around the Bolzano area.
const (
	DefaultHomeLat     = 46.49067
	DefaultHomeLon     = 11.33982
	DefaultStopRangeKm = 100
)

// Options configures a Coordinator. Zero values fall back to the defaults
// of DefaultOptions, except FenceSearches which is taken as given.
type Options struct {
	SearchTimeout      time.Duration
	FenceSearches      bool
	TransitionDuration time.Duration
	DefaultRadiusKm    float64
	StopRangeKm        float64
	Home               domain.GeoPoint

	Logger         *slog.Logger
	Metrics        *metrics.ExplorerCollector
	Publisher      ports.EventPublisher
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// DefaultOptions returns fenced searches with a 15 s timeout.
func DefaultOptions() Options {
	return Options{
		SearchTimeout:      15 * time.Second,
		FenceSearches:      true,
		TransitionDuration: DefaultTransitionDuration,
		DefaultRadiusKm:    DefaultRadiusKm,
		StopRangeKm:        DefaultStopRangeKm,
		Home:               domain.GeoPoint{Lat: DefaultHomeLat, Lon: DefaultHomeLon},
	}
}

// Snapshot is a read-only copy of the coordinator state.
type Snapshot struct {
	Version    uint64                   `json:"version"`
	Selection  domain.Selection         `json:"selection"`
	Visibility domain.Visibility        `json:"visibility"`
	Camera     domain.CameraPose        `json:"camera"`
	Transition *domain.CameraTransition `json:"transition,omitempty"`
	Filters    domain.SearchFilters     `json:"filters"`
	SearchArea *domain.Bounds           `json:"search_area,omitempty"`
	TrailArea  *domain.Bounds           `json:"trail_area,omitempty"`
	Loading    bool                     `json:"loading"`
	InFlight   int                      `json:"in_flight"`
	Trails     []domain.Trail           `json:"trails"`
	Stops      []domain.Stop            `json:"stops"`
	LastError  string                   `json:"last_error,omitempty"`
	Err        error                    `json:"-"`
}

// MatchingTrails returns the trails of the collection that pass the filters.
func (s Snapshot) MatchingTrails() []domain.Trail {
	out := make([]domain.Trail, 0, len(s.Trails))
	for _, t := range s.Trails {
		if MatchesFilters(s.Filters, t) {
			out = append(out, t)
		}
	}
	return out
}

// PendingSearch tracks one launched trail search.
type PendingSearch struct {
	ID     string
	Token  uint64
	StopID int64

	done chan struct{}
	err  error
}

// Done is closed once the result has been applied or discarded.
func (p *PendingSearch) Done() <-chan struct{} { return p.done }

// Err reports how the search ended: nil when applied, domain.ErrStaleSearch
// when discarded, or a *domain.SearchFailedError. Only valid after Done.
func (p *PendingSearch) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the search ends or ctx is done.
func (p *PendingSearch) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Coordinator owns selection, filters, camera, visibility and the trail
// collection of one exploration screen. All methods are safe for
// concurrent use. Listeners are called without the state lock held, one
// update at a time, and never with a snapshot older than one already
// delivered. A listener must not call back into a method that changes
// state.
type Coordinator struct {
	trails ports.TrailSearcher
	stops  ports.StopFinder
	opts   Options
	log    *slog.Logger
	tracer trace.Tracer

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	sel        domain.Selection
	vis        domain.Visibility
	filters    FilterState
	camera     domain.CameraPose
	transition *domain.CameraTransition
	cameraSeq  uint64
	collection []domain.Trail
	stopList   []domain.Stop
	inflight   int
	lastErr    error
	token      uint64
	fenceFloor uint64
	version    uint64

	listeners    []listener
	nextListener int

	// notifyMu orders delivery; delivered is the newest version handed out.
	notifyMu  sync.Mutex
	delivered uint64
}

// NewCoordinator creates a coordinator with the camera zoomed out over Home.
func NewCoordinator(trails ports.TrailSearcher, stops ports.StopFinder, opts Options) *Coordinator {
	def := DefaultOptions()
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = def.SearchTimeout
	}
	if opts.TransitionDuration <= 0 {
		opts.TransitionDuration = def.TransitionDuration
	}
	if opts.DefaultRadiusKm <= 0 {
		opts.DefaultRadiusKm = def.DefaultRadiusKm
	}
	if opts.StopRangeKm <= 0 {
		opts.StopRangeKm = def.StopRangeKm
	}
	if opts.Home.IsZero() {
		opts.Home = def.Home
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		trails:    trails,
		stops:     stops,
		opts:      opts,
		log:       opts.Logger.With("component", "explorer"),
		tracer:    opts.TracerProvider.Tracer(tracerName),
		base:      base,
		cancel:    cancel,
		vis:       InitialVisibility(),
		filters:   NewFilterState(opts.DefaultRadiusKm),
		camera:    ComputePose(opts.Home, domain.CameraZoomOut),
	}
}

// Close cancels in-flight searches and waits for them to finish.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

type listener struct {
	id int
	fn func(Snapshot)
}

// Subscribe registers fn to receive a snapshot after every state change.
// Listeners run in registration order. The returned func removes the
// listener.
func (c *Coordinator) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
		c.mu.Unlock()
	}
}

// --- Selection ---

// SelectStop selects stop. Selecting the already selected stop is a no-op;
// a different stop clears the selected trail and the trail collection and
// invalidates searches still in flight.
func (c *Coordinator) SelectStop(stop domain.Stop) error {
	return c.update(func() (bool, error) {
		if c.sel.Stop != nil && c.sel.Stop.ID == stop.ID {
			return false, nil
		}
		c.sel.Stop = &stop
		c.sel.Trail = nil
		c.collection = nil
		c.lastErr = nil
		c.fenceLocked()
		c.vis = applyVisibility(c.vis, visSelectNewStop, c.sel.Trail != nil)
		c.moveCameraLocked(stop.Location, domain.CameraZoomIn)
		return true, nil
	})
}

// SelectStopByID selects a stop from the discovered stop list.
func (c *Coordinator) SelectStopByID(id int64) error {
	c.mu.Lock()
	var found *domain.Stop
	for i := range c.stopList {
		if c.stopList[i].ID == id {
			s := c.stopList[i]
			found = &s
			break
		}
	}
	c.mu.Unlock()

	if found == nil {
		return fmt.Errorf("stop %d: %w", id, domain.ErrUnknownStop)
	}
	return c.SelectStop(*found)
}

// ClearStop deselects the stop and zooms out over where it was. The selected
// trail and the trail collection are kept.
func (c *Coordinator) ClearStop() error {
	return c.update(func() (bool, error) {
		if c.sel.Stop == nil {
			return false, domain.ErrNoStopSelected
		}
		loc := c.sel.Stop.Location
		c.sel.Stop = nil
		c.fenceLocked()
		c.vis = applyVisibility(c.vis, visClearStop, c.sel.Trail != nil)
		c.moveCameraLocked(loc, domain.CameraZoomOut)
		return true, nil
	})
}

// SelectTrailFromList toggles the selection of t from the trail list. The
// camera targets the middle element of the path.
func (c *Coordinator) SelectTrailFromList(t domain.Trail) error {
	return c.selectTrail(t, geospatial.ByIndex, visSelectTrailFromList, visSelectTrailFromList)
}

// SelectTrailFromMap toggles the selection of t from its map marker. The
// camera targets the centre of the path's bounding box.
func (c *Coordinator) SelectTrailFromMap(t domain.Trail) error {
	return c.selectTrail(t, geospatial.ByBoundingBox, visMarkerSelect, visMarkerDeselect)
}

// SelectTrailFromListByID looks id up in the trail collection.
func (c *Coordinator) SelectTrailFromListByID(id int64) error {
	t, err := c.trailByID(id)
	if err != nil {
		return err
	}
	return c.SelectTrailFromList(t)
}

// SelectTrailFromMapByID looks id up in the trail collection.
func (c *Coordinator) SelectTrailFromMapByID(id int64) error {
	t, err := c.trailByID(id)
	if err != nil {
		return err
	}
	return c.SelectTrailFromMap(t)
}

func (c *Coordinator) selectTrail(t domain.Trail, method geospatial.TargetMethod, onSelect, onDeselect visibilityEvent) error {
	var geomErr error
	err := c.update(func() (bool, error) {
		target, terr := geospatial.TrailTarget(t.Path, method)

		mode := domain.CameraZoomIn
		if c.sel.Trail != nil && c.sel.Trail.ID == t.ID {
			c.sel.Trail = nil
			c.vis = applyVisibility(c.vis, onDeselect, c.sel.Trail != nil)
			mode = domain.CameraZoomOut
		} else {
			c.sel.Trail = &t
			c.vis = applyVisibility(c.vis, onSelect, c.sel.Trail != nil)
		}

		if terr != nil {
			geomErr = fmt.Errorf("trail %d: %w", t.ID, terr)
			c.lastErr = geomErr
			return true, geomErr
		}
		c.moveCameraLocked(target, mode)
		return true, nil
	})
	if geomErr != nil {
		c.log.Warn("trail has no path, camera not moved",
			"trail_id", t.ID, "method", method.String())
	}
	return err
}

// ClearTrail deselects the trail, as closing the detail card does, and zooms
// out over the centre of its bounding box. A trail without a path is still
// cleared; the camera stays put and ErrInvalidGeometry is returned.
func (c *Coordinator) ClearTrail() error {
	var geomErr error
	var trailID int64
	err := c.update(func() (bool, error) {
		if c.sel.Trail == nil {
			return false, nil
		}
		trailID = c.sel.Trail.ID
		target, terr := geospatial.TrailTarget(c.sel.Trail.Path, geospatial.ByBoundingBox)
		c.sel.Trail = nil
		c.vis = applyVisibility(c.vis, visCloseDetailCard, false)
		if terr != nil {
			geomErr = fmt.Errorf("trail %d: %w", trailID, terr)
			c.lastErr = geomErr
			return true, geomErr
		}
		c.moveCameraLocked(target, domain.CameraZoomOut)
		return true, nil
	})
	if geomErr != nil {
		c.log.Warn("trail has no path, camera not moved",
			"trail_id", trailID, "method", geospatial.ByBoundingBox.String())
	}
	return err
}

func (c *Coordinator) trailByID(id int64) (domain.Trail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.collection {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Trail{}, fmt.Errorf("trail %d: %w", id, domain.ErrUnknownTrail)
}

// --- Panels ---

func (c *Coordinator) ToggleSidebar() {
	_ = c.update(func() (bool, error) {
		c.vis = applyVisibility(c.vis, visToggleSidebar, c.sel.Trail != nil)
		return true, nil
	})
}

// ToggleTrailList flips the trail list. It requires a search to have been
// launched for the current stop.
func (c *Coordinator) ToggleTrailList() error {
	return c.update(func() (bool, error) {
		if !c.vis.AllTrails {
			return false, fmt.Errorf("toggle trail list without results: %w", domain.ErrPreconditionFailed)
		}
		c.vis = applyVisibility(c.vis, visToggleTrailList, c.sel.Trail != nil)
		return true, nil
	})
}

// --- Filters ---

func (c *Coordinator) SetRadius(km float64) {
	_ = c.update(func() (bool, error) { return c.filters.SetRadius(km), nil })
}

func (c *Coordinator) SetDifficulty(d domain.Difficulty) {
	_ = c.update(func() (bool, error) { return c.filters.SetDifficulty(d), nil })
}

func (c *Coordinator) SetMaxDuration(hours, minutes int) {
	_ = c.update(func() (bool, error) { return c.filters.SetMaxDuration(hours, minutes), nil })
}

func (c *Coordinator) SetCircularOnly(on bool) {
	_ = c.update(func() (bool, error) { return c.filters.SetCircularOnly(on), nil })
}

// --- Stops ---

// DiscoverStops replaces the stop list with the stops within rangeKm of
// (lon, lat). Zero coordinates mean Home; a zero range means the configured
// default. The current selection is left alone.
func (c *Coordinator) DiscoverStops(ctx context.Context, lon, lat, rangeKm float64) ([]domain.Stop, error) {
	if lon == 0 && lat == 0 {
		lon, lat = c.opts.Home.Lon, c.opts.Home.Lat
	}
	if rangeKm <= 0 {
		rangeKm = c.opts.StopRangeKm
	}

	ctx, span := c.tracer.Start(ctx, telemetry.SpanDiscoverStops, trace.WithAttributes(
		attribute.Float64("lon", lon),
		attribute.Float64("lat", lat),
		attribute.Float64("range_km", rangeKm),
	))
	defer span.End()

	stops, err := c.stops.FindStops(ctx, lon, lat, rangeKm)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.opts.Metrics.StopDiscovery(OutcomeFailed)
		c.log.Warn("stop discovery failed", "error", err)
		return nil, fmt.Errorf("discover stops: %w", err)
	}

	origin := domain.GeoPoint{Lat: lat, Lon: lon}
	for i := range stops {
		if stops[i].Distance == nil {
			d := geospatial.Distance(origin, stops[i].Location)
			stops[i].Distance = &d
		}
	}
	span.SetAttributes(attribute.Int("stops", len(stops)))
	c.opts.Metrics.StopDiscovery(OutcomeApplied)

	_ = c.update(func() (bool, error) {
		c.stopList = stops
		return true, nil
	})
	return stops, nil
}

// --- Search ---

// Search launches a trail search around the selected stop using the current
// radius. It returns domain.ErrNoStopSelected without side effects when no
// stop is selected. The search outlives ctx; it is bounded by the configured
// timeout and by Close.
func (c *Coordinator) Search(ctx context.Context) (*PendingSearch, error) {
	var (
		p      *PendingSearch
		stop   domain.Stop
		radius float64
	)
	err := c.update(func() (bool, error) {
		if c.sel.Stop == nil {
			return false, domain.ErrNoStopSelected
		}
		stop = *c.sel.Stop
		radius = c.filters.Value().RadiusKm
		c.token++
		p = &PendingSearch{
			ID:     uuid.NewString(),
			Token:  c.token,
			StopID: stop.ID,
			done:   make(chan struct{}),
		}
		c.inflight++
		c.vis = applyVisibility(c.vis, visSearch, c.sel.Trail != nil)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	c.opts.Metrics.SearchStarted()
	c.log.Info("trail search started",
		"search_id", p.ID, "token", p.Token, "stop_id", stop.ID, "radius_km", radius)

	c.wg.Add(1)
	go c.runSearch(context.WithoutCancel(ctx), p, stop, radius)
	return p, nil
}

func (c *Coordinator) runSearch(ctx context.Context, p *PendingSearch, stop domain.Stop, radiusKm float64) {
	defer c.wg.Done()
	defer close(p.done)

	ctx, span := c.tracer.Start(ctx, telemetry.SpanSearch, trace.WithAttributes(
		attribute.String("search.id", p.ID),
		attribute.Int64("search.token", int64(p.Token)),
		attribute.Int64("stop.id", stop.ID),
		attribute.Float64("search.radius_km", radiusKm),
	))
	defer span.End()

	start := c.opts.Now()
	trails, fetchErr := c.fetch(ctx, stop, radiusKm)
	elapsed := c.opts.Now().Sub(start)

	var outcome string
	_ = c.update(func() (bool, error) {
		c.inflight--
		outcome = c.applyLocked(p, trails, fetchErr)
		return true, nil
	})

	ev := ports.SearchEvent{
		SearchID:   p.ID,
		Token:      p.Token,
		StopID:     stop.ID,
		RadiusKm:   radiusKm,
		Trails:     len(trails),
		Outcome:    outcome,
		DurationMs: elapsed.Milliseconds(),
	}
	log := c.log.With("search_id", p.ID, "token", p.Token, "duration_ms", ev.DurationMs)
	switch outcome {
	case OutcomeFailed:
		ev.Error = fetchErr.Error()
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, fetchErr.Error())
		log.Warn("trail search failed", "error", fetchErr)
	case OutcomeStale:
		log.Info("stale trail search discarded")
	default:
		span.SetAttributes(attribute.Int("search.trails", len(trails)))
		log.Info("trail search applied", "trails", len(trails))
	}
	span.SetAttributes(attribute.String("search.outcome", outcome))
	c.opts.Metrics.SearchFinished(outcome, elapsed)

	if c.opts.Publisher != nil {
		if err := c.opts.Publisher.PublishSearch(ctx, ev); err != nil {
			log.Warn("publish search event", "error", err)
		}
	}
}

// applyLocked installs the result of p unless a newer search or a stop
// change has fenced it off.
func (c *Coordinator) applyLocked(p *PendingSearch, trails []domain.Trail, fetchErr error) string {
	if c.opts.FenceSearches && (p.Token != c.token || p.Token <= c.fenceFloor) {
		p.err = domain.ErrStaleSearch
		return OutcomeStale
	}

	if fetchErr != nil {
		failed := &domain.SearchFailedError{Token: p.Token, Err: fetchErr}
		p.err = failed
		c.lastErr = failed
		return OutcomeFailed
	}

	c.collection = trails
	c.lastErr = nil
	if c.sel.Trail != nil && !containsTrail(trails, c.sel.Trail.ID) {
		c.sel.Trail = nil
		c.vis = applyVisibility(c.vis, visCloseDetailCard, false)
	}
	return OutcomeApplied
}

func (c *Coordinator) fetch(ctx context.Context, stop domain.Stop, radiusKm float64) ([]domain.Trail, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SearchTimeout)
	defer cancel()
	stopAfter := context.AfterFunc(c.base, cancel)
	defer stopAfter()

	type result struct {
		trails []domain.Trail
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		t, err := c.trails.SearchTrails(ctx, stop.Location.Lon, stop.Location.Lat, radiusKm)
		ch <- result{trails: t, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domain.ErrSearchTimeout, r.err)
		}
		return r.trails, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("after %s: %w", c.opts.SearchTimeout, domain.ErrSearchTimeout)
		}
		return nil, ctx.Err()
	}
}

func containsTrail(trails []domain.Trail, id int64) bool {
	for _, t := range trails {
		if t.ID == id {
			return true
		}
	}
	return false
}

// --- internals ---

// fenceLocked invalidates every search issued so far.
func (c *Coordinator) fenceLocked() {
	c.fenceFloor = c.token
}

func (c *Coordinator) moveCameraLocked(target domain.GeoPoint, mode domain.CameraMode) {
	c.cameraSeq++
	t := newTransition(c.cameraSeq, target, mode, c.opts.TransitionDuration)
	c.transition = &t
	c.camera = t.Pose
}

// update runs fn under the lock. When fn reports a change the version is
// bumped and listeners receive the new snapshot after the lock is released.
// An update that loses the race to notify is dropped: its listeners have
// already seen a newer snapshot.
func (c *Coordinator) update(fn func() (changed bool, err error)) error {
	c.mu.Lock()
	changed, err := fn()
	if !changed {
		c.mu.Unlock()
		return err
	}
	c.version++
	snap := c.snapshotLocked()
	ls := slices.Clone(c.listeners)
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Version <= c.delivered {
		return err
	}
	c.delivered = snap.Version
	for _, l := range ls {
		l.fn(snap)
	}
	return err
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:    c.version,
		Visibility: c.vis,
		Camera:     c.camera,
		Filters:    c.filters.Value(),
		Loading:    c.inflight > 0,
		InFlight:   c.inflight,
		Trails:     c.collection,
		Stops:      c.stopList,
		Err:        c.lastErr,
	}
	if c.sel.Stop != nil {
		st := *c.sel.Stop
		s.Selection.Stop = &st
		area := geospatial.BoundingBox(st.Location.Lat, st.Location.Lon, s.Filters.RadiusKm*1000)
		s.SearchArea = &area
	}
	if c.sel.Trail != nil {
		tr := *c.sel.Trail
		s.Selection.Trail = &tr
		if len(tr.Path) > 0 {
			area := geospatial.PathBounds(tr.Path)
			s.TrailArea = &area
		}
	}
	if c.transition != nil {
		t := *c.transition
		s.Transition = &t
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}
