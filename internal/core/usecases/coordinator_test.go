package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/core/ports"
	"github.com/Hogigo/Bus2Hike/internal/core/usecases"
	"github.com/Hogigo/Bus2Hike/internal/pkg/geospatial"
	"github.com/Hogigo/Bus2Hike/internal/pkg/metrics"
)

// --- Mock TrailSearcher ---

type mockTrailSearcher struct {
	searchFn func(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error)
}

func (m *mockTrailSearcher) SearchTrails(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, lon, lat, radiusKm)
	}
	return nil, nil
}

// scriptedSearcher hands every call to the test, which decides when and
// how it completes.
type scriptedSearcher struct {
	calls chan *searchCall
}

type searchCall struct {
	lon, lat, radiusKm float64
	reply              chan searchReply
}

type searchReply struct {
	trails []domain.Trail
	err    error
}

func newScriptedSearcher() *scriptedSearcher {
	return &scriptedSearcher{calls: make(chan *searchCall, 8)}
}

func (s *scriptedSearcher) SearchTrails(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
	c := &searchCall{lon: lon, lat: lat, radiusKm: radiusKm, reply: make(chan searchReply, 1)}
	s.calls <- c
	select {
	case r := <-c.reply:
		return r.trails, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedSearcher) next(t *testing.T) *searchCall {
	t.Helper()
	select {
	case c := <-s.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("searcher was not called")
		return nil
	}
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu     sync.Mutex
	events []ports.SearchEvent
}

func (m *mockPublisher) PublishSearch(ctx context.Context, ev ports.SearchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) PublishState(ctx context.Context, data []byte) error { return nil }

// --- Fixtures ---

var (
	stopS1 = domain.Stop{ID: 1, Name: "Bolzano Stazione", Location: bolzano}
	stopS2 = domain.Stop{ID: 2, Name: "Merano Stazione", Location: merano}

	trailT1 = domain.Trail{
		ID: 11, Name: "Passeggiata del Guncina", Circular: true,
		Path: []domain.GeoPoint{
			{Lat: 46.50, Lon: 11.30},
			{Lat: 46.51, Lon: 11.31},
			{Lat: 46.52, Lon: 11.32},
			{Lat: 46.53, Lon: 11.30},
		},
	}
	trailT2 = domain.Trail{
		ID: 12, Name: "Oswaldpromenade",
		Path: []domain.GeoPoint{
			{Lat: 46.49, Lon: 11.36},
			{Lat: 46.50, Lon: 11.37},
		},
	}
	trailT3 = domain.Trail{
		ID: 13, Name: "Colle",
		Path: []domain.GeoPoint{{Lat: 46.47, Lon: 11.33}},
	}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T, trails ports.TrailSearcher, configure func(*usecases.Options)) *usecases.Coordinator {
	t.Helper()
	opts := usecases.DefaultOptions()
	opts.Logger = quietLogger()
	if configure != nil {
		configure(&opts)
	}
	c := usecases.NewCoordinator(trails, &mockStopFinder{}, opts)
	t.Cleanup(c.Close)
	return c
}

func returning(trails ...domain.Trail) *mockTrailSearcher {
	return &mockTrailSearcher{
		searchFn: func(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
			return trails, nil
		},
	}
}

func waitSearch(t *testing.T, p *usecases.PendingSearch) error {
	t.Helper()
	select {
	case <-p.Done():
		return p.Err()
	case <-time.After(2 * time.Second):
		t.Fatal("search did not finish")
		return nil
	}
}

func mustSearch(t *testing.T, c *usecases.Coordinator) *usecases.PendingSearch {
	t.Helper()
	p, err := c.Search(context.Background())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	return p
}

func trailIDs(trails []domain.Trail) []int64 {
	ids := make([]int64, 0, len(trails))
	for _, t := range trails {
		ids = append(ids, t.ID)
	}
	return ids
}

func checkPanelInvariant(t *testing.T, v domain.Visibility) {
	t.Helper()
	if v.TrailList && (v.DetailCard || v.SearchArea) {
		t.Fatalf("trail list open with detail card or search area visible: %+v", v)
	}
}

// --- Tests ---

func TestCoordinator_InitialState(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)
	s := c.Snapshot()

	want := domain.Visibility{Sidebar: true, SearchArea: true}
	if diff := cmp.Diff(want, s.Visibility); diff != "" {
		t.Errorf("visibility mismatch (-want +got):\n%s", diff)
	}
	if s.Selection.Stop != nil || s.Selection.Trail != nil {
		t.Errorf("expected empty selection, got %+v", s.Selection)
	}
	home := domain.GeoPoint{Lat: usecases.DefaultHomeLat, Lon: usecases.DefaultHomeLon}
	if diff := cmp.Diff(usecases.ComputePose(home, domain.CameraZoomOut), s.Camera); diff != "" {
		t.Errorf("camera mismatch (-want +got):\n%s", diff)
	}
	if s.Transition != nil {
		t.Errorf("expected no transition, got %+v", s.Transition)
	}
	if s.Loading || s.Version != 0 {
		t.Errorf("expected idle version 0, got loading=%v version=%d", s.Loading, s.Version)
	}
	if s.Filters.RadiusKm != usecases.DefaultRadiusKm || s.Filters.Difficulty != domain.DifficultyAny {
		t.Errorf("unexpected filters %+v", s.Filters)
	}
}

func TestSelectStop_ClearsTrailAndCollection(t *testing.T) {
	c := newTestCoordinator(t, returning(trailT1, trailT2), nil)

	for i, stop := range []domain.Stop{stopS1, stopS2, stopS1, stopS2} {
		if err := c.SelectStop(stop); err != nil {
			t.Fatalf("step %d: select stop: %v", i, err)
		}
		s := c.Snapshot()
		if s.Selection.Trail != nil {
			t.Fatalf("step %d: expected no trail, got %+v", i, s.Selection.Trail)
		}
		if len(s.Trails) != 0 {
			t.Fatalf("step %d: expected empty collection, got %v", i, trailIDs(s.Trails))
		}
		if s.Selection.Stop == nil || s.Selection.Stop.ID != stop.ID {
			t.Fatalf("step %d: expected stop %d selected", i, stop.ID)
		}
		if s.Visibility.AllTrails || s.Visibility.TrailList {
			t.Fatalf("step %d: expected trail panels closed, got %+v", i, s.Visibility)
		}
		if s.Transition == nil || s.Transition.Mode != domain.CameraZoomIn || s.Camera.Center != stop.Location {
			t.Fatalf("step %d: expected zoom-in on stop, got %+v", i, s.Transition)
		}

		// populate collection and selection before the next stop change
		if err := waitSearch(t, mustSearch(t, c)); err != nil {
			t.Fatalf("step %d: search: %v", i, err)
		}
		if err := c.SelectTrailFromMap(trailT1); err != nil {
			t.Fatalf("step %d: select trail: %v", i, err)
		}
	}
}

func TestSelectStop_SameStopIsNoop(t *testing.T) {
	c := newTestCoordinator(t, returning(trailT1), nil)
	_ = c.SelectStop(stopS1)
	_ = waitSearch(t, mustSearch(t, c))
	before := c.Snapshot()

	if err := c.SelectStop(stopS1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := c.Snapshot()
	if after.Version != before.Version {
		t.Errorf("expected version %d, got %d", before.Version, after.Version)
	}
	if diff := cmp.Diff(trailIDs(before.Trails), trailIDs(after.Trails)); diff != "" {
		t.Errorf("collection changed (-before +after):\n%s", diff)
	}
}

func TestSelectTrail_ToggleLaw(t *testing.T) {
	type selectFn func(c *usecases.Coordinator, tr domain.Trail) error
	fromList := func(c *usecases.Coordinator, tr domain.Trail) error { return c.SelectTrailFromList(tr) }
	fromMap := func(c *usecases.Coordinator, tr domain.Trail) error { return c.SelectTrailFromMap(tr) }

	afterSearch := func(t *testing.T, c *usecases.Coordinator) {
		_ = c.SelectStop(stopS1)
		_ = waitSearch(t, mustSearch(t, c))
	}
	listOpen := func(t *testing.T, c *usecases.Coordinator) {
		afterSearch(t, c)
		if err := c.ToggleTrailList(); err != nil {
			t.Fatalf("open list: %v", err)
		}
	}

	tests := []struct {
		name   string
		setup  func(t *testing.T, c *usecases.Coordinator)
		sel    selectFn
		method geospatial.TargetMethod
	}{
		{"list after search", afterSearch, fromList, geospatial.ByIndex},
		{"list from launch", func(*testing.T, *usecases.Coordinator) {}, fromList, geospatial.ByIndex},
		{"map from launch", func(*testing.T, *usecases.Coordinator) {}, fromMap, geospatial.ByBoundingBox},
		{"map after search", afterSearch, fromMap, geospatial.ByBoundingBox},
		{"map with trail list open", listOpen, fromMap, geospatial.ByBoundingBox},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(t, returning(trailT1, trailT2), nil)
			tt.setup(t, c)
			before := c.Snapshot()

			if err := tt.sel(c, trailT1); err != nil {
				t.Fatalf("first select: %v", err)
			}
			mid := c.Snapshot()
			if mid.Selection.Trail == nil || mid.Selection.Trail.ID != trailT1.ID {
				t.Fatalf("expected T1 selected, got %+v", mid.Selection.Trail)
			}
			if err := tt.sel(c, trailT1); err != nil {
				t.Fatalf("second select: %v", err)
			}
			after := c.Snapshot()

			if diff := cmp.Diff(before.Selection, after.Selection); diff != "" {
				t.Errorf("selection differs (-before +after):\n%s", diff)
			}
			if diff := cmp.Diff(before.Visibility, after.Visibility); diff != "" {
				t.Errorf("visibility differs (-before +after):\n%s", diff)
			}

			target, _ := geospatial.TrailTarget(trailT1.Path, tt.method)
			if mid.Transition.Mode != domain.CameraZoomIn || mid.Camera.Center != target {
				t.Errorf("expected zoom-in on %v, got %+v", target, mid.Transition)
			}
			if after.Transition.Mode != domain.CameraZoomOut || after.Camera.Center != target {
				t.Errorf("expected zoom-out on %v, got %+v", target, after.Transition)
			}
			if after.Transition.Seq != mid.Transition.Seq+1 {
				t.Errorf("expected consecutive transitions, got %d then %d", mid.Transition.Seq, after.Transition.Seq)
			}
		})
	}
}

// A list row closes the list, so from the list the toggle law is checked
// only while the list is closed. Another selected trail is replaced by the
// first call and cannot come back, so prefixes leave either nothing or T1
// selected.
func TestSelectTrail_ToggleLawAfterRandomGestures(t *testing.T) {
	prefix := []func(c *usecases.Coordinator) error{
		func(c *usecases.Coordinator) error { return c.SelectStop(stopS1) },
		func(c *usecases.Coordinator) error { return c.SelectStop(stopS2) },
		func(c *usecases.Coordinator) error { return c.ClearStop() },
		func(c *usecases.Coordinator) error {
			p, err := c.Search(context.Background())
			if err != nil {
				return err
			}
			<-p.Done()
			return p.Err()
		},
		func(c *usecases.Coordinator) error { return c.ToggleTrailList() },
		func(c *usecases.Coordinator) error { c.ToggleSidebar(); return nil },
		func(c *usecases.Coordinator) error { return c.SelectTrailFromMap(trailT1) },
		func(c *usecases.Coordinator) error { return c.SelectTrailFromMap(trailT2) },
		func(c *usecases.Coordinator) error { return c.SelectTrailFromList(trailT1) },
		func(c *usecases.Coordinator) error { return c.SelectTrailFromList(trailT2) },
		func(c *usecases.Coordinator) error { return c.ClearTrail() },
	}
	sites := map[string]func(c *usecases.Coordinator, tr domain.Trail) error{
		"list": func(c *usecases.Coordinator, tr domain.Trail) error { return c.SelectTrailFromList(tr) },
		"map":  func(c *usecases.Coordinator, tr domain.Trail) error { return c.SelectTrailFromMap(tr) },
	}
	rng := rand.New(rand.NewSource(7))

	for name, sel := range sites {
		checked := 0
		for run := 0; run < 200; run++ {
			c := newTestCoordinator(t, returning(trailT1, trailT2), nil)
			steps := rng.Intn(12)
			for i := 0; i < steps; i++ {
				_ = prefix[rng.Intn(len(prefix))](c)
			}

			before := c.Snapshot()
			if tr := before.Selection.Trail; tr != nil && tr.ID != trailT1.ID {
				continue
			}
			if name == "list" && before.Visibility.TrailList {
				continue
			}
			checked++

			_ = sel(c, trailT1)
			_ = sel(c, trailT1)
			after := c.Snapshot()

			if diff := cmp.Diff(before.Selection, after.Selection); diff != "" {
				t.Fatalf("%s run %d: selection differs (-before +after):\n%s", name, run, diff)
			}
			if diff := cmp.Diff(before.Visibility, after.Visibility); diff != "" {
				t.Fatalf("%s run %d: visibility differs (-before +after):\n%s", name, run, diff)
			}
		}
		if checked < 50 {
			t.Errorf("%s: only %d runs reached a checkable state", name, checked)
		}
	}
}

func TestScenario_SelectFromListAfterSearch(t *testing.T) {
	s := newScriptedSearcher()
	c := newTestCoordinator(t, s, nil)

	if err := c.SelectStop(stopS1); err != nil {
		t.Fatalf("select stop: %v", err)
	}
	c.SetRadius(10)
	p := mustSearch(t, c)

	call := s.next(t)
	if call.radiusKm != 10 || call.lon != stopS1.Location.Lon || call.lat != stopS1.Location.Lat {
		t.Fatalf("unexpected query %+v", call)
	}
	if !c.Snapshot().Loading {
		t.Error("expected loading while search is in flight")
	}
	call.reply <- searchReply{trails: []domain.Trail{trailT1, trailT2}}
	if err := waitSearch(t, p); err != nil {
		t.Fatalf("search: %v", err)
	}

	if err := c.SelectTrailFromListByID(trailT1.ID); err != nil {
		t.Fatalf("select from list: %v", err)
	}

	got := c.Snapshot()
	if got.Selection.Trail == nil || got.Selection.Trail.ID != trailT1.ID {
		t.Fatalf("expected T1 selected, got %+v", got.Selection.Trail)
	}
	wantVis := domain.Visibility{Sidebar: true, AllTrails: true, TrailList: false, DetailCard: true, SearchArea: true}
	if diff := cmp.Diff(wantVis, got.Visibility); diff != "" {
		t.Errorf("visibility mismatch (-want +got):\n%s", diff)
	}
	mid, _ := geospatial.MidpointByIndex(trailT1.Path)
	if diff := cmp.Diff(usecases.ComputePose(mid, domain.CameraZoomIn), got.Camera); diff != "" {
		t.Errorf("camera mismatch (-want +got):\n%s", diff)
	}
	if got.Loading {
		t.Error("expected loading to be false")
	}
}

func TestSearch_NoStopSelected(t *testing.T) {
	called := false
	c := newTestCoordinator(t, &mockTrailSearcher{
		searchFn: func(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
			called = true
			return nil, nil
		},
	}, nil)

	p, err := c.Search(context.Background())
	if !errors.Is(err, domain.ErrNoStopSelected) {
		t.Fatalf("expected ErrNoStopSelected, got %v", err)
	}
	if p != nil {
		t.Error("expected no pending search")
	}
	s := c.Snapshot()
	if s.Version != 0 || s.Visibility.AllTrails || s.Loading {
		t.Errorf("expected no state change, got %+v", s)
	}
	if called {
		t.Error("searcher must not be called")
	}
}

func overlappingSearches(t *testing.T, fenced, radius50Last bool) usecases.Snapshot {
	t.Helper()
	s := newScriptedSearcher()
	c := newTestCoordinator(t, s, func(o *usecases.Options) { o.FenceSearches = fenced })
	_ = c.SelectStop(stopS1)

	c.SetRadius(5)
	p5 := mustSearch(t, c)
	call5 := s.next(t)
	c.SetRadius(50)
	p50 := mustSearch(t, c)
	call50 := s.next(t)

	if call5.radiusKm != 5 || call50.radiusKm != 50 {
		t.Fatalf("unexpected radii %v, %v", call5.radiusKm, call50.radiusKm)
	}

	r5 := searchReply{trails: []domain.Trail{trailT1}}
	r50 := searchReply{trails: []domain.Trail{trailT1, trailT2, trailT3}}
	if radius50Last {
		call5.reply <- r5
		waitSearch(t, p5)
		call50.reply <- r50
		waitSearch(t, p50)
	} else {
		call50.reply <- r50
		waitSearch(t, p50)
		call5.reply <- r5
		waitSearch(t, p5)
	}
	return c.Snapshot()
}

func TestSearch_OverlappingFenced(t *testing.T) {
	for _, radius50Last := range []bool{true, false} {
		t.Run(fmt.Sprintf("radius50Last=%v", radius50Last), func(t *testing.T) {
			s := overlappingSearches(t, true, radius50Last)
			if diff := cmp.Diff([]int64{11, 12, 13}, trailIDs(s.Trails)); diff != "" {
				t.Errorf("expected the last issued result (-want +got):\n%s", diff)
			}
			if s.Loading || s.InFlight != 0 {
				t.Errorf("expected idle, got in_flight=%d", s.InFlight)
			}
		})
	}
}

func TestSearch_OverlappingUnfenced_KnownRace(t *testing.T) {
	s := overlappingSearches(t, false, true)
	if diff := cmp.Diff([]int64{11, 12, 13}, trailIDs(s.Trails)); diff != "" {
		t.Errorf("radius-50 arriving last should win (-want +got):\n%s", diff)
	}

	s = overlappingSearches(t, false, false)
	if diff := cmp.Diff([]int64{11}, trailIDs(s.Trails)); diff != "" {
		t.Errorf("last completion wins without fencing (-want +got):\n%s", diff)
	}
}

func TestSearch_StaleResultReported(t *testing.T) {
	s := newScriptedSearcher()
	pub := &mockPublisher{}
	c := newTestCoordinator(t, s, func(o *usecases.Options) { o.Publisher = pub })
	_ = c.SelectStop(stopS1)

	p1 := mustSearch(t, c)
	call1 := s.next(t)
	p2 := mustSearch(t, c)
	call2 := s.next(t)

	call2.reply <- searchReply{trails: []domain.Trail{trailT2}}
	if err := waitSearch(t, p2); err != nil {
		t.Fatalf("latest search: %v", err)
	}
	call1.reply <- searchReply{trails: []domain.Trail{trailT1}}
	if err := waitSearch(t, p1); !errors.Is(err, domain.ErrStaleSearch) {
		t.Fatalf("expected ErrStaleSearch, got %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	if pub.events[0].Outcome != usecases.OutcomeApplied || pub.events[1].Outcome != usecases.OutcomeStale {
		t.Errorf("unexpected outcomes %q, %q", pub.events[0].Outcome, pub.events[1].Outcome)
	}
	if pub.events[0].SearchID != p2.ID || pub.events[0].Token != p2.Token {
		t.Errorf("event does not identify the search: %+v", pub.events[0])
	}
}

func TestSearch_StopChangedDuringSearch_Fenced(t *testing.T) {
	s := newScriptedSearcher()
	c := newTestCoordinator(t, s, nil)
	_ = c.SelectStop(stopS1)
	p := mustSearch(t, c)
	call := s.next(t)

	_ = c.SelectStop(stopS2)
	call.reply <- searchReply{trails: []domain.Trail{trailT1, trailT2}}
	if err := waitSearch(t, p); !errors.Is(err, domain.ErrStaleSearch) {
		t.Fatalf("expected ErrStaleSearch, got %v", err)
	}

	got := c.Snapshot()
	if got.Selection.Stop.ID != stopS2.ID {
		t.Errorf("expected S2 selected, got %d", got.Selection.Stop.ID)
	}
	if len(got.Trails) != 0 {
		t.Errorf("S1 trails leaked into S2 selection: %v", trailIDs(got.Trails))
	}
	if got.Loading {
		t.Error("expected loading to be false")
	}
}

func TestSearch_StopChangedDuringSearch_KnownRace(t *testing.T) {
	s := newScriptedSearcher()
	c := newTestCoordinator(t, s, func(o *usecases.Options) { o.FenceSearches = false })
	_ = c.SelectStop(stopS1)
	p := mustSearch(t, c)
	call := s.next(t)

	_ = c.SelectStop(stopS2)
	call.reply <- searchReply{trails: []domain.Trail{trailT1, trailT2}}
	if err := waitSearch(t, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := c.Snapshot()
	if got.Selection.Stop.ID != stopS2.ID {
		t.Errorf("expected S2 selected, got %d", got.Selection.Stop.ID)
	}
	if diff := cmp.Diff([]int64{11, 12}, trailIDs(got.Trails)); diff != "" {
		t.Errorf("without fencing the S1 result is applied (-want +got):\n%s", diff)
	}
}

func TestSearch_ClearStopFencesInFlight(t *testing.T) {
	s := newScriptedSearcher()
	c := newTestCoordinator(t, s, nil)
	_ = c.SelectStop(stopS1)
	p := mustSearch(t, c)
	call := s.next(t)

	if err := c.ClearStop(); err != nil {
		t.Fatalf("clear stop: %v", err)
	}
	call.reply <- searchReply{trails: []domain.Trail{trailT1}}
	if err := waitSearch(t, p); !errors.Is(err, domain.ErrStaleSearch) {
		t.Fatalf("expected ErrStaleSearch, got %v", err)
	}
	if got := c.Snapshot(); len(got.Trails) != 0 {
		t.Errorf("expected empty collection, got %v", trailIDs(got.Trails))
	}
}

func TestSearch_FailureKeepsCollection(t *testing.T) {
	fail := false
	c := newTestCoordinator(t, &mockTrailSearcher{
		searchFn: func(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
			if fail {
				return nil, fmt.Errorf("GET /hikes: %w", domain.ErrTransport)
			}
			return []domain.Trail{trailT1, trailT2}, nil
		},
	}, nil)
	_ = c.SelectStop(stopS1)
	if err := waitSearch(t, mustSearch(t, c)); err != nil {
		t.Fatalf("first search: %v", err)
	}

	fail = true
	p := mustSearch(t, c)
	err := waitSearch(t, p)

	var failed *domain.SearchFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected SearchFailedError, got %v", err)
	}
	if failed.Token != p.Token || !errors.Is(err, domain.ErrTransport) {
		t.Errorf("unexpected failure %v", failed)
	}

	got := c.Snapshot()
	if diff := cmp.Diff([]int64{11, 12}, trailIDs(got.Trails)); diff != "" {
		t.Errorf("collection changed on failure (-want +got):\n%s", diff)
	}
	if got.LastError == "" || !errors.Is(got.Err, domain.ErrTransport) {
		t.Errorf("expected last error to be recorded, got %q", got.LastError)
	}
	if got.Loading {
		t.Error("expected loading to be false")
	}

	fail = false
	_ = waitSearch(t, mustSearch(t, c))
	if got := c.Snapshot(); got.LastError != "" {
		t.Errorf("expected success to clear last error, got %q", got.LastError)
	}
}

func TestSearch_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestCoordinator(t, &mockTrailSearcher{
		searchFn: func(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
			<-release
			return []domain.Trail{trailT1}, nil
		},
	}, func(o *usecases.Options) { o.SearchTimeout = 20 * time.Millisecond })
	t.Cleanup(func() { close(release) })

	_ = c.SelectStop(stopS1)
	err := waitSearch(t, mustSearch(t, c))
	if !errors.Is(err, domain.ErrSearchTimeout) {
		t.Fatalf("expected ErrSearchTimeout, got %v", err)
	}
	var failed *domain.SearchFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected SearchFailedError, got %T", err)
	}

	got := c.Snapshot()
	if got.Loading || len(got.Trails) != 0 {
		t.Errorf("expected idle empty collection, got loading=%v trails=%v", got.Loading, trailIDs(got.Trails))
	}
	if !errors.Is(got.Err, domain.ErrSearchTimeout) {
		t.Errorf("expected timeout recorded, got %v", got.Err)
	}
}

func TestSearch_ContextDeadlineFromSearcher(t *testing.T) {
	c := newTestCoordinator(t, &mockTrailSearcher{
		searchFn: func(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
			<-ctx.Done()
			return nil, fmt.Errorf("GET /hikes: %w", ctx.Err())
		},
	}, func(o *usecases.Options) { o.SearchTimeout = 10 * time.Millisecond })

	_ = c.SelectStop(stopS1)
	if err := waitSearch(t, mustSearch(t, c)); !errors.Is(err, domain.ErrSearchTimeout) {
		t.Fatalf("expected ErrSearchTimeout, got %v", err)
	}
}

func TestSearch_OutlivesCallerContext(t *testing.T) {
	s := newScriptedSearcher()
	c := newTestCoordinator(t, s, nil)
	_ = c.SelectStop(stopS1)

	ctx, cancel := context.WithCancel(context.Background())
	p, err := c.Search(ctx)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	call := s.next(t)
	cancel()

	call.reply <- searchReply{trails: []domain.Trail{trailT1}}
	if err := waitSearch(t, p); err != nil {
		t.Fatalf("expected search to complete, got %v", err)
	}
}

func TestSearch_ClearsMissingSelectedTrail(t *testing.T) {
	results := [][]domain.Trail{{trailT1, trailT2}, {trailT2, trailT3}, {trailT2}}
	i := 0
	c := newTestCoordinator(t, &mockTrailSearcher{
		searchFn: func(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
			r := results[i]
			i++
			return r, nil
		},
	}, nil)
	_ = c.SelectStop(stopS1)

	_ = waitSearch(t, mustSearch(t, c))
	_ = c.SelectTrailFromMapByID(trailT2.ID)

	_ = waitSearch(t, mustSearch(t, c))
	if got := c.Snapshot(); got.Selection.Trail == nil || got.Selection.Trail.ID != trailT2.ID {
		t.Fatalf("expected T2 to stay selected, got %+v", got.Selection.Trail)
	}

	_ = c.SelectTrailFromMapByID(trailT3.ID)
	_ = waitSearch(t, mustSearch(t, c))
	if got := c.Snapshot(); got.Selection.Trail != nil {
		t.Fatalf("expected T3 to be cleared, got %+v", got.Selection.Trail)
	}
}

func TestSearch_LoadingWhileAnyInFlight(t *testing.T) {
	s := newScriptedSearcher()
	c := newTestCoordinator(t, s, nil)
	_ = c.SelectStop(stopS1)

	p1 := mustSearch(t, c)
	call1 := s.next(t)
	p2 := mustSearch(t, c)
	call2 := s.next(t)
	if got := c.Snapshot(); got.InFlight != 2 || !got.Loading {
		t.Fatalf("expected 2 in flight, got %d", got.InFlight)
	}

	call2.reply <- searchReply{}
	waitSearch(t, p2)
	if got := c.Snapshot(); !got.Loading {
		t.Error("expected loading while the older search is still in flight")
	}
	call1.reply <- searchReply{}
	waitSearch(t, p1)
	if got := c.Snapshot(); got.Loading {
		t.Error("expected loading to be false")
	}
}

func TestSearch_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	col, err := metrics.NewExplorerCollector(reg)
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	fail := false
	c := newTestCoordinator(t, &mockTrailSearcher{
		searchFn: func(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
			if fail {
				return nil, domain.ErrDecode
			}
			return []domain.Trail{trailT1}, nil
		},
	}, func(o *usecases.Options) { o.Metrics = col })

	_ = c.SelectStop(stopS1)
	_ = waitSearch(t, mustSearch(t, c))
	fail = true
	_ = waitSearch(t, mustSearch(t, c))

	if got := testutil.ToFloat64(col.Searches.WithLabelValues(usecases.OutcomeApplied)); got != 1 {
		t.Errorf("expected 1 applied search, got %v", got)
	}
	if got := testutil.ToFloat64(col.Searches.WithLabelValues(usecases.OutcomeFailed)); got != 1 {
		t.Errorf("expected 1 failed search, got %v", got)
	}
	if got := testutil.ToFloat64(col.SearchesInFlight); got != 0 {
		t.Errorf("expected no search in flight, got %v", got)
	}
}

func TestSelectTrail_InvalidGeometry(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)
	_ = c.SelectStop(stopS1)
	before := c.Snapshot()

	empty := domain.Trail{ID: 99, Name: "Nowhere"}
	err := c.SelectTrailFromMap(empty)
	if !errors.Is(err, domain.ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry, got %v", err)
	}

	got := c.Snapshot()
	if got.Selection.Trail == nil || got.Selection.Trail.ID != empty.ID {
		t.Errorf("expected trail to be selected anyway, got %+v", got.Selection.Trail)
	}
	if diff := cmp.Diff(before.Camera, got.Camera); diff != "" {
		t.Errorf("camera moved (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(before.Transition, got.Transition); diff != "" {
		t.Errorf("transition issued (-before +after):\n%s", diff)
	}
	if !errors.Is(got.Err, domain.ErrInvalidGeometry) {
		t.Errorf("expected last error to be invalid geometry, got %v", got.Err)
	}
}

func TestClearStop(t *testing.T) {
	c := newTestCoordinator(t, returning(trailT1, trailT2), nil)

	if err := c.ClearStop(); !errors.Is(err, domain.ErrNoStopSelected) {
		t.Fatalf("expected ErrNoStopSelected, got %v", err)
	}

	_ = c.SelectStop(stopS1)
	_ = waitSearch(t, mustSearch(t, c))
	_ = c.SelectTrailFromMap(trailT1)

	if err := c.ClearStop(); err != nil {
		t.Fatalf("clear stop: %v", err)
	}
	got := c.Snapshot()
	if got.Selection.Stop != nil {
		t.Errorf("expected no stop, got %+v", got.Selection.Stop)
	}
	if got.Selection.Trail == nil || len(got.Trails) != 2 {
		t.Errorf("expected trail and collection to be kept")
	}
	if got.Visibility.AllTrails {
		t.Error("expected all-trails panel closed")
	}
	if got.Transition.Mode != domain.CameraZoomOut || got.Camera.Center != stopS1.Location {
		t.Errorf("expected zoom-out on the cleared stop, got %+v", got.Transition)
	}
}

func TestClearTrail(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)

	if err := c.ClearTrail(); err != nil {
		t.Fatalf("clearing nothing: %v", err)
	}
	if c.Snapshot().Version != 0 {
		t.Error("clearing nothing must not change state")
	}

	_ = c.SelectTrailFromList(trailT1)
	if err := c.ClearTrail(); err != nil {
		t.Fatalf("clear trail: %v", err)
	}
	got := c.Snapshot()
	if got.Selection.Trail != nil {
		t.Errorf("expected no trail, got %+v", got.Selection.Trail)
	}
	if want := geospatial.MidpointByBoundingBox(trailT1.Path); got.Camera.Center != want || got.Transition.Mode != domain.CameraZoomOut {
		t.Errorf("expected zoom-out on %v, got %+v", want, got.Transition)
	}
}

func TestClearTrail_InvalidGeometry(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)
	empty := domain.Trail{ID: 99, Name: "Nowhere"}
	_ = c.SelectTrailFromMap(empty)
	before := c.Snapshot()

	if err := c.ClearTrail(); !errors.Is(err, domain.ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry, got %v", err)
	}
	got := c.Snapshot()
	if got.Selection.Trail != nil || got.Visibility.DetailCard {
		t.Errorf("expected the trail cleared and the card closed, got %+v %+v", got.Selection.Trail, got.Visibility)
	}
	if diff := cmp.Diff(before.Transition, got.Transition); diff != "" {
		t.Errorf("transition issued (-before +after):\n%s", diff)
	}
	if !errors.Is(got.Err, domain.ErrInvalidGeometry) || got.LastError == "" {
		t.Errorf("expected last error to be invalid geometry, got %v", got.Err)
	}
}

func TestToggleTrailList(t *testing.T) {
	c := newTestCoordinator(t, returning(trailT1), nil)

	if err := c.ToggleTrailList(); !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}

	_ = c.SelectStop(stopS1)
	_ = waitSearch(t, mustSearch(t, c))

	if err := c.ToggleTrailList(); err != nil {
		t.Fatalf("open: %v", err)
	}
	open := c.Snapshot().Visibility
	if !open.TrailList || open.DetailCard || open.SearchArea {
		t.Errorf("unexpected open state %+v", open)
	}

	if err := c.ToggleTrailList(); err != nil {
		t.Fatalf("close: %v", err)
	}
	closed := c.Snapshot().Visibility
	if closed.TrailList || closed.DetailCard || !closed.SearchArea {
		t.Errorf("expected search area back and no card without a trail, got %+v", closed)
	}

	_ = c.SelectTrailFromMap(trailT1)
	_ = c.ToggleTrailList()
	_ = c.ToggleTrailList()
	if v := c.Snapshot().Visibility; v.TrailList || !v.DetailCard || !v.SearchArea {
		t.Errorf("expected the card back for the selected trail, got %+v", v)
	}
}

func TestToggleSidebar(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)
	c.ToggleSidebar()
	if c.Snapshot().Visibility.Sidebar {
		t.Error("expected sidebar hidden")
	}
	c.ToggleSidebar()
	if !c.Snapshot().Visibility.Sidebar {
		t.Error("expected sidebar shown")
	}
}

func TestFilters_ClampedAndVersioned(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)

	c.SetRadius(500)
	c.SetDifficulty(domain.DifficultyHard)
	c.SetMaxDuration(-2, 75)
	c.SetCircularOnly(true)

	got := c.Snapshot()
	want := domain.SearchFilters{
		RadiusKm:     usecases.MaxRadiusKm,
		Difficulty:   domain.DifficultyHard,
		MaxDuration:  domain.MaxDuration{Hours: 0, Minutes: 59},
		CircularOnly: true,
	}
	if diff := cmp.Diff(want, got.Filters); diff != "" {
		t.Errorf("filters mismatch (-want +got):\n%s", diff)
	}
	if got.Version != 4 {
		t.Errorf("expected version 4, got %d", got.Version)
	}

	c.SetCircularOnly(true)
	if v := c.Snapshot().Version; v != 4 {
		t.Errorf("unchanged filter bumped version to %d", v)
	}
}

func TestSubscribe(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)

	var (
		mu       sync.Mutex
		versions []uint64
	)
	cancel := c.Subscribe(func(s usecases.Snapshot) {
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	})

	_ = c.SelectStop(stopS1)
	c.ToggleSidebar()
	cancel()
	c.ToggleSidebar()

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]uint64{1, 2}, versions); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribe_OrderAndVersions(t *testing.T) {
	c := newTestCoordinator(t, returning(trailT1, trailT2), nil)

	var order []string
	var last [2]uint64
	var newest uint64
	var mu sync.Mutex
	for i, name := range []string{"first", "second"} {
		c.Subscribe(func(s usecases.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if s.Version <= last[i] {
				t.Errorf("%s listener got version %d after %d", name, s.Version, last[i])
			}
			last[i] = s.Version
			newest = s.Version
			if len(order) < 2 {
				order = append(order, name)
			}
		})
	}

	_ = c.SelectStop(stopS1)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.ToggleSidebar()
				if p, err := c.Search(context.Background()); err == nil {
					<-p.Done()
				}
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"first", "second"}, order); diff != "" {
		t.Errorf("listener order (-want +got):\n%s", diff)
	}
	if want := c.Snapshot().Version; newest != want {
		t.Errorf("latest delivered version %d, want %d", newest, want)
	}
}

func TestDiscoverStops(t *testing.T) {
	var gotLon, gotLat, gotRange float64
	finder := &mockStopFinder{
		findStopsFn: func(ctx context.Context, lon, lat, rangeKm float64) ([]domain.Stop, error) {
			gotLon, gotLat, gotRange = lon, lat, rangeKm
			return []domain.Stop{stopS1, stopS2}, nil
		},
	}
	opts := usecases.DefaultOptions()
	opts.Logger = quietLogger()
	c := usecases.NewCoordinator(returning(), finder, opts)
	t.Cleanup(c.Close)

	stops, err := c.DiscoverStops(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if gotLon != usecases.DefaultHomeLon || gotLat != usecases.DefaultHomeLat || gotRange != usecases.DefaultStopRangeKm {
		t.Errorf("expected defaults, got lon=%v lat=%v range=%v", gotLon, gotLat, gotRange)
	}
	if len(stops) != 2 || stops[1].Distance == nil || *stops[1].Distance <= 0 {
		t.Fatalf("expected distances to be annotated, got %+v", stops)
	}
	if len(c.Snapshot().Stops) != 2 {
		t.Error("expected stop list in snapshot")
	}

	if err := c.SelectStopByID(stopS2.ID); err != nil {
		t.Fatalf("select by id: %v", err)
	}
	if err := c.SelectStopByID(404); !errors.Is(err, domain.ErrUnknownStop) {
		t.Errorf("expected ErrUnknownStop, got %v", err)
	}
}

func TestDiscoverStops_Error(t *testing.T) {
	finder := &mockStopFinder{
		findStopsFn: func(ctx context.Context, lon, lat, rangeKm float64) ([]domain.Stop, error) {
			return nil, domain.ErrTransport
		},
	}
	opts := usecases.DefaultOptions()
	opts.Logger = quietLogger()
	c := usecases.NewCoordinator(returning(), finder, opts)
	t.Cleanup(c.Close)

	if _, err := c.DiscoverStops(context.Background(), 11, 46, 5); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if c.Snapshot().Version != 0 {
		t.Error("failed discovery must not change state")
	}
}

func TestSnapshot_MatchingTrails(t *testing.T) {
	c := newTestCoordinator(t, returning(trailT1, trailT2, trailT3), nil)
	_ = c.SelectStop(stopS1)
	_ = waitSearch(t, mustSearch(t, c))

	c.SetCircularOnly(true)
	s := c.Snapshot()
	if diff := cmp.Diff([]int64{11}, trailIDs(s.MatchingTrails())); diff != "" {
		t.Errorf("matching mismatch (-want +got):\n%s", diff)
	}
	if len(s.Trails) != 3 {
		t.Error("filters must not change the collection")
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)
	_ = c.SelectStop(stopS1)

	s := c.Snapshot()
	s.Selection.Stop.Name = "mutated"
	s.Transition.Seq = 999

	again := c.Snapshot()
	if again.Selection.Stop.Name != stopS1.Name || again.Transition.Seq == 999 {
		t.Error("snapshot shares state with the coordinator")
	}
}

func TestClose_CancelsInFlight(t *testing.T) {
	s := newScriptedSearcher()
	opts := usecases.DefaultOptions()
	opts.Logger = quietLogger()
	c := usecases.NewCoordinator(s, &mockStopFinder{}, opts)

	_ = c.SelectStop(stopS1)
	p := mustSearch(t, c)
	s.next(t)

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}

	var failed *domain.SearchFailedError
	if err := p.Err(); !errors.As(err, &failed) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancelled search failure, got %v", err)
	}
}

func TestSnapshot_SearchAreaFollowsStopAndRadius(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)
	if c.Snapshot().SearchArea != nil {
		t.Fatal("expected no search area without a stop")
	}

	_ = c.SelectStop(stopS1)
	small := c.Snapshot().SearchArea
	if small == nil {
		t.Fatal("expected a search area around the stop")
	}
	if center := small.Center(); math.Abs(center.Lat-stopS1.Location.Lat) > 1e-9 || math.Abs(center.Lon-stopS1.Location.Lon) > 1e-9 {
		t.Errorf("search area not centred on the stop: %+v", center)
	}

	c.SetRadius(20)
	large := c.Snapshot().SearchArea
	if large.MaxLat-large.MinLat <= small.MaxLat-small.MinLat {
		t.Errorf("expected a wider area after raising the radius: %+v vs %+v", large, small)
	}

	_ = c.ClearStop()
	if c.Snapshot().SearchArea != nil {
		t.Error("expected the search area to go with the stop")
	}
}

func TestSnapshot_TrailAreaCoversSelectedPath(t *testing.T) {
	c := newTestCoordinator(t, returning(), nil)
	if err := c.SelectTrailFromMap(trailT1); err != nil {
		t.Fatalf("SelectTrailFromMap: %v", err)
	}

	want := domain.Bounds{MinLat: 46.50, MinLon: 11.30, MaxLat: 46.53, MaxLon: 11.32}
	got := c.Snapshot().TrailArea
	if got == nil {
		t.Fatal("expected a trail area for the selected trail")
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("trail area mismatch (-want +got):\n%s", diff)
	}

	_ = c.SelectTrailFromMap(trailT1)
	if c.Snapshot().TrailArea != nil {
		t.Error("expected no trail area once the trail is deselected")
	}
}
