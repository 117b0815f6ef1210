package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/core/usecases"
)

const durationStepMinutes = 30

type pane int

const (
	paneStops pane = iota
	paneTrails
)

// explorer is the part of the coordinator the screen drives.
type explorer interface {
	Snapshot() usecases.Snapshot
	Dispatch(ctx context.Context, g usecases.Gesture) (*usecases.PendingSearch, error)
	DiscoverStops(ctx context.Context, lon, lat, rangeKm float64) ([]domain.Stop, error)
}

type snapshotMsg usecases.Snapshot

type gestureFailedMsg struct {
	kind usecases.GestureKind
	err  error
}

type searchDoneMsg struct {
	token uint64
	err   error
}

type stopsLoadedMsg struct {
	count int
	err   error
}

type model struct {
	explorer explorer
	keys     keyMap
	help     help.Model

	snap        usecases.Snapshot
	focus       pane
	stopCursor  int
	trailCursor int
	status      string

	width  int
	height int
}

func newModel(e explorer) model {
	return model{
		explorer: e,
		keys:     newKeyMap(),
		help:     help.New(),
		snap:     e.Snapshot(),
		status:   "loading stops…",
	}
}

func (m model) Init() tea.Cmd {
	return discoverCmd(m.explorer)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		if msg.Version < m.snap.Version {
			return m, nil
		}
		m.snap = usecases.Snapshot(msg)
		m.clampCursors()
		return m, nil

	case stopsLoadedMsg:
		if msg.err != nil {
			m.status = "stops unavailable: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("%d stops", msg.count)
		}
		m.snap = m.explorer.Snapshot()
		m.clampCursors()
		return m, nil

	case searchDoneMsg:
		switch {
		case msg.err == nil:
			m.status = fmt.Sprintf("search %d: %d trails", msg.token, len(m.explorer.Snapshot().Trails))
		case errors.Is(msg.err, domain.ErrStaleSearch):
			m.status = fmt.Sprintf("search %d superseded", msg.token)
		default:
			m.status = fmt.Sprintf("search %d failed: %v", msg.token, msg.err)
		}
		return m, nil

	case gestureFailedMsg:
		m.status = fmt.Sprintf("%s: %v", msg.kind, msg.err)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := m.snap.Filters

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Focus):
		if m.focus == paneStops {
			m.focus = paneTrails
		} else {
			m.focus = paneStops
		}
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
		return m, nil

	case key.Matches(msg, m.keys.Select):
		if m.focus == paneStops {
			if s, ok := m.cursorStop(); ok {
				return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureTapStop, ID: s.ID})
			}
			return m, nil
		}
		if t, ok := m.cursorTrail(); ok {
			return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureTapTrailListRow, ID: t.ID})
		}
		return m, nil
	case key.Matches(msg, m.keys.Marker):
		if t, ok := m.cursorTrail(); ok {
			return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureTapTrailMarker, ID: t.ID})
		}
		return m, nil

	case key.Matches(msg, m.keys.Search):
		m.status = "searching…"
		return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureTapSearchButton})
	case key.Matches(msg, m.keys.ClearStop):
		return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureTapClearStop})
	case key.Matches(msg, m.keys.CloseCard):
		return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureTapCloseDetailCard})
	case key.Matches(msg, m.keys.Sidebar):
		return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureTapCloseSidebar})
	case key.Matches(msg, m.keys.TrailList):
		return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureTapToggleTrailList})

	case key.Matches(msg, m.keys.RadiusUp):
		return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureSliderChanged, RadiusKm: f.RadiusKm + 1})
	case key.Matches(msg, m.keys.RadiusDown):
		return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureSliderChanged, RadiusKm: f.RadiusKm - 1})
	case key.Matches(msg, m.keys.Difficulty):
		return m, m.dispatch(usecases.Gesture{Kind: usecases.GesturePickerChanged, Difficulty: string(nextDifficulty(f.Difficulty))})
	case key.Matches(msg, m.keys.Circular):
		return m, m.dispatch(usecases.Gesture{Kind: usecases.GestureToggleChanged, CircularOnly: !f.CircularOnly})
	case key.Matches(msg, m.keys.LongerHike):
		return m, m.dispatch(durationGesture(f.MaxDuration, durationStepMinutes))
	case key.Matches(msg, m.keys.ShorterHike):
		return m, m.dispatch(durationGesture(f.MaxDuration, -durationStepMinutes))

	case key.Matches(msg, m.keys.Rediscover):
		m.status = "loading stops…"
		return m, discoverCmd(m.explorer)
	}
	return m, nil
}

func (m model) dispatch(g usecases.Gesture) tea.Cmd {
	return dispatchCmd(m.explorer, g)
}

func dispatchCmd(e explorer, g usecases.Gesture) tea.Cmd {
	return func() tea.Msg {
		p, err := e.Dispatch(context.Background(), g)
		if err != nil {
			return gestureFailedMsg{kind: g.Kind, err: err}
		}
		if p == nil {
			return nil
		}
		return searchDoneMsg{token: p.Token, err: p.Wait(context.Background())}
	}
}

func discoverCmd(e explorer) tea.Cmd {
	return func() tea.Msg {
		stops, err := e.DiscoverStops(context.Background(), 0, 0, 0)
		return stopsLoadedMsg{count: len(stops), err: err}
	}
}

func (m *model) moveCursor(delta int) {
	if m.focus == paneStops {
		m.stopCursor += delta
	} else {
		m.trailCursor += delta
	}
	m.clampCursors()
}

func (m *model) clampCursors() {
	m.stopCursor = clamp(m.stopCursor, len(m.snap.Stops))
	m.trailCursor = clamp(m.trailCursor, len(m.snap.MatchingTrails()))
}

func clamp(i, n int) int {
	if n == 0 {
		return 0
	}
	return min(max(i, 0), n-1)
}

func (m model) cursorStop() (domain.Stop, bool) {
	if len(m.snap.Stops) == 0 {
		return domain.Stop{}, false
	}
	return m.snap.Stops[m.stopCursor], true
}

func (m model) cursorTrail() (domain.Trail, bool) {
	trails := m.snap.MatchingTrails()
	if len(trails) == 0 {
		return domain.Trail{}, false
	}
	return trails[m.trailCursor], true
}

func nextDifficulty(d domain.Difficulty) domain.Difficulty {
	i := slices.Index(domain.Difficulties, d)
	return domain.Difficulties[(i+1)%len(domain.Difficulties)]
}

func durationGesture(d domain.MaxDuration, deltaMinutes int) usecases.Gesture {
	total := max(d.Hours*60+d.Minutes+deltaMinutes, 0)
	return usecases.Gesture{
		Kind:    usecases.GestureDurationChanged,
		Hours:   total / 60,
		Minutes: total % 60,
	}
}
