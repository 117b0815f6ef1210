package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
)

// GestureKind names a raw user gesture delivered by a renderer.
type GestureKind string

const (
	GestureTapStop            GestureKind = "tap_stop"
	GestureTapClearStop       GestureKind = "tap_clear_stop"
	GestureTapTrailMarker     GestureKind = "tap_trail_marker"
	GestureTapTrailListRow    GestureKind = "tap_trail_list_row"
	GestureTapSearchButton    GestureKind = "tap_search_button"
	GestureTapCloseDetailCard GestureKind = "tap_close_detail_card"
	GestureTapCloseSidebar    GestureKind = "tap_close_sidebar"
	GestureTapToggleTrailList GestureKind = "tap_toggle_trail_list"
	GestureSliderChanged      GestureKind = "slider_changed"
	GesturePickerChanged      GestureKind = "picker_changed"
	GestureToggleChanged      GestureKind = "toggle_changed"
	GestureDurationChanged    GestureKind = "duration_field_changed"
)

// ErrUnknownGesture is returned by Dispatch for an unrecognised kind.
var ErrUnknownGesture = errors.New("unknown gesture")

// Gesture is one user interaction. Only the fields relevant to Kind are read.
type Gesture struct {
	Kind         GestureKind `json:"kind"`
	ID           int64       `json:"id,omitempty"`
	RadiusKm     float64     `json:"radius_km,omitempty"`
	Difficulty   string      `json:"difficulty,omitempty"`
	CircularOnly bool        `json:"circular_only,omitempty"`
	Hours        int         `json:"hours,omitempty"`
	Minutes      int         `json:"minutes,omitempty"`
}

// Dispatch applies g. A search button tap returns the launched search.
func (c *Coordinator) Dispatch(ctx context.Context, g Gesture) (*PendingSearch, error) {
	p, err := c.dispatch(ctx, g)
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.opts.Metrics.Gesture(string(g.Kind), result)
	return p, err
}

func (c *Coordinator) dispatch(ctx context.Context, g Gesture) (*PendingSearch, error) {
	switch g.Kind {
	case GestureTapStop:
		return nil, c.SelectStopByID(g.ID)
	case GestureTapClearStop:
		return nil, c.ClearStop()
	case GestureTapTrailMarker:
		return nil, c.SelectTrailFromMapByID(g.ID)
	case GestureTapTrailListRow:
		return nil, c.SelectTrailFromListByID(g.ID)
	case GestureTapSearchButton:
		return c.Search(ctx)
	case GestureTapCloseDetailCard:
		return nil, c.ClearTrail()
	case GestureTapCloseSidebar:
		c.ToggleSidebar()
		return nil, nil
	case GestureTapToggleTrailList:
		return nil, c.ToggleTrailList()
	case GestureSliderChanged:
		c.SetRadius(g.RadiusKm)
		return nil, nil
	case GesturePickerChanged:
		d, err := domain.ParseDifficulty(g.Difficulty)
		if err != nil {
			return nil, err
		}
		c.SetDifficulty(d)
		return nil, nil
	case GestureToggleChanged:
		c.SetCircularOnly(g.CircularOnly)
		return nil, nil
	case GestureDurationChanged:
		c.SetMaxDuration(g.Hours, g.Minutes)
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGesture, g.Kind)
	}
}
