package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stop represents a public-transport stop a hike can start from.
type Stop struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Location GeoPoint `json:"location"`
	Distance *float64 `json:"distance,omitempty"` // computed field, meters from the discovery origin
}

// Trail represents a hiking path near a stop.
type Trail struct {
	ID              int64      `json:"id"`
	ExternalID      string     `json:"external_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Difficulty      *string    `json:"difficulty,omitempty"`
	LengthKm        *float64   `json:"length_km,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	ElevationGainM  *int       `json:"elevation_gain_m,omitempty"`
	ElevationLossM  *int       `json:"elevation_loss_m,omitempty"`
	Circular        bool       `json:"circular"`
	Path            []GeoPoint `json:"path"`
}

// Difficulty is the level picked in the filter panel.
type Difficulty string

const (
	DifficultyAny      Difficulty = "any"
	DifficultyEasy     Difficulty = "easy"
	DifficultyModerate Difficulty = "moderate"
	DifficultyHard     Difficulty = "hard"
	DifficultyVeryHard Difficulty = "very-hard"
	DifficultyExtreme  Difficulty = "extreme"
)

// Difficulties lists every picker value in display order.
var Difficulties = []Difficulty{
	DifficultyAny, DifficultyEasy, DifficultyModerate,
	DifficultyHard, DifficultyVeryHard, DifficultyExtreme,
}

// ParseDifficulty accepts a picker value case-insensitively.
// Spaces and underscores count as hyphens, so "Very Hard" is very-hard.
func ParseDifficulty(s string) (Difficulty, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	if norm == "" {
		return DifficultyAny, nil
	}
	for _, d := range Difficulties {
		if string(d) == norm {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrInvalidDifficulty, s)
}

// MaxDuration is the hours+minutes pair from the duration fields.
type MaxDuration struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// Duration converts the pair. Zero means no limit.
func (d MaxDuration) Duration() time.Duration {
	return time.Duration(d.Hours)*time.Hour + time.Duration(d.Minutes)*time.Minute
}

// SearchFilters are the user-chosen search parameters.
type SearchFilters struct {
	RadiusKm     float64     `json:"radius_km"`
	Difficulty   Difficulty  `json:"difficulty"`
	MaxDuration  MaxDuration `json:"max_duration"`
	CircularOnly bool        `json:"circular_only"`
}

// Selection holds at most one selected stop and at most one selected trail.
type Selection struct {
	Stop  *Stop  `json:"stop,omitempty"`
	Trail *Trail `json:"trail,omitempty"`
}

// CameraMode is the kind of camera move a selection change asks for.
type CameraMode string

const (
	CameraZoomIn  CameraMode = "zoom-in"
	CameraZoomOut CameraMode = "zoom-out"
)

// CameraPose is the map viewport: centre, zoom distance, heading and tilt.
type CameraPose struct {
	Center     GeoPoint `json:"center"`
	DistanceM  float64  `json:"distance_m"`
	HeadingDeg float64  `json:"heading_deg"`
	PitchDeg   float64  `json:"pitch_deg"`
}

// EaseInOut is the only easing renderers are asked to use.
const EaseInOut = "ease-in-out"

// CameraTransition asks the renderer to animate toward Pose.
type CameraTransition struct {
	Seq      uint64        `json:"seq"`
	Mode     CameraMode    `json:"mode"`
	Pose     CameraPose    `json:"pose"`
	Easing   string        `json:"easing"`
	Duration time.Duration `json:"duration"`
}

// Visibility holds the panel flags of the exploration screen.
type Visibility struct {
	Sidebar    bool `json:"sidebar"`
	AllTrails  bool `json:"all_trails"`
	TrailList  bool `json:"trail_list"`
	DetailCard bool `json:"detail_card"`
	SearchArea bool `json:"search_area"`
}
