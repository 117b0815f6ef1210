package usecases

import (
	"strings"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
)

const (
	MinRadiusKm     = 1
	MaxRadiusKm     = 100
	DefaultRadiusKm = 10
)

// FilterState stores the search parameters edited in the filter panel.
// It has no behavior beyond clamped storage.
type FilterState struct {
	f domain.SearchFilters
}

// NewFilterState returns filters with the given radius and no other limit.
func NewFilterState(radiusKm float64) FilterState {
	fs := FilterState{f: domain.SearchFilters{Difficulty: domain.DifficultyAny}}
	if radiusKm == 0 {
		radiusKm = DefaultRadiusKm
	}
	fs.SetRadius(radiusKm)
	return fs
}

// Value returns a copy of the current filters.
func (fs *FilterState) Value() domain.SearchFilters { return fs.f }

// SetRadius clamps km to [MinRadiusKm, MaxRadiusKm]. It reports whether the value changed.
func (fs *FilterState) SetRadius(km float64) bool {
	km = min(max(km, MinRadiusKm), MaxRadiusKm)
	if fs.f.RadiusKm == km {
		return false
	}
	fs.f.RadiusKm = km
	return true
}

func (fs *FilterState) SetDifficulty(d domain.Difficulty) bool {
	if d == "" {
		d = domain.DifficultyAny
	}
	if fs.f.Difficulty == d {
		return false
	}
	fs.f.Difficulty = d
	return true
}

// SetMaxDuration clamps hours to >= 0 and minutes to [0, 59].
func (fs *FilterState) SetMaxDuration(hours, minutes int) bool {
	d := domain.MaxDuration{Hours: max(hours, 0), Minutes: min(max(minutes, 0), 59)}
	if fs.f.MaxDuration == d {
		return false
	}
	fs.f.MaxDuration = d
	return true
}

func (fs *FilterState) SetCircularOnly(on bool) bool {
	if fs.f.CircularOnly == on {
		return false
	}
	fs.f.CircularOnly = on
	return true
}

// Open Data Hub labels that differ from the picker values.
var difficultyAliases = map[string]domain.Difficulty{
	"medium":         domain.DifficultyModerate,
	"intermediate":   domain.DifficultyModerate,
	"difficult":      domain.DifficultyHard,
	"very-difficult": domain.DifficultyVeryHard,
}

// MatchesFilters reports whether t passes the display filters. Trails with
// an unknown duration pass the duration limit; trails with an unknown
// difficulty only pass when the picker is on "any".
func MatchesFilters(f domain.SearchFilters, t domain.Trail) bool {
	if f.CircularOnly && !t.Circular {
		return false
	}
	if limit := f.MaxDuration.Duration(); limit > 0 && t.DurationMinutes != nil {
		if float64(*t.DurationMinutes) > limit.Minutes() {
			return false
		}
	}
	if f.Difficulty == "" || f.Difficulty == domain.DifficultyAny {
		return true
	}
	if t.Difficulty == nil {
		return false
	}
	return trailDifficulty(*t.Difficulty) == f.Difficulty
}

func trailDifficulty(label string) domain.Difficulty {
	norm := strings.NewReplacer(" ", "-", "_", "-").Replace(strings.ToLower(strings.TrimSpace(label)))
	if d, ok := difficultyAliases[norm]; ok {
		return d
	}
	d, err := domain.ParseDifficulty(norm)
	if err != nil {
		return ""
	}
	return d
}
