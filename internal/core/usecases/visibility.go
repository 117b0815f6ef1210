package usecases

import "github.com/Hogigo/Bus2Hike/internal/core/domain"

type visibilityEvent int

const (
	visToggleSidebar visibilityEvent = iota
	visSelectNewStop
	visClearStop
	visSearch
	visToggleTrailList
	visSelectTrailFromList
	visMarkerSelect
	visMarkerDeselect
	visCloseDetailCard
)

// InitialVisibility is the panel layout on launch.
func InitialVisibility() domain.Visibility {
	return domain.Visibility{Sidebar: true, SearchArea: true}
}

// applyVisibility runs the direct effect of ev and then the settle pass.
// trailSelected is the trail selection after the event. Preconditions
// involving selection are checked by the caller; the allTrails precondition
// of the trail-list toggle is checked here.
func applyVisibility(v domain.Visibility, ev visibilityEvent, trailSelected bool) domain.Visibility {
	listWas := v.TrailList

	switch ev {
	case visToggleSidebar:
		v.Sidebar = !v.Sidebar
	case visSelectNewStop:
		v.AllTrails = false
		v.TrailList = false
	case visClearStop:
		v.AllTrails = false
	case visSearch:
		v.AllTrails = true
	case visToggleTrailList:
		if v.AllTrails {
			v.TrailList = !v.TrailList
		}
	case visSelectTrailFromList:
		v.TrailList = false
		v.DetailCard = true
	case visMarkerSelect:
		v.DetailCard = true
	case visMarkerDeselect:
		v.DetailCard = false
	case visCloseDetailCard:
	}

	return settle(v, v.TrailList != listWas, trailSelected)
}

// settle is the single pass run after every event. The trail-list watcher
// fires only when trailList changed value. Then trailList => !detailCard &&
// !searchArea is enforced, and the detail card is closed when there is no
// trail for it to show.
func settle(v domain.Visibility, listChanged, trailSelected bool) domain.Visibility {
	if listChanged {
		v.DetailCard = !v.TrailList
		v.SearchArea = !v.TrailList
	}
	if v.TrailList {
		v.DetailCard = false
		v.SearchArea = false
	}
	if !trailSelected {
		v.DetailCard = false
	}
	return v
}
