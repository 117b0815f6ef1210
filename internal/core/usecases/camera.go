package usecases

import (
	"time"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
)

const (
	zoomInDistanceM  = 6000
	zoomInPitchDeg   = 45
	zoomOutDistanceM = 15000
	zoomOutPitchDeg  = 0
)

// DefaultTransitionDuration is used when no duration is configured.
const DefaultTransitionDuration = 400 * time.Millisecond

// ComputePose returns the camera pose for looking at target in the given mode.
// Heading is always north. Unknown modes are treated as zoom-out.
func ComputePose(target domain.GeoPoint, mode domain.CameraMode) domain.CameraPose {
	if mode == domain.CameraZoomIn {
		return domain.CameraPose{
			Center:    target,
			DistanceM: zoomInDistanceM,
			PitchDeg:  zoomInPitchDeg,
		}
	}
	return domain.CameraPose{
		Center:    target,
		DistanceM: zoomOutDistanceM,
		PitchDeg:  zoomOutPitchDeg,
	}
}

// newTransition wraps a computed pose into an animation request.
func newTransition(seq uint64, target domain.GeoPoint, mode domain.CameraMode, d time.Duration) domain.CameraTransition {
	return domain.CameraTransition{
		Seq:      seq,
		Mode:     mode,
		Pose:     ComputePose(target, mode),
		Easing:   domain.EaseInOut,
		Duration: d,
	}
}
