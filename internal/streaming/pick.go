package streaming

import (
	"math"

	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/starmap"
)

// CameraPose is a camera position and orientation in radians.
type CameraPose struct {
	Position starmap.Vec3 `json:"position"`
	Pitch    float64      `json:"pitch"`
	Yaw      float64      `json:"yaw"`
}

// Forward returns the pose's view direction.
func (p CameraPose) Forward() starmap.Vec3 {
	return starmap.Forward(p.Pitch, p.Yaw)
}

// Pick returns the star whose direction from the camera is closest to the
// view ray, if that angle is at most maxAngle radians. Ties go to the
// nearer star. Stars at the camera position are ignored.
func Pick(stars []procedural.Star, pose CameraPose, maxAngle float64) (procedural.Star, bool) {
	fwd := pose.Forward()
	bestAngle := math.Inf(1)
	bestDist := math.Inf(1)
	var best procedural.Star
	found := false

	for _, s := range stars {
		v := s.Position.Sub(pose.Position)
		dist := v.Length()
		if dist == 0 {
			continue
		}
		cos := max(-1, min(1, v.Dot(fwd)/dist))
		angle := math.Acos(cos)
		if angle > maxAngle {
			continue
		}
		if angle < bestAngle || (angle == bestAngle && dist < bestDist) {
			best, bestAngle, bestDist, found = s, angle, dist, true
		}
	}
	return best, found
}

// FindByName returns the first star named name.
func FindByName(stars []procedural.Star, name string) (procedural.Star, bool) {
	for _, s := range stars {
		if s.Name == name {
			return s, true
		}
	}
	return procedural.Star{}, false
}
