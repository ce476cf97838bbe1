package streaming

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/starmap"
)

func TestPick(t *testing.T) {
	stars := []procedural.Star{
		{Name: "OFF-1000", Position: starmap.Vec3{X: 10, Z: 10}},
		{Name: "FAR-2000", Position: starmap.Vec3{Z: 500}},
		{Name: "NEA-3000", Position: starmap.Vec3{Z: 50}},
		{Name: "BEH-4000", Position: starmap.Vec3{Z: -20}},
	}
	pose := CameraPose{}

	got, ok := Pick(stars, pose, 0.1)
	assert.True(t, ok)
	assert.Equal(t, "NEA-3000", got.Name, "equal angles resolve to the nearer star")

	pose.Yaw = math.Pi
	got, ok = Pick(stars, pose, 0.1)
	assert.True(t, ok)
	assert.Equal(t, "BEH-4000", got.Name)

	pose.Yaw = math.Pi / 2
	_, ok = Pick(stars, pose, 0.1)
	assert.False(t, ok)
}

func TestPickIgnoresStarAtCamera(t *testing.T) {
	stars := []procedural.Star{{Name: "ZER-1000"}}
	_, ok := Pick(stars, CameraPose{}, math.Pi)
	assert.False(t, ok)
}

func TestFindByName(t *testing.T) {
	stars := []procedural.Star{{Name: "AAA-1111"}, {Name: "BBB-2222"}}

	got, ok := FindByName(stars, "BBB-2222")
	assert.True(t, ok)
	assert.Equal(t, "BBB-2222", got.Name)

	_, ok = FindByName(stars, "CCC-3333")
	assert.False(t, ok)
}
