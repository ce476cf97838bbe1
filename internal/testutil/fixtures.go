package testutil

import (
	"math/rand/v2"

	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/starmap"
	"github.com/starfield/server/internal/streaming"
)

// TestFixtures provides test data generators
type TestFixtures struct {
	rng *rand.Rand
}

// NewTestFixtures creates a fixtures helper with its own random stream.
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededFixtures creates a fixtures helper that repeats across runs.
func NewSeededFixtures(seed uint64) *TestFixtures {
	return &TestFixtures{rng: rand.New(rand.NewPCG(seed, seed))}
}

// RandomString generates a random alphanumeric string of the given length
func RandomString(length int) string {
	return NewTestFixtures().String(length)
}

// String generates a random alphanumeric string of the given length
func (f *TestFixtures) String(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[f.rng.IntN(len(charset))]
	}
	return string(b)
}

// RandomSessionName generates a unique-looking session name
func RandomSessionName() string {
	return "session_" + RandomString(8)
}

// RandomSeed generates a seed string
func RandomSeed() string {
	return "seed-" + RandomString(12)
}

// Position returns a point within spread of the origin on every axis.
func (f *TestFixtures) Position(spread float64) starmap.Vec3 {
	return starmap.Vec3{
		X: (f.rng.Float64()*2 - 1) * spread,
		Y: (f.rng.Float64()*2 - 1) * spread,
		Z: (f.rng.Float64()*2 - 1) * spread,
	}
}

// Pose returns a random camera pose within spread of the origin.
func (f *TestFixtures) Pose(spread float64) streaming.CameraPose {
	return streaming.CameraPose{
		Position: f.Position(spread),
		Pitch:    (f.rng.Float64() - 0.5) * 3,
		Yaw:      (f.rng.Float64()*2 - 1) * 3.14,
	}
}

// Star returns a star shaped like generator output.
func (f *TestFixtures) Star() procedural.Star {
	return procedural.Star{
		Position: f.Position(1000),
		Size:     0.5 + f.rng.Float64()*1.5,
		Name:     "TST-" + f.String(4),
	}
}
