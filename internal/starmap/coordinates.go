package starmap

import (
	"fmt"
	"math"
)

// Vec3 is a point or direction in world space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Length returns the Euclidean length of v.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// DistanceSquared returns the squared Euclidean distance between a and b.
func DistanceSquared(a, b Vec3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return dx*dx + dy*dy + dz*dz
}

// Forward returns the unit view direction for a camera orientation.
// Yaw rotates around the Y axis starting at +Z; positive pitch looks up.
func Forward(pitch, yaw float64) Vec3 {
	cp := math.Cos(pitch)
	return Vec3{
		X: math.Sin(yaw) * cp,
		Y: math.Sin(pitch),
		Z: math.Cos(yaw) * cp,
	}
}

// ChunkCoord addresses a cube of world space with edge length chunkSize.
// It is a comparable value type and is used directly as a map key.
type ChunkCoord struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Less orders coordinates by X, then Y, then Z.
func (c ChunkCoord) Less(o ChunkCoord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

// Compare returns -1, 0 or +1 following Less.
func (c ChunkCoord) Compare(o ChunkCoord) int {
	switch {
	case c == o:
		return 0
	case c.Less(o):
		return -1
	default:
		return 1
	}
}

// Origin returns the world position of the chunk's minimum corner.
func (c ChunkCoord) Origin(chunkSize float64) Vec3 {
	return Vec3{
		X: float64(c.X) * chunkSize,
		Y: float64(c.Y) * chunkSize,
		Z: float64(c.Z) * chunkSize,
	}
}

// ChunkCoordFromPosition floors each axis of pos divided by chunkSize.
// Negative positions round toward negative infinity, so -0.5 lands in chunk -1.
func ChunkCoordFromPosition(pos Vec3, chunkSize float64) ChunkCoord {
	return ChunkCoord{
		X: floorDiv(pos.X, chunkSize),
		Y: floorDiv(pos.Y, chunkSize),
		Z: floorDiv(pos.Z, chunkSize),
	}
}

// Positions past the int64 range saturate instead of wrapping.
func floorDiv(v, size float64) int64 {
	q := math.Floor(v / size)
	switch {
	case q >= math.MaxInt64:
		return math.MaxInt64
	case q <= math.MinInt64:
		return math.MinInt64
	case math.IsNaN(q):
		return 0
	}
	return int64(q)
}

// ChebyshevDistance returns the largest per-axis distance between a and b.
func ChebyshevDistance(a, b ChunkCoord) int64 {
	return max(absDiff(a.X, b.X), absDiff(a.Y, b.Y), absDiff(a.Z, b.Z))
}

func absDiff(a, b int64) int64 {
	if a < b {
		a, b = b, a
	}
	d := a - b
	if d < 0 {
		return math.MaxInt64
	}
	return d
}

// NeighborhoodSize returns the number of coordinates within Chebyshev radius r.
func NeighborhoodSize(radius int) int {
	if radius < 0 {
		return 0
	}
	side := 2*radius + 1
	return side * side * side
}

// Neighborhood returns every coordinate within Chebyshev distance radius of
// center, ordered by X, then Y, then Z. Coordinates that would fall outside
// the int64 range are skipped.
func Neighborhood(center ChunkCoord, radius int) []ChunkCoord {
	if radius < 0 {
		return nil
	}
	out := make([]ChunkCoord, 0, NeighborhoodSize(radius))
	r := int64(radius)
	for dx := -r; dx <= r; dx++ {
		x, ok := offset(center.X, dx)
		if !ok {
			continue
		}
		for dy := -r; dy <= r; dy++ {
			y, ok := offset(center.Y, dy)
			if !ok {
				continue
			}
			for dz := -r; dz <= r; dz++ {
				z, ok := offset(center.Z, dz)
				if !ok {
					continue
				}
				out = append(out, ChunkCoord{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

func offset(v, d int64) (int64, bool) {
	s := v + d
	if (d > 0 && s < v) || (d < 0 && s > v) {
		return 0, false
	}
	return s, true
}
