package procedural

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/starfield/server/internal/starmap"
)

const (
	nameLetters   = 3
	nameNumberMin = 1000
	nameNumberMax = 9999

	// Second PCG word. Fixed so the stream depends only on the derived seed.
	pcgStream = 0x9e3779b97f4a7c15
)

// Upper bounds on generation parameters. A chunk is generated while the
// engine lock is held, so its size must stay small.
const (
	MaxStarsPerChunk = 10000
	MaxChunkSize     = 1 << 20
)

// Star is one generated point of interest.
type Star struct {
	Position starmap.Vec3 `json:"position"`
	Size     float64      `json:"size"`
	Name     string       `json:"name"`
}

// Params controls chunk content.
type Params struct {
	ChunkSize float64 `json:"chunk_size" yaml:"chunk_size"`
	MinStars  int     `json:"min_stars" yaml:"min_stars"`
	MaxStars  int     `json:"max_stars" yaml:"max_stars"`
	MinSize   float64 `json:"min_size" yaml:"min_size"`
	MaxSize   float64 `json:"max_size" yaml:"max_size"`
}

// DefaultParams returns 128-unit chunks holding 10 to 30 stars of size 0.5 to 2.
func DefaultParams() Params {
	return Params{
		ChunkSize: 128,
		MinStars:  10,
		MaxStars:  30,
		MinSize:   0.5,
		MaxSize:   2.0,
	}
}

// Validate rejects parameters the generator cannot honor.
func (p Params) Validate() error {
	if !(p.ChunkSize > 0) || p.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk size must be in (0, %d], got %v", MaxChunkSize, p.ChunkSize)
	}
	if p.MinStars < 0 {
		return fmt.Errorf("min stars must not be negative, got %d", p.MinStars)
	}
	if p.MaxStars < p.MinStars {
		return fmt.Errorf("star count range is empty: [%d, %d]", p.MinStars, p.MaxStars)
	}
	if p.MaxStars > MaxStarsPerChunk {
		return fmt.Errorf("max stars must be at most %d, got %d", MaxStarsPerChunk, p.MaxStars)
	}
	if !(p.MinSize > 0) || !(p.MaxSize >= p.MinSize) || math.IsInf(p.MaxSize, 1) {
		return fmt.Errorf("star size range is invalid: [%v, %v)", p.MinSize, p.MaxSize)
	}
	return nil
}

// GenerateChunk returns the stars of coord under seed. The result depends only
// on its arguments: every call builds its own random stream from
// DeriveSeed(seed, x, y, z) and draws, in order, the star count and then for
// each star x, y, z, size and name.
func GenerateChunk(seed string, p Params, coord starmap.ChunkCoord) []Star {
	rng := rand.New(rand.NewPCG(DeriveSeed(seed, coord.X, coord.Y, coord.Z), pcgStream))

	n := p.MinStars + rng.IntN(p.MaxStars-p.MinStars+1)
	origin := coord.Origin(p.ChunkSize)
	stars := make([]Star, 0, n)
	for range n {
		local := starmap.Vec3{
			X: rng.Float64() * p.ChunkSize,
			Y: rng.Float64() * p.ChunkSize,
			Z: rng.Float64() * p.ChunkSize,
		}
		size := p.MinSize + rng.Float64()*(p.MaxSize-p.MinSize)
		stars = append(stars, Star{
			Position: origin.Add(local),
			Size:     size,
			Name:     starName(rng),
		})
	}
	return stars
}

func starName(rng *rand.Rand) string {
	buf := make([]byte, 0, nameLetters+5)
	for range nameLetters {
		buf = append(buf, byte('A'+rng.IntN(26)))
	}
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, int64(nameNumberMin+rng.IntN(nameNumberMax-nameNumberMin+1)), 10)
	return string(buf)
}

// Generator binds a seed and parameters.
type Generator struct {
	Seed   string
	Params Params
}

// Chunk generates the content of coord.
func (g Generator) Chunk(coord starmap.ChunkCoord) []Star {
	return GenerateChunk(g.Seed, g.Params, coord)
}
