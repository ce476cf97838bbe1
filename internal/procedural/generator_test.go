package procedural

import (
	"math"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfield/server/internal/starmap"
)

var namePattern = regexp.MustCompile(`^[A-Z]{3}-[1-9][0-9]{3}$`)

func TestGenerateChunkDeterministic(t *testing.T) {
	p := DefaultParams()
	coord := starmap.ChunkCoord{X: 4, Y: -7, Z: 12}

	first := GenerateChunk("determinism", p, coord)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, GenerateChunk("determinism", p, coord))
	}
}

func TestGenerateChunkIndependentOfCallOrder(t *testing.T) {
	p := DefaultParams()
	a := starmap.ChunkCoord{X: 1}
	b := starmap.ChunkCoord{Y: 1}

	aFirst := GenerateChunk("order", p, a)
	_ = GenerateChunk("order", p, b)
	assert.Equal(t, aFirst, GenerateChunk("order", p, a))
}

func TestGenerateChunkBounds(t *testing.T) {
	p := Params{ChunkSize: 32, MinStars: 6, MaxStars: 18, MinSize: 0.5, MaxSize: 2.0}
	for _, coord := range starmap.Neighborhood(starmap.ChunkCoord{X: -3, Y: 2, Z: 0}, 2) {
		stars := GenerateChunk("bounds", p, coord)
		require.GreaterOrEqual(t, len(stars), p.MinStars)
		require.LessOrEqual(t, len(stars), p.MaxStars)

		origin := coord.Origin(p.ChunkSize)
		for _, s := range stars {
			assert.Equal(t, coord, starmap.ChunkCoordFromPosition(s.Position, p.ChunkSize), "star %s outside its chunk", s.Name)
			assert.GreaterOrEqual(t, s.Position.X, origin.X)
			assert.GreaterOrEqual(t, s.Size, p.MinSize)
			assert.Less(t, s.Size, p.MaxSize)
			assert.Regexp(t, namePattern, s.Name)
		}
	}
}

func TestGenerateChunkFixedCount(t *testing.T) {
	p := Params{ChunkSize: 10, MinStars: 4, MaxStars: 4, MinSize: 1, MaxSize: 1}
	stars := GenerateChunk("fixed", p, starmap.ChunkCoord{})
	require.Len(t, stars, 4)
	for _, s := range stars {
		assert.Equal(t, 1.0, s.Size)
	}

	empty := Params{ChunkSize: 10, MinStars: 0, MaxStars: 0, MinSize: 1, MaxSize: 1}
	assert.Empty(t, GenerateChunk("fixed", empty, starmap.ChunkCoord{}))
}

func TestGenerateChunkSeedChangesContent(t *testing.T) {
	p := DefaultParams()
	coord := starmap.ChunkCoord{X: 9, Y: 9, Z: 9}
	assert.NotEqual(t, GenerateChunk("one", p, coord), GenerateChunk("two", p, coord))
}

func TestGeneratorChunk(t *testing.T) {
	g := Generator{Seed: "gen", Params: DefaultParams()}
	coord := starmap.ChunkCoord{X: 1, Y: 2, Z: 3}
	assert.Equal(t, GenerateChunk("gen", DefaultParams(), coord), g.Chunk(coord))
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"defaults", func(*Params) {}, false},
		{"zero chunk size", func(p *Params) { p.ChunkSize = 0 }, true},
		{"negative min stars", func(p *Params) { p.MinStars = -1 }, true},
		{"empty count range", func(p *Params) { p.MinStars, p.MaxStars = 5, 4 }, true},
		{"zero size", func(p *Params) { p.MinSize = 0 }, true},
		{"inverted size range", func(p *Params) { p.MinSize, p.MaxSize = 2, 1 }, true},
		{"degenerate size range", func(p *Params) { p.MinSize, p.MaxSize = 1, 1 }, false},
		{"star count overflow", func(p *Params) { p.MinStars, p.MaxStars = 0, math.MaxInt }, true},
		{"too many stars", func(p *Params) { p.MaxStars = MaxStarsPerChunk + 1 }, true},
		{"star count at limit", func(p *Params) { p.MaxStars = MaxStarsPerChunk }, false},
		{"infinite chunk size", func(p *Params) { p.ChunkSize = math.Inf(1) }, true},
		{"huge chunk size", func(p *Params) { p.ChunkSize = MaxChunkSize * 2 }, true},
		{"infinite star size", func(p *Params) { p.MaxSize = math.Inf(1) }, true},
		{"NaN star size", func(p *Params) { p.MaxSize = math.NaN() }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
