package streaming

import (
	"slices"
	"time"

	"github.com/starfield/server/internal/performance"
	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/starmap"
)

// Observer is one viewpoint with its own visible set. All observers of a
// Manager share the chunk cache.
type Observer struct {
	id        string
	manager   *Manager
	visible   map[starmap.ChunkCoord]struct{}
	createdAt time.Time
	removed   bool
}

// Result is the outcome of one UpdateVisible call.
type Result struct {
	Stars           []procedural.Star    `json:"stars"`
	ChunksGenerated int                  `json:"chunks_generated"`
	CameraChunk     starmap.ChunkCoord   `json:"camera_chunk"`
	Added           []starmap.ChunkCoord `json:"added,omitempty"`
	Removed         []starmap.ChunkCoord `json:"removed,omitempty"`
	Trimmed         int                  `json:"trimmed"`
	Epoch           uint64               `json:"epoch"`
}

// ID returns the observer's identifier.
func (o *Observer) ID() string {
	return o.id
}

// CreatedAt returns when the observer was registered.
func (o *Observer) CreatedAt() time.Time {
	return o.createdAt
}

// VisibleChunks returns the visible set in coordinate order.
func (o *Observer) VisibleChunks() []starmap.ChunkCoord {
	o.manager.mu.Lock()
	defer o.manager.mu.Unlock()
	return o.sortedVisibleLocked()
}

func (o *Observer) sortedVisibleLocked() []starmap.ChunkCoord {
	coords := make([]starmap.ChunkCoord, 0, len(o.visible))
	for c := range o.visible {
		coords = append(coords, c)
	}
	slices.SortFunc(coords, starmap.ChunkCoord.Compare)
	return coords
}

// UpdateVisible loads every chunk within ViewRadius+1 of the camera chunk,
// adds the chunks within ViewRadius to the visible set, evicts only those
// beyond ViewRadius+1, and returns the stars of the visible set capped to
// the MaxVisible closest to pos.
func (o *Observer) UpdateVisible(pos starmap.Vec3) Result {
	m := o.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	op := m.profiler.Start(performance.OpUpdateVisible)
	defer op.End()

	s := m.settings
	center := starmap.ChunkCoordFromPosition(pos, s.Generation.ChunkSize)
	res := Result{CameraChunk: center, Epoch: m.epoch}
	if o.removed {
		return res
	}

	loadRadius := s.LoadRadius()
	for _, c := range starmap.Neighborhood(center, loadRadius) {
		if _, ok := m.cache[c]; ok {
			continue
		}
		m.cache[c] = m.generateLocked(c)
		res.ChunksGenerated++
	}

	for _, c := range starmap.Neighborhood(center, s.ViewRadius) {
		if _, ok := o.visible[c]; !ok {
			o.visible[c] = struct{}{}
			res.Added = append(res.Added, c)
		}
	}
	for c := range o.visible {
		if starmap.ChebyshevDistance(c, center) > int64(loadRadius) {
			delete(o.visible, c)
			res.Removed = append(res.Removed, c)
		}
	}
	slices.SortFunc(res.Removed, starmap.ChunkCoord.Compare)

	coords := o.sortedVisibleLocked()
	total := 0
	for _, c := range coords {
		total += len(m.cache[c])
	}
	stars := make([]procedural.Star, 0, total)
	for _, c := range coords {
		stars = append(stars, m.cache[c]...)
	}

	res.Stars, res.Trimmed = m.trimClosest(stars, pos, s.MaxVisible)

	if res.ChunksGenerated > 0 {
		m.logger.Debug("generated chunks",
			"observer", o.id,
			"camera_chunk", center.String(),
			"generated", res.ChunksGenerated,
			"cached", len(m.cache),
		)
	}
	return res
}

type rankedStar struct {
	dist2 float64
	star  procedural.Star
}

// trimClosest keeps the limit stars nearest to pos, ordered by distance.
// Lists within the limit are returned unchanged.
func (m *Manager) trimClosest(stars []procedural.Star, pos starmap.Vec3, limit int) ([]procedural.Star, int) {
	if len(stars) <= limit {
		return stars, 0
	}
	op := m.profiler.Start(performance.OpTrimVisible)
	defer op.End()

	ranked := make([]rankedStar, len(stars))
	for i, s := range stars {
		ranked[i] = rankedStar{dist2: starmap.DistanceSquared(s.Position, pos), star: s}
	}
	slices.SortStableFunc(ranked, func(a, b rankedStar) int {
		switch {
		case a.dist2 < b.dist2:
			return -1
		case a.dist2 > b.dist2:
			return 1
		}
		return 0
	})

	kept := make([]procedural.Star, limit)
	for i := range kept {
		kept[i] = ranked[i].star
	}
	return kept, len(stars) - limit
}
