package streaming

import (
	"unsafe"

	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/starmap"
)

// Rough per-entry costs used by the memory estimate.
const (
	mapEntryOverhead = 16
	starRecordBytes  = int64(unsafe.Sizeof(procedural.Star{}))
	chunkEntryBytes  = int64(unsafe.Sizeof(starmap.ChunkCoord{})+unsafe.Sizeof([]procedural.Star(nil))) + mapEntryOverhead
)

// Stats is a point-in-time view of the engine.
type Stats struct {
	Seed                string  `json:"seed"`
	Epoch               uint64  `json:"epoch"`
	CachedChunks        int     `json:"cached_chunks"`
	TotalStars          int     `json:"total_stars"`
	VisibleChunks       int     `json:"visible_chunks"`
	Observers           int     `json:"observers"`
	MemoryEstimateBytes int64   `json:"memory_estimate_bytes"`
	MemoryEstimateMB    float64 `json:"memory_estimate_mb"`
}

// Stats reports cache and observer counts and an approximate memory
// footprint. It does not modify state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{
		Seed:          m.activeSeed,
		Epoch:         m.epoch,
		CachedChunks:  len(m.cache),
		VisibleChunks: len(m.primary.visible),
		Observers:     len(m.observers),
	}
	var nameBytes int64
	for _, stars := range m.cache {
		st.TotalStars += len(stars)
		for _, s := range stars {
			nameBytes += int64(len(s.Name))
		}
	}
	st.MemoryEstimateBytes = int64(st.CachedChunks)*chunkEntryBytes + int64(st.TotalStars)*starRecordBytes + nameBytes
	st.MemoryEstimateMB = float64(st.MemoryEstimateBytes) / (1024 * 1024)
	return st
}
