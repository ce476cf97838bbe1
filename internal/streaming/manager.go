package streaming

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starfield/server/internal/config"
	"github.com/starfield/server/internal/performance"
	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/starmap"
)

// Settings are read on every query, so a Configure call takes effect on the
// next UpdateVisible.
type Settings struct {
	Generation procedural.Params `json:"generation"`
	ViewRadius int               `json:"view_radius"`
	MaxVisible int               `json:"max_visible"`
}

// DefaultSettings returns a view radius of one chunk and at most 1000 stars.
func DefaultSettings() Settings {
	return Settings{
		Generation: procedural.DefaultParams(),
		ViewRadius: 1,
		MaxVisible: 1000,
	}
}

// Validate checks the bounds the engine relies on.
func (s Settings) Validate() error {
	if err := s.Generation.Validate(); err != nil {
		return err
	}
	if s.ViewRadius < 0 || s.ViewRadius > config.MaxViewRadius {
		return fmt.Errorf("view radius must be in [0, %d], got %d", config.MaxViewRadius, s.ViewRadius)
	}
	if s.MaxVisible < 1 {
		return fmt.Errorf("max visible must be at least 1, got %d", s.MaxVisible)
	}
	return nil
}

// LoadRadius is the view radius plus the one-chunk preload border.
func (s Settings) LoadRadius() int {
	return s.ViewRadius + 1
}

// SeedConfig is the global seed plus an optional override.
type SeedConfig struct {
	Global    string `json:"global"`
	Custom    string `json:"custom"`
	UseCustom bool   `json:"use_custom"`
}

// Active returns the seed that governs generation.
func (c SeedConfig) Active() string {
	if c.UseCustom {
		return c.Custom
	}
	return c.Global
}

// Info describes the current seed epoch.
type Info struct {
	Seed      string `json:"seed"`
	IsCustom  bool   `json:"is_custom"`
	Epoch     uint64 `json:"epoch"`
	CacheSize int    `json:"cache_size"`
}

// Manager owns the chunk cache and the visible sets of its observers.
// One mutex guards all of it: a coordinate is generated at most once per
// epoch, and a reseed never interleaves with a query.
type Manager struct {
	mu         sync.Mutex
	settings   Settings
	seeds      SeedConfig
	activeSeed string
	epoch      uint64
	cache      map[starmap.ChunkCoord][]procedural.Star
	observers  map[string]*Observer
	primary    *Observer
	onReseed   []func(Info)

	profiler *performance.Profiler
	logger   *slog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithProfiler records engine timings into p.
func WithProfiler(p *performance.Profiler) Option {
	return func(m *Manager) { m.profiler = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager builds an engine with an empty cache under seeds.Active().
func NewManager(settings Settings, seeds SeedConfig, opts ...Option) (*Manager, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid streaming settings: %w", err)
	}
	m := &Manager{
		settings:   settings,
		seeds:      seeds,
		activeSeed: seeds.Active(),
		epoch:      1,
		cache:      make(map[starmap.ChunkCoord][]procedural.Star),
		observers:  make(map[string]*Observer),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.primary = m.newObserverLocked()
	return m, nil
}

// NewObserver registers an observer with its own empty visible set.
func (m *Manager) NewObserver() *Observer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newObserverLocked()
}

func (m *Manager) newObserverLocked() *Observer {
	o := &Observer{
		id:        uuid.NewString(),
		manager:   m,
		visible:   make(map[starmap.ChunkCoord]struct{}),
		createdAt: time.Now(),
	}
	m.observers[o.id] = o
	return o
}

// RemoveObserver drops an observer. Later queries on it return nothing.
func (m *Manager) RemoveObserver(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.observers[id]; ok && o != m.primary {
		o.removed = true
		clear(o.visible)
		delete(m.observers, id)
	}
}

// Primary returns the observer used by Manager.UpdateVisible.
func (m *Manager) Primary() *Observer {
	return m.primary
}

// UpdateVisible runs a query for the primary observer.
func (m *Manager) UpdateVisible(pos starmap.Vec3) Result {
	return m.primary.UpdateVisible(pos)
}

// OnReseed registers fn to run after every epoch change, outside the lock.
func (m *Manager) OnReseed(fn func(Info)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReseed = append(m.onReseed, fn)
}

// ActiveSeed returns the seed of the current epoch.
func (m *Manager) ActiveSeed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeSeed
}

// Epoch returns the current epoch number. It starts at 1.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Settings returns the current settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Info returns the seed, its origin and the cache size.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoLocked()
}

func (m *Manager) infoLocked() Info {
	return Info{
		Seed:      m.activeSeed,
		IsCustom:  m.seeds.UseCustom,
		Epoch:     m.epoch,
		CacheSize: len(m.cache),
	}
}

// SetActiveSeed installs seed as a custom seed and starts a new epoch with
// an empty cache and empty visible sets, even when seed is unchanged.
func (m *Manager) SetActiveSeed(seed string) Info {
	m.mu.Lock()
	m.seeds.UseCustom = true
	m.seeds.Custom = seed
	info := m.resetLocked(seed, "seed replaced")
	hooks := slices.Clone(m.onReseed)
	m.mu.Unlock()

	notify(hooks, info)
	return info
}

// UseCustomSeed toggles the override. The cache is cleared only when the
// resulting active seed differs from the current one.
func (m *Manager) UseCustomSeed(enabled bool, custom string) (Info, bool) {
	m.mu.Lock()
	m.seeds.UseCustom = enabled
	if custom != "" {
		m.seeds.Custom = custom
	}
	next := m.seeds.Active()
	if next == m.activeSeed {
		info := m.infoLocked()
		m.mu.Unlock()
		return info, false
	}
	info := m.resetLocked(next, "seed override changed")
	hooks := slices.Clone(m.onReseed)
	m.mu.Unlock()

	notify(hooks, info)
	return info, true
}

// ResetCache starts a new epoch under the same seed.
func (m *Manager) ResetCache() Info {
	m.mu.Lock()
	info := m.resetLocked(m.activeSeed, "cache reset")
	hooks := slices.Clone(m.onReseed)
	m.mu.Unlock()

	notify(hooks, info)
	return info
}

// Configure swaps the settings. A change of generation parameters alters
// chunk content, so it starts a new epoch like a reseed.
func (m *Manager) Configure(settings Settings) (Info, error) {
	if err := settings.Validate(); err != nil {
		return Info{}, err
	}

	m.mu.Lock()
	regenerate := settings.Generation != m.settings.Generation
	m.settings = settings
	if !regenerate {
		info := m.infoLocked()
		m.mu.Unlock()
		return info, nil
	}
	info := m.resetLocked(m.activeSeed, "generation parameters changed")
	hooks := slices.Clone(m.onReseed)
	m.mu.Unlock()

	notify(hooks, info)
	return info, nil
}

func (m *Manager) resetLocked(seed, reason string) Info {
	op := m.profiler.Start(performance.OpReseed)
	defer op.End()

	dropped := len(m.cache)
	m.activeSeed = seed
	m.cache = make(map[starmap.ChunkCoord][]procedural.Star)
	for _, o := range m.observers {
		clear(o.visible)
	}
	m.epoch++

	m.logger.Info("universe reset",
		"reason", reason,
		"seed", seed,
		"epoch", m.epoch,
		"dropped_chunks", dropped,
	)
	return m.infoLocked()
}

func notify(hooks []func(Info), info Info) {
	for _, fn := range hooks {
		fn(info)
	}
}

// Peek returns the content of coord from the cache, or generates it without
// caching it.
func (m *Manager) Peek(coord starmap.ChunkCoord) []procedural.Star {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stars, ok := m.cache[coord]; ok {
		return slices.Clone(stars)
	}
	return procedural.GenerateChunk(m.activeSeed, m.settings.Generation, coord)
}

// generateLocked produces one chunk under the active seed.
func (m *Manager) generateLocked(coord starmap.ChunkCoord) []procedural.Star {
	op := m.profiler.Start(performance.OpGenerateChunk)
	defer op.End()
	return procedural.GenerateChunk(m.activeSeed, m.settings.Generation, coord)
}
