package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/starfield/server/internal/procedural"
)

// UniverseConfig holds generation and visibility settings.
type UniverseConfig struct {
	ChunkSize       float64 `yaml:"chunk_size"`
	ViewRadius      int     `yaml:"view_radius"`
	MinStars        int     `yaml:"min_stars"`
	MaxStars        int     `yaml:"max_stars"`
	MinStarSize     float64 `yaml:"min_star_size"`
	MaxStarSize     float64 `yaml:"max_star_size"`
	GlobalSeed      string  `yaml:"global_seed"`
	CustomSeed      string  `yaml:"custom_seed"`
	UseCustomSeed   bool    `yaml:"use_custom_seed"`
	MaxVisibleStars int     `yaml:"max_visible_stars"`
	TargetUpdateHz  int     `yaml:"target_update_hz"`
	Profiling       bool    `yaml:"profiling"`
}

// DefaultUniverse returns the built-in universe settings.
func DefaultUniverse() UniverseConfig {
	return UniverseConfig{
		ChunkSize:       128,
		ViewRadius:      1,
		MinStars:        10,
		MaxStars:        30,
		MinStarSize:     0.5,
		MaxStarSize:     2.0,
		GlobalSeed:      "42-galactic-seed",
		CustomSeed:      "",
		UseCustomSeed:   false,
		MaxVisibleStars: 1000,
		TargetUpdateHz:  60,
		Profiling:       true,
	}
}

func universeFromEnv() UniverseConfig {
	d := DefaultUniverse()
	return UniverseConfig{
		ChunkSize:       getFloatEnv("UNIVERSE_CHUNK_SIZE", d.ChunkSize),
		ViewRadius:      getIntEnv("UNIVERSE_VIEW_RADIUS", d.ViewRadius),
		MinStars:        getIntEnv("UNIVERSE_MIN_STARS", d.MinStars),
		MaxStars:        getIntEnv("UNIVERSE_MAX_STARS", d.MaxStars),
		MinStarSize:     getFloatEnv("UNIVERSE_MIN_STAR_SIZE", d.MinStarSize),
		MaxStarSize:     getFloatEnv("UNIVERSE_MAX_STAR_SIZE", d.MaxStarSize),
		GlobalSeed:      getEnv("UNIVERSE_GLOBAL_SEED", d.GlobalSeed),
		CustomSeed:      getEnv("UNIVERSE_CUSTOM_SEED", d.CustomSeed),
		UseCustomSeed:   getBoolEnv("UNIVERSE_USE_CUSTOM_SEED", d.UseCustomSeed),
		MaxVisibleStars: getIntEnv("UNIVERSE_MAX_VISIBLE_STARS", d.MaxVisibleStars),
		TargetUpdateHz:  getIntEnv("UNIVERSE_TARGET_UPDATE_HZ", d.TargetUpdateHz),
		Profiling:       getBoolEnv("UNIVERSE_PROFILING", d.Profiling),
	}
}

// LoadUniverseFile overlays the YAML file at path onto base. Keys absent from
// the file keep their base values. A missing file returns base unchanged.
func LoadUniverseFile(path string, base UniverseConfig) (UniverseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("universe config file not found, using environment values", "path", path)
			return base, nil
		}
		return base, fmt.Errorf("failed to read universe config %s: %w", path, err)
	}

	out := base
	if err := yaml.Unmarshal(data, &out); err != nil {
		return base, fmt.Errorf("failed to parse universe config %s: %w", path, err)
	}
	return out, nil
}

// ActiveSeed returns the custom seed when enabled, otherwise the global seed.
func (u UniverseConfig) ActiveSeed() string {
	if u.UseCustomSeed {
		return u.CustomSeed
	}
	return u.GlobalSeed
}

// MaxViewRadius bounds the view radius. Each observer loads
// (2r+3)^3 chunks.
const MaxViewRadius = 16

// Validate rejects values the engine cannot run with.
func (u UniverseConfig) Validate() error {
	switch {
	case !(u.ChunkSize > 0) || u.ChunkSize > procedural.MaxChunkSize:
		return fmt.Errorf("UNIVERSE_CHUNK_SIZE must be in (0, %d]", procedural.MaxChunkSize)
	case u.ViewRadius < 0 || u.ViewRadius > MaxViewRadius:
		return fmt.Errorf("UNIVERSE_VIEW_RADIUS must be in [0, %d]", MaxViewRadius)
	case u.MinStars < 0:
		return fmt.Errorf("UNIVERSE_MIN_STARS must not be negative")
	case u.MaxStars < u.MinStars:
		return fmt.Errorf("UNIVERSE_MAX_STARS must be at least UNIVERSE_MIN_STARS")
	case u.MaxStars > procedural.MaxStarsPerChunk:
		return fmt.Errorf("UNIVERSE_MAX_STARS must be at most %d", procedural.MaxStarsPerChunk)
	case !(u.MinStarSize > 0) || !(u.MaxStarSize >= u.MinStarSize) || math.IsInf(u.MaxStarSize, 1):
		return fmt.Errorf("star size range [%v, %v) is invalid", u.MinStarSize, u.MaxStarSize)
	case u.GlobalSeed == "":
		return fmt.Errorf("UNIVERSE_GLOBAL_SEED is required")
	case u.UseCustomSeed && u.CustomSeed == "":
		return fmt.Errorf("UNIVERSE_CUSTOM_SEED is required when UNIVERSE_USE_CUSTOM_SEED is set")
	case u.MaxVisibleStars < 1:
		return fmt.Errorf("UNIVERSE_MAX_VISIBLE_STARS must be at least 1")
	case u.TargetUpdateHz < 1:
		return fmt.Errorf("UNIVERSE_TARGET_UPDATE_HZ must be at least 1")
	}
	return nil
}
