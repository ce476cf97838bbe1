package streaming

import (
	"github.com/starfield/server/internal/config"
	"github.com/starfield/server/internal/procedural"
)

// SettingsFromConfig maps universe configuration onto engine settings.
func SettingsFromConfig(u config.UniverseConfig) Settings {
	return Settings{
		Generation: procedural.Params{
			ChunkSize: u.ChunkSize,
			MinStars:  u.MinStars,
			MaxStars:  u.MaxStars,
			MinSize:   u.MinStarSize,
			MaxSize:   u.MaxStarSize,
		},
		ViewRadius: u.ViewRadius,
		MaxVisible: u.MaxVisibleStars,
	}
}

// SeedsFromConfig extracts the seed pair from universe configuration.
func SeedsFromConfig(u config.UniverseConfig) SeedConfig {
	return SeedConfig{
		Global:    u.GlobalSeed,
		Custom:    u.CustomSeed,
		UseCustom: u.UseCustomSeed,
	}
}
