package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfield/server/internal/config"
)

func TestSettingsFromConfig(t *testing.T) {
	u := config.DefaultUniverse()
	u.UseCustomSeed = true
	u.CustomSeed = "override"

	s := SettingsFromConfig(u)
	require.NoError(t, s.Validate())
	assert.Equal(t, DefaultSettings(), s)

	seeds := SeedsFromConfig(u)
	assert.Equal(t, "override", seeds.Active())
	assert.Equal(t, u.ActiveSeed(), seeds.Active())
}
