package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
)

func TestLoadFillsDefaults(t *testing.T) {
	c, err := config.Load([]byte(`
input:
  files: [a.xosc, b.xodr]
control:
  playback:
    speed: 2
    loop: true
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.xosc", "b.xodr"}, c.Input.Files)
	assert.Equal(t, 2.0, c.Control.Playback.Speed)
	assert.True(t, c.Control.Playback.Loop)
	assert.Equal(t, config.DefaultMaxFrameDelta, c.Control.Playback.MaxFrameDelta)
	assert.Equal(t, 25.0, c.LOD.HighDistance)
	assert.Equal(t, 75.0, c.LOD.MediumDistance)
	assert.Equal(t, 60, c.LOD.RecoveryFrames)
	assert.Equal(t, 10.0, c.Parser.Timeout)
	assert.Equal(t, 0.5, c.Parser.SampleInterval)
	assert.Equal(t, 10000, c.Parser.MaxSamples)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	_, err := config.Load([]byte("control:\n  playbak: {}\n"))
	assert.Error(t, err)
}

func TestLoadRejectsNonMonotonicDistance(t *testing.T) {
	_, err := config.Load([]byte("lod:\n  high_distance: 80\n  medium_distance: 40\n"))
	assert.ErrorContains(t, err, "high_distance")
}

func TestInputPathAccessors(t *testing.T) {
	p := config.InputPath{DB: "sim", Col: "scenarios"}
	assert.Equal(t, "sim", p.GetDb())
	assert.Equal(t, "scenarios", p.GetColl())
}
