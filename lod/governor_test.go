package lod_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-player/lod"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
)

func newGovernor(t *testing.T) *lod.Governor {
	g, err := lod.NewGovernor(config.Default().LOD)
	require.NoError(t, err)
	return g
}

var healthy = lod.Input{CameraDistance: 10, FPS: 60, VehicleCount: 10}

func TestDistanceMonotonic(t *testing.T) {
	g := newGovernor(t)
	assert.Equal(t, lod.LevelHigh, g.Evaluate(lod.Input{CameraDistance: 10, FPS: 60}).Level)
	assert.Equal(t, lod.LevelMedium, g.Evaluate(lod.Input{CameraDistance: 30, FPS: 60}).Level)
	assert.Equal(t, lod.LevelLow, g.Evaluate(lod.Input{CameraDistance: 80, FPS: 60}).Level)

	prev := lod.LevelHigh
	for d := 0.0; d < 200; d += 0.5 {
		l := g.DistanceLevel(d)
		assert.LessOrEqual(t, l, prev)
		prev = l
	}
	assert.Equal(t, lod.LevelMedium, g.DistanceLevel(75))
	assert.Equal(t, lod.LevelHigh, g.DistanceLevel(25))
}

func TestLoadForcesLowRegardlessOfDistance(t *testing.T) {
	for _, d := range []float64{1, 30, 80} {
		g := newGovernor(t)
		assert.Equal(t, lod.LevelLow, g.Evaluate(lod.Input{CameraDistance: d, FPS: 20, VehicleCount: 150}).Level)
	}
	// 已经稳定在high后，车辆数压力立即生效
	g := newGovernor(t)
	g.Evaluate(healthy)
	d := g.Evaluate(lod.Input{CameraDistance: 10, FPS: 60, VehicleCount: 150})
	assert.Equal(t, lod.LevelLow, d.Level)
	assert.True(t, d.Changed)
}

func TestMediumLoad(t *testing.T) {
	g := newGovernor(t)
	assert.Equal(t, lod.LevelMedium, g.Evaluate(lod.Input{CameraDistance: 10, FPS: 40, VehicleCount: 10}).Level)
	g.Reset()
	assert.Equal(t, lod.LevelMedium, g.Evaluate(lod.Input{CameraDistance: 10, FPS: 60, VehicleCount: 60}).Level)
}

func TestSingleFrameDipDoesNotThrash(t *testing.T) {
	g := newGovernor(t)
	g.Evaluate(healthy)
	dip := lod.Input{CameraDistance: 10, FPS: 20, VehicleCount: 10}
	for range 10 {
		assert.Equal(t, lod.LevelHigh, g.Evaluate(dip).Level)
		assert.Equal(t, lod.LevelHigh, g.Evaluate(healthy).Level)
	}
}

func TestSustainedDipStepsOneTierAtATime(t *testing.T) {
	g := newGovernor(t)
	g.Evaluate(healthy)
	dip := lod.Input{CameraDistance: 10, FPS: 20, VehicleCount: 10}
	levels := make([]lod.Level, 0)
	for range 6 {
		levels = append(levels, g.Evaluate(dip).Level)
	}
	assert.Equal(t, []lod.Level{
		lod.LevelHigh, lod.LevelHigh, lod.LevelMedium,
		lod.LevelMedium, lod.LevelMedium, lod.LevelLow,
	}, levels)
}

func TestRecoveryRequiresSustainedGoodFrames(t *testing.T) {
	g := newGovernor(t)
	g.Evaluate(healthy)
	g.Evaluate(lod.Input{CameraDistance: 10, FPS: 60, VehicleCount: 150})
	require.Equal(t, lod.LevelLow, g.Level())

	for range 59 {
		assert.Equal(t, lod.LevelLow, g.Evaluate(healthy).Level)
	}
	assert.Equal(t, lod.LevelMedium, g.Evaluate(healthy).Level)
	for range 59 {
		assert.Equal(t, lod.LevelMedium, g.Evaluate(healthy).Level)
	}
	assert.Equal(t, lod.LevelHigh, g.Evaluate(healthy).Level)
}

func TestDistanceOnlyImprovementIsImmediate(t *testing.T) {
	g := newGovernor(t)
	g.Evaluate(lod.Input{CameraDistance: 80, FPS: 60})
	require.Equal(t, lod.LevelLow, g.Level())
	assert.Equal(t, lod.LevelHigh, g.Evaluate(lod.Input{CameraDistance: 5, FPS: 60}).Level)
}

func TestInstancingHysteresis(t *testing.T) {
	g := newGovernor(t)
	assert.True(t, g.Evaluate(lod.Input{CameraDistance: 100, FPS: 60, VehicleCount: 250}).Instancing)
	calm := lod.Input{CameraDistance: 100, FPS: 60, VehicleCount: 10}
	for range 59 {
		assert.True(t, g.Evaluate(calm).Instancing)
	}
	assert.False(t, g.Evaluate(calm).Instancing)

	g.Reset()
	assert.True(t, g.Evaluate(lod.Input{CameraDistance: 10, FPS: 24}).Instancing)
	// 帧率未知时不触发
	g.Reset()
	assert.False(t, g.Evaluate(lod.Input{CameraDistance: 10}).Instancing)
}

func TestTierChangeListenerAndProfile(t *testing.T) {
	g := newGovernor(t)
	type change struct{ from, to lod.Level }
	var got []change
	g.OnTierChange(func(from, to lod.Level) { got = append(got, change{from, to}) })

	g.Evaluate(healthy)
	g.Evaluate(lod.Input{CameraDistance: 30, FPS: 60})
	g.Evaluate(lod.Input{CameraDistance: 30, FPS: 60})
	assert.Equal(t, []change{{lod.LevelHigh, lod.LevelMedium}}, got)

	p := g.Profile()
	assert.Equal(t, lod.LevelMedium, p.LODLevel)
	assert.Equal(t, 60.0, p.FPS)
	assert.Equal(t, 1, p.StableFrameCount)
	assert.Equal(t, lod.LevelMedium, g.ForDistance(1))
	assert.Equal(t, lod.LevelLow, g.ForDistance(100))
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default().LOD
	cfg.HighDistance = 100
	_, err := lod.NewGovernor(cfg)
	assert.Error(t, err)
}

func TestLevelText(t *testing.T) {
	b, err := lod.LevelMedium.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "medium", string(b))
}
